package cache

import (
	"context"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// DefaultTTL bounds staleness of cached read models. Writers invalidate on
// every status change, so the TTL only matters if an invalidation is lost.
const DefaultTTL = 5 * time.Minute

func ConversationKey(id string) string { return "conversation:" + id }
func ChunkKey(id string) string        { return "chunk:" + id }
