package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// StatusEvent is the JSON payload pushed to clients watching a chunk or a
// conversation over WebSocket.
type StatusEvent struct {
	Type           string `json:"type"`
	ChunkID        string `json:"chunk_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Status         string `json:"status"`
	Stage          string `json:"stage,omitempty"`
	Message        string `json:"message,omitempty"`
}

func ChunkChannel(chunkID string) string { return "chunk:" + chunkID + ":status" }

func ConversationChannel(conversationID string) string {
	return "conversation:" + conversationID + ":status"
}

// Publisher fans pipeline status out to interested WebSocket clients.
// Publishing is best effort; a missed event only delays the UI until the
// next poll.
type Publisher interface {
	PublishStatus(ctx context.Context, ev StatusEvent)
}

type RedisPublisher struct {
	rdb *redis.Client
	log *logrus.Logger
}

func NewRedisPublisher(rdb *redis.Client, log *logrus.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, log: log}
}

func (p *RedisPublisher) PublishStatus(ctx context.Context, ev StatusEvent) {
	ev.Type = "status"
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.WithError(err).Warn("failed to marshal status event")
		return
	}

	if ev.ChunkID != "" {
		if err := p.rdb.Publish(ctx, ChunkChannel(ev.ChunkID), payload).Err(); err != nil {
			p.log.WithError(err).WithField("chunk_id", ev.ChunkID).Warn("failed to publish chunk status")
		}
	}
	if ev.ConversationID != "" {
		if err := p.rdb.Publish(ctx, ConversationChannel(ev.ConversationID), payload).Err(); err != nil {
			p.log.WithError(err).WithField("conversation_id", ev.ConversationID).Warn("failed to publish conversation status")
		}
	}
}
