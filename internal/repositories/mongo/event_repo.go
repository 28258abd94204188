package mongo

import (
	"context"
	"time"

	"github.com/yoockh/yooscribe/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventRepository records per-stage pipeline events for debugging failed
// chunks. Entries expire via the collection's TTL index.
type EventRepository interface {
	Insert(ctx context.Context, e *models.PipelineEvent) error
	ListByChunk(ctx context.Context, chunkID string, limit int64) ([]models.PipelineEvent, error)
}

type eventRepo struct {
	col *mongo.Collection
	ttl time.Duration
}

func NewEventRepo(db *mongo.Database, ttl time.Duration) EventRepository {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &eventRepo{col: db.Collection("pipeline_events"), ttl: ttl}
}

func (r *eventRepo) Insert(ctx context.Context, e *models.PipelineEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = e.Timestamp.Add(r.ttl)
	}
	_, err := r.col.InsertOne(ctx, e)
	return err
}

func (r *eventRepo) ListByChunk(ctx context.Context, chunkID string, limit int64) ([]models.PipelineEvent, error) {
	if limit <= 0 {
		limit = 200
	}

	cur, err := r.col.Find(ctx,
		bson.M{"chunk_id": chunkID},
		options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.PipelineEvent
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
