package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Pipeline stage names recorded per processing attempt.
const (
	StageConditioning = "conditioning"
	StageASR          = "asr"
	StageDiarization  = "diarization"
	StagePersist      = "persist"
)

// PipelineEvent is one stage outcome within a chunk processing attempt,
// kept in MongoDB with a TTL so run history ages out on its own.
type PipelineEvent struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChunkID string             `bson:"chunk_id" json:"chunk_id"`
	Attempt int                `bson:"attempt" json:"attempt"`

	Stage  string `bson:"stage" json:"stage"`   // conditioning|asr|diarization|persist
	Status string `bson:"status" json:"status"` // started|succeeded|failed|skipped
	Detail string `bson:"detail,omitempty" json:"detail,omitempty"`

	ElapsedMS int64     `bson:"elapsed_ms,omitempty" json:"elapsed_ms,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
