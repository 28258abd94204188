package models

import "time"

// Conversation statuses. While a conversation is "recording" its status is
// driven manually; chunk-driven derivation is suppressed until completion
// is requested.
const (
	ConversationStatusRecording  = "recording"
	ConversationStatusProcessing = "processing"
	ConversationStatusCompleted  = "completed"
	ConversationStatusFailed     = "failed"
)

type Conversation struct {
	ID          string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Title       string `gorm:"column:title;type:text" json:"title,omitempty"`
	Description string `gorm:"column:description;type:text" json:"description,omitempty"`

	// Defaults applied to chunks added to this conversation.
	Language         string `gorm:"column:language;type:text" json:"language"` // "en" | "he" | "auto"
	TrimSilence      bool   `gorm:"column:trim_silence" json:"trim_silence"`
	ChunkIntervalSec int    `gorm:"column:chunk_interval_sec" json:"chunk_interval_sec"`
	NumSpeakers      int    `gorm:"column:num_speakers" json:"num_speakers"`

	Status           string  `gorm:"column:status;type:text;index" json:"status"` // recording|processing|completed|failed
	TotalDurationSec float64 `gorm:"column:total_duration_sec" json:"total_duration_sec"`

	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at;type:timestamptz" json:"completed_at,omitempty"`

	Chunks []Chunk `gorm:"foreignKey:ConversationID" json:"chunks,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }
