package models

import (
	"time"

	"gorm.io/datatypes"
)

// Chunk lifecycle statuses. Transitions are monotonic except for an
// explicit retry, which resets a terminal status back to pending.
const (
	ChunkStatusPending    = "pending"
	ChunkStatusProcessing = "processing"
	ChunkStatusCompleted  = "completed"
	ChunkStatusFailed     = "failed"
)

type Chunk struct {
	ID             string  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ConversationID *string `gorm:"column:conversation_id;type:uuid;index" json:"conversation_id,omitempty"`
	ChunkIndex     *int    `gorm:"column:chunk_index" json:"chunk_index,omitempty"` // order within conversation, unique when set

	Title       string `gorm:"column:title;type:text" json:"title,omitempty"`
	Description string `gorm:"column:description;type:text" json:"description,omitempty"`

	Filename       string `gorm:"column:filename;type:text" json:"filename"`
	AudioPath      string `gorm:"column:audio_path;type:text" json:"audio_path"`
	TranscriptPath string `gorm:"column:transcript_path;type:text" json:"transcript_path,omitempty"`

	Language         string `gorm:"column:language;type:text" json:"language"` // "en" | "he" | "auto"
	DetectedLanguage string `gorm:"column:detected_language;type:text" json:"detected_language,omitempty"`
	TrimSilence      bool   `gorm:"column:trim_silence" json:"trim_silence"`
	NumSpeakers      int    `gorm:"column:num_speakers" json:"num_speakers"` // 0 disables diarization

	Status          string         `gorm:"column:status;type:text;index" json:"status"` // pending|processing|completed|failed
	DurationSec     *float64       `gorm:"column:duration_sec" json:"duration_sec,omitempty"`
	TranscriptText  string         `gorm:"column:transcript_text;type:text" json:"transcript_text,omitempty"`
	Diarization     datatypes.JSON `gorm:"column:diarization;type:jsonb" json:"diarization,omitempty"` // DiarizationResult payload
	IsHallucination bool           `gorm:"column:is_hallucination" json:"is_hallucination"`
	ErrorMessage    string         `gorm:"column:error_message;type:text" json:"error_message,omitempty"`

	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at;type:timestamptz" json:"completed_at,omitempty"`
}

func (Chunk) TableName() string { return "chunks" }
