package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/yooscribe/internal/models"
	"github.com/yoockh/yooscribe/internal/utils"
	"gorm.io/gorm"
)

type ChunkRepo interface {
	Insert(ctx context.Context, chunk *models.Chunk) error
	GetByID(ctx context.Context, id string) (*models.Chunk, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Chunk, error)
	ListStandalone(ctx context.Context, limit, offset int) ([]models.Chunk, error)

	// Claim moves a pending chunk to processing. Returns false when the
	// chunk is not pending, so concurrent workers cannot double-process.
	Claim(ctx context.Context, id string) (bool, error)
	Complete(ctx context.Context, chunk *models.Chunk) error
	Fail(ctx context.Context, id, errorMessage string) error
	// ResetForRetry moves a finished chunk back to pending and clears the
	// previous run's outputs. Returns false when the chunk is still in flight.
	ResetForRetry(ctx context.Context, id string) (bool, error)

	// UpdateMeta applies user-editable fields only; pipeline-owned columns
	// never go through here.
	UpdateMeta(ctx context.Context, id string, fields map[string]any) error

	NextIndex(ctx context.Context, conversationID string) (int, error)
	Delete(ctx context.Context, id string) error
}

type chunkRepo struct {
	db *gorm.DB
}

func NewChunkRepo(db *gorm.DB) ChunkRepo {
	return &chunkRepo{db: db}
}

func (r *chunkRepo) Insert(ctx context.Context, chunk *models.Chunk) error {
	return r.db.WithContext(ctx).Create(chunk).Error
}

func (r *chunkRepo) GetByID(ctx context.Context, id string) (*models.Chunk, error) {
	var row models.Chunk
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *chunkRepo) ListByConversation(ctx context.Context, conversationID string) ([]models.Chunk, error) {
	var rows []models.Chunk
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("chunk_index ASC").
		Find(&rows).Error
	return rows, err
}

func (r *chunkRepo) ListStandalone(ctx context.Context, limit, offset int) ([]models.Chunk, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.Chunk
	err := r.db.WithContext(ctx).
		Where("conversation_id IS NULL").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, err
}

func (r *chunkRepo) Claim(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Chunk{}).
		Where("id = ? AND status = ?", id, models.ChunkStatusPending).
		Update("status", models.ChunkStatusProcessing)
	return res.RowsAffected > 0, res.Error
}

func (r *chunkRepo) Complete(ctx context.Context, chunk *models.Chunk) error {
	now := time.Now().UTC()
	chunk.Status = models.ChunkStatusCompleted
	chunk.CompletedAt = &now
	chunk.ErrorMessage = ""

	return r.db.WithContext(ctx).Model(&models.Chunk{}).
		Where("id = ?", chunk.ID).
		Updates(map[string]any{
			"status":            chunk.Status,
			"transcript_text":   chunk.TranscriptText,
			"transcript_path":   chunk.TranscriptPath,
			"duration_sec":      chunk.DurationSec,
			"detected_language": chunk.DetectedLanguage,
			"diarization":       chunk.Diarization,
			"is_hallucination":  chunk.IsHallucination,
			"error_message":     chunk.ErrorMessage,
			"completed_at":      chunk.CompletedAt,
		}).Error
}

func (r *chunkRepo) Fail(ctx context.Context, id, errorMessage string) error {
	return r.db.WithContext(ctx).Model(&models.Chunk{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        models.ChunkStatusFailed,
			"error_message": errorMessage,
		}).Error
}

func (r *chunkRepo) ResetForRetry(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Chunk{}).
		Where("id = ? AND status IN ?", id,
			[]string{models.ChunkStatusCompleted, models.ChunkStatusFailed}).
		Updates(map[string]any{
			"status":          models.ChunkStatusPending,
			"error_message":   "",
			"transcript_text": "",
			"transcript_path": "",
			"completed_at":    nil,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *chunkRepo) UpdateMeta(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Chunk{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *chunkRepo) NextIndex(ctx context.Context, conversationID string) (int, error) {
	var next int
	err := r.db.WithContext(ctx).Model(&models.Chunk{}).
		Where("conversation_id = ?", conversationID).
		Select("COALESCE(MAX(chunk_index), -1) + 1").
		Scan(&next).Error
	return next, err
}

func (r *chunkRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Chunk{}).Error
}
