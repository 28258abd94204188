package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yooscribe/internal/cache"
	"github.com/yoockh/yooscribe/internal/events"
	"github.com/yoockh/yooscribe/internal/models"
	"github.com/yoockh/yooscribe/internal/repositories/postgres"
	"github.com/yoockh/yooscribe/internal/storage"
	"github.com/yoockh/yooscribe/internal/utils"
)

type CreateConversationInput struct {
	Title            string
	Description      string
	Language         string
	TrimSilence      bool
	ChunkIntervalSec int
	NumSpeakers      int
}

type ConversationService interface {
	Create(ctx context.Context, in CreateConversationInput) (*models.Conversation, error)
	Get(ctx context.Context, id string) (*models.Conversation, error)
	List(ctx context.Context, limit, offset int) ([]models.Conversation, error)
	// Complete ends the recording phase; from then on status is derived
	// from the chunks.
	Complete(ctx context.Context, id string) (*models.Conversation, error)
	// RefreshStatus re-derives status and total duration from the chunk
	// rows. Safe to call concurrently from any number of chunk tasks.
	RefreshStatus(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type conversationService struct {
	convs  postgres.ConversationRepo
	chunks postgres.ChunkRepo
	store  storage.Store
	cache  cache.Cache
	events events.Publisher
	log    *logrus.Logger
}

func NewConversationService(
	convs postgres.ConversationRepo,
	chunks postgres.ChunkRepo,
	store storage.Store,
	c cache.Cache,
	pub events.Publisher,
	log *logrus.Logger,
) ConversationService {
	return &conversationService{convs: convs, chunks: chunks, store: store, cache: c, events: pub, log: log}
}

func (s *conversationService) Create(ctx context.Context, in CreateConversationInput) (*models.Conversation, error) {
	const op = "ConversationService.Create"

	if in.Language == "" {
		in.Language = "auto"
	}
	if !validLanguage(in.Language) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "language must be auto, en or he", nil)
	}
	if in.NumSpeakers < 0 || in.NumSpeakers > 10 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "num_speakers must be between 0 and 10", nil)
	}
	if in.ChunkIntervalSec <= 0 {
		in.ChunkIntervalSec = 30
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:               uuid.NewString(),
		Title:            in.Title,
		Description:      in.Description,
		Language:         in.Language,
		TrimSilence:      in.TrimSilence,
		ChunkIntervalSec: in.ChunkIntervalSec,
		NumSpeakers:      in.NumSpeakers,
		Status:           models.ConversationStatusRecording,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.convs.Insert(ctx, conv); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create conversation", err)
	}
	return conv, nil
}

func (s *conversationService) Get(ctx context.Context, id string) (*models.Conversation, error) {
	const op = "ConversationService.Get"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation id is required", nil)
	}

	var cached models.Conversation
	if hit, err := s.cache.GetJSON(ctx, cache.ConversationKey(id), &cached); err == nil && hit {
		return &cached, nil
	}

	conv, err := s.convs.GetWithChunks(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get conversation", err)
	}

	if err := s.cache.SetJSON(ctx, cache.ConversationKey(id), conv, cache.DefaultTTL); err != nil {
		s.log.WithError(err).Warn("failed to cache conversation")
	}
	return conv, nil
}

func (s *conversationService) List(ctx context.Context, limit, offset int) ([]models.Conversation, error) {
	const op = "ConversationService.List"

	rows, err := s.convs.List(ctx, limit, offset)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list conversations", err)
	}
	return rows, nil
}

func (s *conversationService) Complete(ctx context.Context, id string) (*models.Conversation, error) {
	const op = "ConversationService.Complete"

	conv, err := s.convs.GetWithChunks(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get conversation", err)
	}
	if conv.Status != models.ConversationStatusRecording {
		return nil, utils.E(utils.CodeConflict, op, "conversation is not recording", nil)
	}

	// Leaving "recording" unfreezes derivation. With no chunks at all the
	// conversation is trivially complete.
	status := models.ConversationStatusCompleted
	if len(conv.Chunks) > 0 {
		status = deriveConversationStatus(models.ConversationStatusProcessing, conv.Chunks)
	}

	if err := s.applyStatus(ctx, conv, status); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to update conversation", err)
	}
	return s.convs.GetWithChunks(ctx, id)
}

func (s *conversationService) RefreshStatus(ctx context.Context, id string) error {
	const op = "ConversationService.RefreshStatus"

	conv, err := s.convs.GetWithChunks(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to get conversation", err)
	}

	status := deriveConversationStatus(conv.Status, conv.Chunks)
	if err := s.applyStatus(ctx, conv, status); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update conversation", err)
	}
	return nil
}

// applyStatus persists the derived status plus the recomputed duration,
// invalidates the read cache and notifies watchers on a status change.
func (s *conversationService) applyStatus(ctx context.Context, conv *models.Conversation, status string) error {
	var completedAt *time.Time
	if status == models.ConversationStatusCompleted && conv.CompletedAt == nil {
		now := time.Now().UTC()
		completedAt = &now
	}

	if err := s.convs.SetStatus(ctx, conv.ID, status, totalDuration(conv.Chunks), completedAt); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, cache.ConversationKey(conv.ID)); err != nil {
		s.log.WithError(err).Warn("failed to invalidate conversation cache")
	}

	if status != conv.Status {
		s.events.PublishStatus(ctx, events.StatusEvent{
			ConversationID: conv.ID,
			Status:         status,
		})
	}
	return nil
}

func (s *conversationService) Delete(ctx context.Context, id string) error {
	const op = "ConversationService.Delete"

	conv, err := s.convs.GetWithChunks(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to get conversation", err)
	}

	keys := []string{cache.ConversationKey(id)}
	for _, c := range conv.Chunks {
		if err := s.store.Delete(ctx, c.AudioPath); err != nil {
			s.log.WithError(err).WithField("chunk_id", c.ID).Warn("failed to delete chunk audio")
		}
		if err := s.store.Delete(ctx, c.TranscriptPath); err != nil {
			s.log.WithError(err).WithField("chunk_id", c.ID).Warn("failed to delete chunk transcript")
		}
		if err := s.chunks.Delete(ctx, c.ID); err != nil {
			return utils.E(utils.CodeInternal, op, "failed to delete chunk", err)
		}
		keys = append(keys, cache.ChunkKey(c.ID))
	}

	if err := s.convs.Delete(ctx, id); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to delete conversation", err)
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.WithError(err).Warn("failed to invalidate caches")
	}
	return nil
}

// SupportedLanguages lists what the recognition stack accepts. "auto"
// resolves to en or he at processing time.
func SupportedLanguages() []string {
	return []string{"auto", "en", "he"}
}

func validLanguage(lang string) bool {
	for _, l := range SupportedLanguages() {
		if lang == l {
			return true
		}
	}
	return false
}
