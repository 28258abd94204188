package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yooscribe/internal/cache"
	"github.com/yoockh/yooscribe/internal/events"
	"github.com/yoockh/yooscribe/internal/models"
	mongorepo "github.com/yoockh/yooscribe/internal/repositories/mongo"
	"github.com/yoockh/yooscribe/internal/repositories/postgres"
	"github.com/yoockh/yooscribe/internal/storage"
	"github.com/yoockh/yooscribe/internal/utils"
)

// Dispatcher hands a pending chunk to the background pipeline. Dispatch must
// not block the caller; each chunk runs in its own goroutine.
type Dispatcher interface {
	Dispatch(chunkID string)
}

type UploadChunkInput struct {
	ConversationID string // empty for a standalone chunk
	Filename       string
	Audio          io.Reader

	Title       string
	Description string
	Language    string // empty inherits from the conversation, or "auto"
	TrimSilence *bool
	NumSpeakers *int
}

// UpdateChunkInput carries the user-editable fields; nil leaves a field
// untouched. TranscriptText covers manual corrections after review.
type UpdateChunkInput struct {
	Title          *string
	Description    *string
	TranscriptText *string
}

type ChunkService interface {
	Upload(ctx context.Context, in UploadChunkInput) (*models.Chunk, error)
	Get(ctx context.Context, id string) (*models.Chunk, error)
	Update(ctx context.Context, id string, in UpdateChunkInput) (*models.Chunk, error)
	ListStandalone(ctx context.Context, limit, offset int) ([]models.Chunk, error)
	// Retry re-queues a completed or failed chunk, clearing the previous
	// run's outputs.
	Retry(ctx context.Context, id string) (*models.Chunk, error)
	Delete(ctx context.Context, id string) error
	// Transcript streams the rendered transcript file.
	Transcript(ctx context.Context, id string) (io.ReadCloser, error)
	// Events returns the chunk's pipeline stage timeline, oldest first.
	Events(ctx context.Context, id string, limit int64) ([]models.PipelineEvent, error)
}

// ConversationRefresher is the slice of ConversationService that chunk
// mutations need to keep the parent conversation converged.
type ConversationRefresher interface {
	RefreshStatus(ctx context.Context, id string) error
}

type chunkService struct {
	chunks     postgres.ChunkRepo
	convs      postgres.ConversationRepo
	store      storage.Store
	cache      cache.Cache
	events     events.Publisher
	dispatcher Dispatcher
	refresher  ConversationRefresher
	runlog     mongorepo.EventRepository // nil disables the event log
	log        *logrus.Logger
}

func NewChunkService(
	chunks postgres.ChunkRepo,
	convs postgres.ConversationRepo,
	store storage.Store,
	c cache.Cache,
	pub events.Publisher,
	dispatcher Dispatcher,
	refresher ConversationRefresher,
	runlog mongorepo.EventRepository,
	log *logrus.Logger,
) ChunkService {
	return &chunkService{
		chunks: chunks, convs: convs, store: store,
		cache: c, events: pub, dispatcher: dispatcher, refresher: refresher,
		runlog: runlog, log: log,
	}
}

func (s *chunkService) Upload(ctx context.Context, in UploadChunkInput) (*models.Chunk, error) {
	const op = "ChunkService.Upload"

	if in.Filename == "" || in.Audio == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "audio file is required", nil)
	}
	if !storage.SupportedAudio(in.Filename) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "unsupported audio format", nil)
	}
	if in.Language != "" && !validLanguage(in.Language) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "language must be auto, en or he", nil)
	}
	if in.NumSpeakers != nil && (*in.NumSpeakers < 0 || *in.NumSpeakers > 10) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "num_speakers must be between 0 and 10", nil)
	}

	now := time.Now().UTC()
	chunk := &models.Chunk{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Filename:    in.Filename,
		Language:    in.Language,
		Status:      models.ChunkStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.TrimSilence != nil {
		chunk.TrimSilence = *in.TrimSilence
	}
	if in.NumSpeakers != nil {
		chunk.NumSpeakers = *in.NumSpeakers
	}

	if in.ConversationID != "" {
		conv, err := s.convs.GetByID(ctx, in.ConversationID)
		if err != nil {
			if errors.Is(err, utils.ErrNotFound) {
				return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
			}
			return nil, utils.E(utils.CodeInternal, op, "failed to get conversation", err)
		}

		// Unset options inherit the conversation's recording defaults.
		if chunk.Language == "" {
			chunk.Language = conv.Language
		}
		if in.TrimSilence == nil {
			chunk.TrimSilence = conv.TrimSilence
		}
		if in.NumSpeakers == nil {
			chunk.NumSpeakers = conv.NumSpeakers
		}

		idx, err := s.chunks.NextIndex(ctx, conv.ID)
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to allocate chunk index", err)
		}
		chunk.ConversationID = &conv.ID
		chunk.ChunkIndex = &idx
	}
	if chunk.Language == "" {
		chunk.Language = "auto"
	}

	path, err := s.store.SaveAudio(ctx, in.Filename, in.Audio)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store audio", err)
	}
	chunk.AudioPath = path

	if err := s.chunks.Insert(ctx, chunk); err != nil {
		if derr := s.store.Delete(ctx, path); derr != nil {
			s.log.WithError(derr).Warn("failed to remove orphaned audio file")
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to create chunk", err)
	}

	s.invalidate(ctx, chunk)
	s.publish(ctx, chunk, models.ChunkStatusPending, "queued")
	s.dispatcher.Dispatch(chunk.ID)
	return chunk, nil
}

func (s *chunkService) Get(ctx context.Context, id string) (*models.Chunk, error) {
	const op = "ChunkService.Get"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "chunk id is required", nil)
	}

	var cached models.Chunk
	if hit, err := s.cache.GetJSON(ctx, cache.ChunkKey(id), &cached); err == nil && hit {
		return &cached, nil
	}

	chunk, err := s.chunks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "chunk not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get chunk", err)
	}

	if err := s.cache.SetJSON(ctx, cache.ChunkKey(id), chunk, cache.DefaultTTL); err != nil {
		s.log.WithError(err).Warn("failed to cache chunk")
	}
	return chunk, nil
}

func (s *chunkService) Update(ctx context.Context, id string, in UpdateChunkInput) (*models.Chunk, error) {
	const op = "ChunkService.Update"

	chunk, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if in.Title != nil {
		fields["title"] = *in.Title
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.TranscriptText != nil {
		fields["transcript_text"] = *in.TranscriptText
	}
	if len(fields) == 0 {
		return chunk, nil
	}
	fields["updated_at"] = time.Now().UTC()

	if err := s.chunks.UpdateMeta(ctx, id, fields); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "chunk not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to update chunk", err)
	}
	s.invalidate(ctx, chunk)

	fresh, err := s.chunks.GetByID(ctx, id)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to reload chunk", err)
	}
	return fresh, nil
}

func (s *chunkService) ListStandalone(ctx context.Context, limit, offset int) ([]models.Chunk, error) {
	const op = "ChunkService.ListStandalone"

	rows, err := s.chunks.ListStandalone(ctx, limit, offset)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list chunks", err)
	}
	return rows, nil
}

func (s *chunkService) Retry(ctx context.Context, id string) (*models.Chunk, error) {
	const op = "ChunkService.Retry"

	chunk, err := s.chunks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "chunk not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get chunk", err)
	}

	ok, err := s.chunks.ResetForRetry(ctx, id)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to reset chunk", err)
	}
	if !ok {
		return nil, utils.E(utils.CodeConflict, op, "chunk is still being processed", nil)
	}

	s.invalidate(ctx, chunk)
	s.refreshConversation(ctx, chunk)
	s.publish(ctx, chunk, models.ChunkStatusPending, "retry queued")
	s.dispatcher.Dispatch(id)

	return s.chunks.GetByID(ctx, id)
}

func (s *chunkService) Delete(ctx context.Context, id string) error {
	const op = "ChunkService.Delete"

	chunk, err := s.chunks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "chunk not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to get chunk", err)
	}

	if err := s.store.Delete(ctx, chunk.AudioPath); err != nil {
		s.log.WithError(err).WithField("chunk_id", id).Warn("failed to delete audio file")
	}
	if err := s.store.Delete(ctx, chunk.TranscriptPath); err != nil {
		s.log.WithError(err).WithField("chunk_id", id).Warn("failed to delete transcript file")
	}
	if err := s.chunks.Delete(ctx, id); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to delete chunk", err)
	}

	s.invalidate(ctx, chunk)
	s.refreshConversation(ctx, chunk)
	return nil
}

func (s *chunkService) Transcript(ctx context.Context, id string) (io.ReadCloser, error) {
	const op = "ChunkService.Transcript"

	chunk, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if chunk.TranscriptPath == "" {
		return nil, utils.E(utils.CodeNotFound, op, "transcript not available", nil)
	}

	rc, err := s.store.Open(ctx, chunk.TranscriptPath)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to open transcript", err)
	}
	return rc, nil
}

func (s *chunkService) Events(ctx context.Context, id string, limit int64) ([]models.PipelineEvent, error) {
	const op = "ChunkService.Events"

	if s.runlog == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "event log is not configured", nil)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.runlog.ListByChunk(ctx, id, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load pipeline events", err)
	}
	return rows, nil
}

func (s *chunkService) invalidate(ctx context.Context, chunk *models.Chunk) {
	keys := []string{cache.ChunkKey(chunk.ID)}
	if chunk.ConversationID != nil {
		keys = append(keys, cache.ConversationKey(*chunk.ConversationID))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.WithError(err).Warn("failed to invalidate caches")
	}
}

func (s *chunkService) refreshConversation(ctx context.Context, chunk *models.Chunk) {
	if chunk.ConversationID == nil {
		return
	}
	// Refresh uses its own timeout so cancellation of the request does not
	// leave the conversation stale.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.refresher.RefreshStatus(rctx, *chunk.ConversationID); err != nil {
		s.log.WithError(err).WithField("conversation_id", *chunk.ConversationID).Warn("failed to refresh conversation status")
	}
}

func (s *chunkService) publish(ctx context.Context, chunk *models.Chunk, status, message string) {
	ev := events.StatusEvent{ChunkID: chunk.ID, Status: status, Message: message}
	if chunk.ConversationID != nil {
		ev.ConversationID = *chunk.ConversationID
	}
	s.events.PublishStatus(ctx, ev)
}
