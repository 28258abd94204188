package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yooscribe/internal/audio"
	"github.com/yoockh/yooscribe/internal/cache"
	"github.com/yoockh/yooscribe/internal/events"
	"github.com/yoockh/yooscribe/internal/models"
	"github.com/yoockh/yooscribe/internal/providers/asr"
	"github.com/yoockh/yooscribe/internal/providers/diarize"
	mongorepo "github.com/yoockh/yooscribe/internal/repositories/mongo"
	"github.com/yoockh/yooscribe/internal/repositories/postgres"
	"github.com/yoockh/yooscribe/internal/storage"
	"github.com/yoockh/yooscribe/internal/transcript"
	"github.com/yoockh/yooscribe/internal/utils"
)

// AudioConditioner prepares an uploaded file for the engines.
type AudioConditioner interface {
	Condition(ctx context.Context, path string, wantTrim bool) *audio.Conditioned
}

// PipelineService runs the full transcription pipeline for one chunk:
// conditioning, language handling, recognition, hallucination filtering,
// optional diarization and persistence.
type PipelineService interface {
	Process(ctx context.Context, chunkID string) error
}

type pipelineService struct {
	chunks      postgres.ChunkRepo
	conditioner AudioConditioner
	asr         asr.Engine
	diar        diarize.Engine // nil when no diarization backend is configured
	store       storage.Store
	cache       cache.Cache
	events      events.Publisher
	runlog      mongorepo.EventRepository // nil disables the event log
	refresher   ConversationRefresher
	log         *logrus.Logger
}

func NewPipelineService(
	chunks postgres.ChunkRepo,
	conditioner AudioConditioner,
	engine asr.Engine,
	diar diarize.Engine,
	store storage.Store,
	c cache.Cache,
	pub events.Publisher,
	runlog mongorepo.EventRepository,
	refresher ConversationRefresher,
	log *logrus.Logger,
) PipelineService {
	return &pipelineService{
		chunks: chunks, conditioner: conditioner, asr: engine, diar: diar,
		store: store, cache: c, events: pub, runlog: runlog,
		refresher: refresher, log: log,
	}
}

func (s *pipelineService) Process(ctx context.Context, chunkID string) error {
	const op = "PipelineService.Process"

	chunk, err := s.chunks.GetByID(ctx, chunkID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "chunk not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to load chunk", err)
	}

	claimed, err := s.chunks.Claim(ctx, chunkID)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to claim chunk", err)
	}
	if !claimed {
		// Someone else took it, or a retry reset raced us. Either way the
		// chunk is not ours to process.
		return nil
	}
	s.publish(ctx, chunk, models.ChunkStatusProcessing, "", "processing started")

	log := s.log.WithField("chunk_id", chunkID)

	stageStart := time.Now()
	cond := s.conditioner.Condition(ctx, chunk.AudioPath, chunk.TrimSilence)
	// The engines must all see the same conditioned file, so intermediates
	// live until the very end of the run.
	defer cond.Cleanup(s.log)
	s.logStage(ctx, chunk, models.StageConditioning, "succeeded", "", stageStart)

	if cond.DurationSec < audio.MinDurationSec {
		log.WithField("duration_sec", cond.DurationSec).Info("audio too short, completing with empty result")
		return s.completeEmpty(ctx, chunk, cond.DurationSec)
	}

	lang := chunk.Language
	if lang == "" || lang == "auto" {
		lang = s.detectLanguage(ctx, cond.Path, log)
	}
	chunk.DetectedLanguage = lang

	stageStart = time.Now()
	result, err := s.asr.Transcribe(ctx, cond.Path, asr.Options{
		Language: lang,
		Task:     asr.TaskTranslate,
	})
	if err != nil {
		s.logStage(ctx, chunk, models.StageASR, "failed", err.Error(), stageStart)
		s.fail(ctx, chunk, "transcription failed: "+err.Error())
		return utils.E(utils.CodeUnavailable, op, "transcription failed", err)
	}
	s.logStage(ctx, chunk, models.StageASR, "succeeded", "language="+lang, stageStart)

	text := strings.TrimSpace(result.Text)
	if transcript.IsLikelyHallucination(text) {
		log.WithField("text", text).Info("transcript classified as hallucination")
		text = ""
		chunk.IsHallucination = true
	}
	chunk.TranscriptText = text
	chunk.DurationSec = &result.Duration

	var diag *models.DiarizationResult
	if chunk.NumSpeakers > 0 {
		stageStart = time.Now()
		var degraded bool
		diag, degraded = s.diarize(ctx, chunk, cond.Path, result.Segments, log)
		if degraded {
			s.logStage(ctx, chunk, models.StageDiarization, "failed", "kept plain transcript", stageStart)
		} else {
			s.logStage(ctx, chunk, models.StageDiarization, "succeeded", "", stageStart)
		}

		payload, merr := json.Marshal(diag)
		if merr != nil {
			s.fail(ctx, chunk, "failed to encode diarization: "+merr.Error())
			return utils.E(utils.CodeInternal, op, "failed to encode diarization", merr)
		}
		chunk.Diarization = payload
	}

	s.saveTranscriptFile(ctx, chunk, diag, log)

	stageStart = time.Now()
	if err := s.chunks.Complete(ctx, chunk); err != nil {
		s.logStage(ctx, chunk, models.StagePersist, "failed", err.Error(), stageStart)
		s.fail(ctx, chunk, "failed to persist result: "+err.Error())
		return utils.E(utils.CodeInternal, op, "failed to persist result", err)
	}
	s.logStage(ctx, chunk, models.StagePersist, "succeeded", "", stageStart)

	s.finish(ctx, chunk, models.ChunkStatusCompleted, "chunk processed")
	return nil
}

// completeEmpty finishes a chunk whose audio is too short for the engines.
// This is a success, not a failure: a silent tail chunk is normal at the end
// of a recording.
func (s *pipelineService) completeEmpty(ctx context.Context, chunk *models.Chunk, duration float64) error {
	const op = "PipelineService.Process"

	chunk.DurationSec = &duration
	chunk.TranscriptText = ""
	chunk.DetectedLanguage = requestedOrEnglish(chunk.Language)
	if chunk.NumSpeakers > 0 {
		payload, err := json.Marshal(models.EmptyDiarizationResult())
		if err == nil {
			chunk.Diarization = payload
		}
	}

	if err := s.chunks.Complete(ctx, chunk); err != nil {
		s.fail(ctx, chunk, "failed to persist result: "+err.Error())
		return utils.E(utils.CodeInternal, op, "failed to persist result", err)
	}
	s.finish(ctx, chunk, models.ChunkStatusCompleted, "audio too short, empty transcript")
	return nil
}

// detectLanguage scores the supported languages and picks the winner.
// English wins ties; any detection failure also falls back to English.
func (s *pipelineService) detectLanguage(ctx context.Context, audioPath string, log *logrus.Entry) string {
	probs, err := s.asr.DetectLanguage(ctx, audioPath, []string{"en", "he"})
	if err != nil {
		log.WithError(err).Warn("language detection failed, assuming English")
		return "en"
	}
	if probs["en"] >= probs["he"] {
		return "en"
	}
	return "he"
}

// diarize labels the transcript segments with speakers. Diarization failure
// never fails the chunk; the transcript just ships without speaker labels.
func (s *pipelineService) diarize(ctx context.Context, chunk *models.Chunk, audioPath string, segments []asr.Segment, log *logrus.Entry) (*models.DiarizationResult, bool) {
	var turns []transcript.Turn
	var err error
	if s.diar == nil {
		err = errors.New("no diarization backend configured")
	} else {
		turns, err = s.diar.Diarize(ctx, audioPath, diarize.Speakers{Num: chunk.NumSpeakers})
	}
	if err != nil {
		log.WithError(err).Warn("diarization failed, keeping plain transcript")
		empty := models.EmptyDiarizationResult()
		return &empty, true
	}

	segs := make([]transcript.Segment, 0, len(segments))
	for _, seg := range segments {
		segs = append(segs, transcript.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	res := transcript.MergeSpeakers(segs, turns)
	return &res, false
}

// saveTranscriptFile renders the downloadable transcript. Failure here is
// logged and tolerated; the text is already persisted on the row.
func (s *pipelineService) saveTranscriptFile(ctx context.Context, chunk *models.Chunk, diag *models.DiarizationResult, log *logrus.Entry) {
	content := chunk.TranscriptText
	if diag != nil && diag.FullText != "" {
		content = diag.FullText
	}
	if content == "" {
		return
	}

	path, err := s.store.SaveTranscript(ctx, chunk.ID+".txt", []byte(content))
	if err != nil {
		log.WithError(err).Warn("failed to write transcript file")
		return
	}
	chunk.TranscriptPath = path
}

func (s *pipelineService) fail(ctx context.Context, chunk *models.Chunk, message string) {
	if err := s.chunks.Fail(ctx, chunk.ID, message); err != nil {
		s.log.WithError(err).WithField("chunk_id", chunk.ID).Error("failed to mark chunk failed")
	}
	s.finish(ctx, chunk, models.ChunkStatusFailed, message)
}

// finish invalidates caches, converges the parent conversation and notifies
// watchers.
func (s *pipelineService) finish(ctx context.Context, chunk *models.Chunk, status, message string) {
	keys := []string{cache.ChunkKey(chunk.ID)}
	if chunk.ConversationID != nil {
		keys = append(keys, cache.ConversationKey(*chunk.ConversationID))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.WithError(err).Warn("failed to invalidate caches")
	}

	if chunk.ConversationID != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.refresher.RefreshStatus(rctx, *chunk.ConversationID); err != nil {
			s.log.WithError(err).WithField("conversation_id", *chunk.ConversationID).Warn("failed to refresh conversation status")
		}
	}

	s.publish(ctx, chunk, status, "", message)
}

func (s *pipelineService) publish(ctx context.Context, chunk *models.Chunk, status, stage, message string) {
	ev := events.StatusEvent{ChunkID: chunk.ID, Status: status, Stage: stage, Message: message}
	if chunk.ConversationID != nil {
		ev.ConversationID = *chunk.ConversationID
	}
	s.events.PublishStatus(ctx, ev)
}

func (s *pipelineService) logStage(ctx context.Context, chunk *models.Chunk, stage, status, detail string, start time.Time) {
	if s.runlog == nil {
		return
	}
	err := s.runlog.Insert(ctx, &models.PipelineEvent{
		ChunkID:   chunk.ID,
		Stage:     stage,
		Status:    status,
		Detail:    detail,
		ElapsedMS: time.Since(start).Milliseconds(),
	})
	if err != nil {
		s.log.WithError(err).Warn("failed to record pipeline event")
	}
}

func requestedOrEnglish(lang string) string {
	if lang == "en" || lang == "he" {
		return lang
	}
	return "en"
}
