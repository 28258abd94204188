package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/yooscribe/internal/models"
	"github.com/yoockh/yooscribe/internal/providers/asr"
	"github.com/yoockh/yooscribe/internal/transcript"
)

type pipelineFixture struct {
	chunks  *fakeChunkRepo
	convs   *fakeConvRepo
	asr     *fakeASR
	diar    *fakeDiar
	pub     *fakePublisher
	store   *fakeStore
	runlog  *fakeEventLog
	convSvc ConversationService
	svc     PipelineService
}

func newPipelineFixture(duration float64, engine *fakeASR, diar *fakeDiar) *pipelineFixture {
	f := &pipelineFixture{
		chunks: newFakeChunkRepo(),
		asr:    engine,
		diar:   diar,
		pub:    &fakePublisher{},
		store:  newFakeStore(),
		runlog: &fakeEventLog{},
	}
	f.convs = newFakeConvRepo(f.chunks)

	log := discardLogger()
	f.convSvc = NewConversationService(f.convs, f.chunks, f.store, fakeCache{}, f.pub, log)
	f.svc = NewPipelineService(
		f.chunks,
		&fakeConditioner{duration: duration, path: "/tmp/cond.wav"},
		f.asr,
		f.diar,
		f.store,
		fakeCache{},
		f.pub,
		f.runlog,
		f.convSvc,
		log,
	)
	return f
}

func (f *pipelineFixture) addChunk(t *testing.T, chunk *models.Chunk) *models.Chunk {
	t.Helper()
	if chunk.Status == "" {
		chunk.Status = models.ChunkStatusPending
	}
	require.NoError(t, f.chunks.Insert(context.Background(), chunk))
	return chunk
}

func (f *pipelineFixture) addConversation(t *testing.T, status string) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{ID: "conv-1", Status: status, Language: "auto"}
	require.NoError(t, f.convs.Insert(context.Background(), conv))
	return conv
}

func (f *pipelineFixture) chunkState(t *testing.T, id string) *models.Chunk {
	t.Helper()
	c, err := f.chunks.GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func TestProcessShortAudio(t *testing.T) {
	engine := &fakeASR{}
	f := newPipelineFixture(0.3, engine, &fakeDiar{})
	f.addChunk(t, &models.Chunk{ID: "c1", AudioPath: "/audio/a.wav", Language: "auto"})

	require.NoError(t, f.svc.Process(context.Background(), "c1"))

	c := f.chunkState(t, "c1")
	assert.Equal(t, models.ChunkStatusCompleted, c.Status)
	require.NotNil(t, c.DurationSec)
	assert.Equal(t, 0.3, *c.DurationSec)
	assert.Empty(t, c.TranscriptText)
	assert.Equal(t, "en", c.DetectedLanguage)
	assert.NotNil(t, c.CompletedAt)

	// No engine was invoked for a sub-threshold clip.
	assert.Zero(t, engine.transcribes)
	assert.Zero(t, engine.detects)
}

func TestProcessShortAudioKeepsRequestedLanguage(t *testing.T) {
	f := newPipelineFixture(0.1, &fakeASR{}, &fakeDiar{})
	f.addChunk(t, &models.Chunk{ID: "c1", AudioPath: "/audio/a.wav", Language: "he"})

	require.NoError(t, f.svc.Process(context.Background(), "c1"))
	assert.Equal(t, "he", f.chunkState(t, "c1").DetectedLanguage)
}

func TestProcessHappyPathWithDiarization(t *testing.T) {
	engine := &fakeASR{result: &asr.Result{
		Text:     "Hello there. General greeting.",
		Language: "en",
		Segments: []asr.Segment{
			{Start: 0, End: 2.0, Text: "Hello there."},
			{Start: 2.0, End: 4.5, Text: "General greeting."},
		},
		Duration: 4.5,
	}}
	diar := &fakeDiar{turns: []transcript.Turn{
		{Start: 0, End: 2.0, Speaker: "SPEAKER_00"},
		{Start: 2.0, End: 5.0, Speaker: "SPEAKER_01"},
	}}
	f := newPipelineFixture(10, engine, diar)
	conv := f.addConversation(t, models.ConversationStatusProcessing)
	idx := 0
	f.addChunk(t, &models.Chunk{
		ID: "c1", ConversationID: &conv.ID, ChunkIndex: &idx,
		AudioPath: "/audio/a.wav", Language: "en", NumSpeakers: 2,
	})

	require.NoError(t, f.svc.Process(context.Background(), "c1"))

	c := f.chunkState(t, "c1")
	assert.Equal(t, models.ChunkStatusCompleted, c.Status)
	assert.Equal(t, "Hello there. General greeting.", c.TranscriptText)
	assert.Equal(t, "en", c.DetectedLanguage)
	require.NotNil(t, c.DurationSec)
	assert.Equal(t, 4.5, *c.DurationSec)
	assert.Equal(t, asr.TaskTranslate, engine.lastOpts.Task)
	assert.Zero(t, engine.detects) // explicit language skips detection

	var diag models.DiarizationResult
	require.NoError(t, json.Unmarshal(c.Diarization, &diag))
	assert.Equal(t, []string{"SPEAKER_00", "SPEAKER_01"}, diag.Speakers)
	assert.Equal(t, "[SPEAKER_00]: Hello there.\n[SPEAKER_01]: General greeting.", diag.FullText)

	// Transcript file carries the speaker-labeled rendering.
	rc, err := f.store.Open(context.Background(), c.TranscriptPath)
	require.NoError(t, err)
	rc.Close()

	// Parent conversation converged to completed.
	got, err := f.convs.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationStatusCompleted, got.Status)
	assert.Equal(t, 4.5, got.TotalDurationSec)

	// Every stage left a timeline entry.
	var stages []string
	for _, e := range f.runlog.rows {
		stages = append(stages, e.Stage+"="+e.Status)
	}
	assert.Equal(t, []string{
		"conditioning=succeeded",
		"asr=succeeded",
		"diarization=succeeded",
		"persist=succeeded",
	}, stages)
}

func TestProcessLanguageDetectionTieBreak(t *testing.T) {
	engine := &fakeASR{
		result: &asr.Result{Text: "hi", Segments: []asr.Segment{{Start: 0, End: 1, Text: "hi"}}, Duration: 1},
		detect: map[string]float64{"en": 0.5, "he": 0.5},
	}
	f := newPipelineFixture(10, engine, &fakeDiar{})
	f.addChunk(t, &models.Chunk{ID: "c1", AudioPath: "/audio/a.wav", Language: "auto"})

	require.NoError(t, f.svc.Process(context.Background(), "c1"))

	assert.Equal(t, 1, engine.detects)
	assert.Equal(t, "en", f.chunkState(t, "c1").DetectedLanguage)
	assert.Equal(t, "en", engine.lastOpts.Language)
}

func TestProcessLanguageDetectionHebrew(t *testing.T) {
	engine := &fakeASR{
		result: &asr.Result{Text: "shalom", Segments: []asr.Segment{{Start: 0, End: 1, Text: "shalom"}}, Duration: 1},
		detect: map[string]float64{"en": 0.2, "he": 0.8},
	}
	f := newPipelineFixture(10, engine, &fakeDiar{})
	f.addChunk(t, &models.Chunk{ID: "c1", AudioPath: "/audio/a.wav", Language: ""})

	require.NoError(t, f.svc.Process(context.Background(), "c1"))
	assert.Equal(t, "he", f.chunkState(t, "c1").DetectedLanguage)
}

func TestProcessASRFailure(t *testing.T) {
	engine := &fakeASR{err: fmt.Errorf("sidecar unreachable")}
	f := newPipelineFixture(10, engine, &fakeDiar{})
	conv := f.addConversation(t, models.ConversationStatusProcessing)
	idx := 0
	f.addChunk(t, &models.Chunk{
		ID: "c1", ConversationID: &conv.ID, ChunkIndex: &idx,
		AudioPath: "/audio/a.wav", Language: "en",
	})

	err := f.svc.Process(context.Background(), "c1")
	require.Error(t, err)

	c := f.chunkState(t, "c1")
	assert.Equal(t, models.ChunkStatusFailed, c.Status)
	assert.Contains(t, c.ErrorMessage, "transcription failed")

	got, gerr := f.convs.GetByID(context.Background(), conv.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.ConversationStatusFailed, got.Status)
	assert.Contains(t, f.pub.statuses(), models.ChunkStatusFailed)
}

func TestProcessDiarizationFailureStillCompletes(t *testing.T) {
	engine := &fakeASR{result: &asr.Result{
		Text:     "real speech about the project plan",
		Segments: []asr.Segment{{Start: 0, End: 3, Text: "real speech about the project plan"}},
		Duration: 3,
	}}
	f := newPipelineFixture(10, engine, &fakeDiar{err: fmt.Errorf("pipeline crashed")})
	f.addChunk(t, &models.Chunk{ID: "c1", AudioPath: "/audio/a.wav", Language: "en", NumSpeakers: 2})

	require.NoError(t, f.svc.Process(context.Background(), "c1"))

	c := f.chunkState(t, "c1")
	assert.Equal(t, models.ChunkStatusCompleted, c.Status)
	assert.Equal(t, "real speech about the project plan", c.TranscriptText)

	var diag models.DiarizationResult
	require.NoError(t, json.Unmarshal(c.Diarization, &diag))
	assert.Empty(t, diag.Segments)
	assert.Empty(t, diag.Speakers)
	assert.Empty(t, diag.FullText)

	events, err := f.runlog.ListByChunk(context.Background(), "c1", 0)
	require.NoError(t, err)
	var diarStatus string
	for _, e := range events {
		if e.Stage == models.StageDiarization {
			diarStatus = e.Status
		}
	}
	assert.Equal(t, "failed", diarStatus)
}

func TestProcessHallucinationCleared(t *testing.T) {
	engine := &fakeASR{result: &asr.Result{
		Text:     " Thank you. ",
		Segments: []asr.Segment{{Start: 0, End: 1.5, Text: " Thank you. "}},
		Duration: 1.5,
	}}
	f := newPipelineFixture(10, engine, &fakeDiar{})
	f.addChunk(t, &models.Chunk{ID: "c1", AudioPath: "/audio/a.wav", Language: "en"})

	require.NoError(t, f.svc.Process(context.Background(), "c1"))

	c := f.chunkState(t, "c1")
	assert.Equal(t, models.ChunkStatusCompleted, c.Status)
	assert.Empty(t, c.TranscriptText)
	assert.True(t, c.IsHallucination)
	assert.Empty(t, c.TranscriptPath)
}

func TestProcessSkipsNonPendingChunk(t *testing.T) {
	engine := &fakeASR{}
	f := newPipelineFixture(10, engine, &fakeDiar{})
	f.addChunk(t, &models.Chunk{ID: "c1", AudioPath: "/audio/a.wav", Status: models.ChunkStatusProcessing})

	require.NoError(t, f.svc.Process(context.Background(), "c1"))
	assert.Zero(t, engine.transcribes)
	assert.Equal(t, models.ChunkStatusProcessing, f.chunkState(t, "c1").Status)
}

func TestConversationCompleteEmpty(t *testing.T) {
	f := newPipelineFixture(10, &fakeASR{}, &fakeDiar{})
	conv := f.addConversation(t, models.ConversationStatusRecording)

	got, err := f.convSvc.Complete(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.WithinDuration(t, time.Now().UTC(), *got.CompletedAt, time.Minute)
}

func TestConversationCompleteRequiresRecording(t *testing.T) {
	f := newPipelineFixture(10, &fakeASR{}, &fakeDiar{})
	conv := f.addConversation(t, models.ConversationStatusProcessing)

	_, err := f.convSvc.Complete(context.Background(), conv.ID)
	require.Error(t, err)
}
