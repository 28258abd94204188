package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yooscribe/internal/audio"
	"github.com/yoockh/yooscribe/internal/events"
	"github.com/yoockh/yooscribe/internal/models"
	"github.com/yoockh/yooscribe/internal/providers/asr"
	"github.com/yoockh/yooscribe/internal/providers/diarize"
	"github.com/yoockh/yooscribe/internal/transcript"
	"github.com/yoockh/yooscribe/internal/utils"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeChunkRepo struct {
	mu     sync.Mutex
	chunks map[string]*models.Chunk
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{chunks: map[string]*models.Chunk{}}
}

func (r *fakeChunkRepo) Insert(_ context.Context, c *models.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.chunks[c.ID] = &cp
	return nil
}

func (r *fakeChunkRepo) GetByID(_ context.Context, id string) (*models.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeChunkRepo) ListByConversation(_ context.Context, conversationID string) ([]models.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Chunk
	for _, c := range r.chunks {
		if c.ConversationID != nil && *c.ConversationID == conversationID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].ChunkIndex < *out[j].ChunkIndex })
	return out, nil
}

func (r *fakeChunkRepo) ListStandalone(_ context.Context, limit, offset int) ([]models.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Chunk
	for _, c := range r.chunks {
		if c.ConversationID == nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeChunkRepo) Claim(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[id]
	if !ok || c.Status != models.ChunkStatusPending {
		return false, nil
	}
	c.Status = models.ChunkStatusProcessing
	return true, nil
}

func (r *fakeChunkRepo) Complete(_ context.Context, chunk *models.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[chunk.ID]
	if !ok {
		return utils.ErrNotFound
	}
	now := time.Now().UTC()
	chunk.Status = models.ChunkStatusCompleted
	chunk.CompletedAt = &now
	chunk.ErrorMessage = ""

	c.Status = chunk.Status
	c.TranscriptText = chunk.TranscriptText
	c.TranscriptPath = chunk.TranscriptPath
	c.DurationSec = chunk.DurationSec
	c.DetectedLanguage = chunk.DetectedLanguage
	c.Diarization = chunk.Diarization
	c.IsHallucination = chunk.IsHallucination
	c.ErrorMessage = ""
	c.CompletedAt = chunk.CompletedAt
	return nil
}

func (r *fakeChunkRepo) Fail(_ context.Context, id, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[id]
	if !ok {
		return utils.ErrNotFound
	}
	c.Status = models.ChunkStatusFailed
	c.ErrorMessage = errorMessage
	return nil
}

func (r *fakeChunkRepo) ResetForRetry(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[id]
	if !ok {
		return false, nil
	}
	if c.Status != models.ChunkStatusCompleted && c.Status != models.ChunkStatusFailed {
		return false, nil
	}
	c.Status = models.ChunkStatusPending
	c.ErrorMessage = ""
	c.TranscriptText = ""
	c.TranscriptPath = ""
	c.CompletedAt = nil
	return true, nil
}

func (r *fakeChunkRepo) UpdateMeta(_ context.Context, id string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[id]
	if !ok {
		return utils.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "title":
			c.Title = v.(string)
		case "description":
			c.Description = v.(string)
		case "transcript_text":
			c.TranscriptText = v.(string)
		case "updated_at":
			c.UpdatedAt = v.(time.Time)
		}
	}
	return nil
}

func (r *fakeChunkRepo) NextIndex(_ context.Context, conversationID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := 0
	for _, c := range r.chunks {
		if c.ConversationID != nil && *c.ConversationID == conversationID && c.ChunkIndex != nil && *c.ChunkIndex >= next {
			next = *c.ChunkIndex + 1
		}
	}
	return next, nil
}

func (r *fakeChunkRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks, id)
	return nil
}

type fakeConvRepo struct {
	mu     sync.Mutex
	convs  map[string]*models.Conversation
	chunks *fakeChunkRepo
}

func newFakeConvRepo(chunks *fakeChunkRepo) *fakeConvRepo {
	return &fakeConvRepo{convs: map[string]*models.Conversation{}, chunks: chunks}
}

func (r *fakeConvRepo) Insert(_ context.Context, conv *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *conv
	r.convs[conv.ID] = &cp
	return nil
}

func (r *fakeConvRepo) GetByID(_ context.Context, id string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeConvRepo) GetWithChunks(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Chunks, _ = r.chunks.ListByConversation(ctx, id)
	return conv, nil
}

func (r *fakeConvRepo) List(_ context.Context, limit, offset int) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Conversation
	for _, c := range r.convs {
		out = append(out, *c)
	}
	return out, nil
}

func (r *fakeConvRepo) SetStatus(_ context.Context, id, status string, totalDurationSec float64, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return utils.ErrNotFound
	}
	c.Status = status
	c.TotalDurationSec = totalDurationSec
	if completedAt != nil {
		c.CompletedAt = completedAt
	}
	return nil
}

func (r *fakeConvRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.convs, id)
	return nil
}

type fakeCache struct{}

func (fakeCache) GetJSON(context.Context, string, any) (bool, error)          { return false, nil }
func (fakeCache) SetJSON(context.Context, string, any, time.Duration) error   { return nil }
func (fakeCache) Del(context.Context, ...string) error                        { return nil }

type fakePublisher struct {
	mu     sync.Mutex
	events []events.StatusEvent
}

func (p *fakePublisher) PublishStatus(_ context.Context, ev events.StatusEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Status)
	}
	return out
}

type fakeStore struct {
	mu    sync.Mutex
	files map[string][]byte
	n     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: map[string][]byte{}}
}

func (s *fakeStore) SaveAudio(_ context.Context, filename string, r io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.n++
	path := fmt.Sprintf("/audio/%d-%s", s.n, filename)
	s.files[path] = data
	return path, nil
}

func (s *fakeStore) SaveTranscript(_ context.Context, filename string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := "/transcripts/" + filename
	s.files[path] = data
	return path, nil
}

func (s *fakeStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file %s", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
	return nil
}

type fakeConditioner struct {
	duration float64
	path     string
}

func (c *fakeConditioner) Condition(_ context.Context, path string, _ bool) *audio.Conditioned {
	out := &audio.Conditioned{Path: c.path, DurationSec: c.duration}
	if c.path == "" {
		out.Path = path
	}
	return out
}

type fakeASR struct {
	mu             sync.Mutex
	result         *asr.Result
	err            error
	detect         map[string]float64
	detectErr      error
	transcribes    int
	detects        int
	lastOpts       asr.Options
}

func (f *fakeASR) Transcribe(_ context.Context, _ string, opts asr.Options) (*asr.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcribes++
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.result
	return &cp, nil
}

func (f *fakeASR) DetectLanguage(_ context.Context, _ string, _ []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detects++
	return f.detect, f.detectErr
}

func (f *fakeASR) Close() error { return nil }

type fakeDiar struct {
	turns  []transcript.Turn
	err    error
	called int
}

func (f *fakeDiar) Diarize(context.Context, string, diarize.Speakers) ([]transcript.Turn, error) {
	f.called++
	return f.turns, f.err
}

func (f *fakeDiar) Close() error { return nil }

type fakeDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *fakeDispatcher) Dispatch(chunkID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, chunkID)
}

type fakeEventLog struct {
	mu   sync.Mutex
	rows []models.PipelineEvent
}

func (l *fakeEventLog) Insert(_ context.Context, e *models.PipelineEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, *e)
	return nil
}

func (l *fakeEventLog) ListByChunk(_ context.Context, chunkID string, limit int64) ([]models.PipelineEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.PipelineEvent
	for _, e := range l.rows {
		if e.ChunkID == chunkID {
			out = append(out, e)
		}
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}
