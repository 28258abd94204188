package workers

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPipeline struct {
	mu  sync.Mutex
	ids []string
}

func (p *countingPipeline) Process(_ context.Context, chunkID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, chunkID)
	return nil
}

func TestDispatchRunsEachChunk(t *testing.T) {
	pipeline := &countingPipeline{}
	d := NewDispatcher(pipeline, time.Minute, testLogger())

	d.Dispatch("a")
	d.Dispatch("b")
	d.Dispatch("c")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, pipeline.ids)
}

type blockingPipeline struct{ release chan struct{} }

func (p *blockingPipeline) Process(ctx context.Context, _ string) error {
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestShutdownTimesOut(t *testing.T) {
	pipeline := &blockingPipeline{release: make(chan struct{})}
	d := NewDispatcher(pipeline, time.Minute, testLogger())
	d.Dispatch("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, d.Shutdown(ctx))

	close(pipeline.release)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
