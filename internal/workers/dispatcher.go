package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yooscribe/internal/services"
)

// Dispatcher runs the pipeline for each submitted chunk in its own
// goroutine. Chunks are not queued behind each other: a slow diarization on
// one chunk never delays the next upload, and ordering guarantees live in
// the data model, not in execution order.
type Dispatcher struct {
	pipeline services.PipelineService
	timeout  time.Duration
	log      *logrus.Logger

	wg sync.WaitGroup
}

func NewDispatcher(pipeline services.PipelineService, timeout time.Duration, log *logrus.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Dispatcher{pipeline: pipeline, timeout: timeout, log: log}
}

// Dispatch schedules one chunk for processing and returns immediately. The
// task owns its context; it is not tied to the uploading request.
func (d *Dispatcher) Dispatch(chunkID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		start := time.Now()
		if err := d.pipeline.Process(ctx, chunkID); err != nil {
			d.log.WithError(err).WithField("chunk_id", chunkID).Error("chunk processing failed")
			return
		}
		d.log.WithFields(logrus.Fields{
			"chunk_id":   chunkID,
			"elapsed_ms": time.Since(start).Milliseconds(),
		}).Info("chunk processed")
	}()
}

// Shutdown waits for in-flight chunks to finish or the context to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
