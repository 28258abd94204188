package asr

import (
	"context"
	"sync"
)

// Factory builds an Engine on first use.
type Factory func(ctx context.Context) (Engine, error)

// Lazy defers engine construction until the first request so the server
// starts fast and model warmup cost lands on the request that needs it.
// A failed build is sticky until the process restarts.
type Lazy struct {
	build Factory

	once   sync.Once
	engine Engine
	err    error
}

func NewLazy(build Factory) *Lazy {
	return &Lazy{build: build}
}

func (l *Lazy) get(ctx context.Context) (Engine, error) {
	l.once.Do(func() {
		l.engine, l.err = l.build(ctx)
	})
	return l.engine, l.err
}

func (l *Lazy) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	e, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return e.Transcribe(ctx, audioPath, opts)
}

func (l *Lazy) DetectLanguage(ctx context.Context, audioPath string, candidates []string) (map[string]float64, error) {
	e, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return e.DetectLanguage(ctx, audioPath, candidates)
}

func (l *Lazy) Close() error {
	if l.engine != nil {
		return l.engine.Close()
	}
	return nil
}
