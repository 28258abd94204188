package diarize

import (
	"context"
	"sync"

	"github.com/yoockh/yooscribe/internal/transcript"
)

// Speakers constrains how many speakers the engine should look for.
// Num pins an exact count; otherwise Min/Max bound the search. Zero values
// leave the engine unconstrained.
type Speakers struct {
	Num int
	Min int
	Max int
}

type Engine interface {
	// Diarize segments the audio into speaker turns, in temporal order.
	Diarize(ctx context.Context, audioPath string, speakers Speakers) ([]transcript.Turn, error)
	Close() error
}

type Factory func(ctx context.Context) (Engine, error)

// Lazy defers engine construction until the first diarization request.
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

func (l *Lazy) Diarize(ctx context.Context, audioPath string, speakers Speakers) ([]transcript.Turn, error) {
	l.once.Do(func() {
		l.engine, l.err = l.build(ctx)
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.engine.Diarize(ctx, audioPath, speakers)
}

func (l *Lazy) Close() error {
	if l.engine != nil {
		return l.engine.Close()
	}
	return nil
}
