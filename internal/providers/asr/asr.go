package asr

import "context"

const (
	TaskTranscribe = "transcribe"
	TaskTranslate  = "translate"
)

// Options controls a single recognition request. Language "" or "auto"
// asks the engine to detect it.
type Options struct {
	Language string
	Task     string
}

// Segment is one timed span of recognized text.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the engine output. Duration is the end of the last segment,
// 0 when nothing was recognized.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
}

type Engine interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
	// DetectLanguage scores the candidate languages against a sample of the
	// audio and returns probability per candidate.
	DetectLanguage(ctx context.Context, audioPath string, candidates []string) (map[string]float64, error)
	Close() error
}
