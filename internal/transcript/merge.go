package transcript

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yoockh/yooscribe/internal/models"
)

// UnknownSpeaker labels ASR segments that overlap no diarization turn.
const UnknownSpeaker = "UNKNOWN"

// Segment is a timed span of recognized text from the ASR engine.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Turn is one speaker turn from the diarization engine, in insertion order.
type Turn struct {
	Start   float64
	End     float64
	Speaker string
}

// MergeSpeakers fuses ASR segments with diarization turns into a
// speaker-labeled transcript. Each non-empty segment is assigned the turn
// with the largest temporal overlap; consecutive segments with the same
// speaker are consolidated into paragraphs.
func MergeSpeakers(segments []Segment, turns []Turn) models.DiarizationResult {
	raw := make([]models.SpeakerSegment, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		raw = append(raw, models.SpeakerSegment{
			Start:   round3(seg.Start),
			End:     round3(seg.End),
			Speaker: speakerFor(seg.Start, seg.End, turns),
			Text:    text,
		})
	}

	return models.DiarizationResult{
		Segments:    Consolidate(raw),
		RawSegments: raw,
		Speakers:    distinctSpeakers(raw),
		FullText:    FormatTranscript(Consolidate(raw)),
	}
}

// speakerFor picks the turn with maximal overlap with [start, end].
// Ties resolve to the first turn in insertion order (strict improvement
// required to switch); no overlap at all yields UnknownSpeaker.
func speakerFor(start, end float64, turns []Turn) string {
	best := UnknownSpeaker
	bestOverlap := 0.0
	for _, t := range turns {
		overlap := math.Min(end, t.End) - math.Max(start, t.Start)
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = t.Speaker
		}
	}
	return best
}

// Consolidate merges consecutive segments sharing a speaker into a single
// paragraph: texts joined with one space, start from the first segment,
// end extended to the last. A speaker change starts a new paragraph.
func Consolidate(segments []models.SpeakerSegment) []models.SpeakerSegment {
	out := make([]models.SpeakerSegment, 0, len(segments))
	for _, seg := range segments {
		if n := len(out); n > 0 && out[n-1].Speaker == seg.Speaker {
			out[n-1].Text += " " + seg.Text
			out[n-1].End = seg.End
			continue
		}
		out = append(out, seg)
	}
	return out
}

// FormatTranscript renders one "[SPEAKER]: text" line per paragraph.
func FormatTranscript(segments []models.SpeakerSegment) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		lines = append(lines, fmt.Sprintf("[%s]: %s", seg.Speaker, seg.Text))
	}
	return strings.Join(lines, "\n")
}

func distinctSpeakers(segments []models.SpeakerSegment) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, seg := range segments {
		if _, ok := seen[seg.Speaker]; !ok {
			seen[seg.Speaker] = struct{}{}
			out = append(out, seg.Speaker)
		}
	}
	sort.Strings(out)
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
