package models

// SpeakerSegment is one speaker-attributed span of transcript.
type SpeakerSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
}

// DiarizationResult is the speaker-labeled view of a chunk transcript.
// Segments holds paragraph-consolidated speaker turns; RawSegments keeps the
// original ASR-segment granularity for detailed inspection.
type DiarizationResult struct {
	Segments    []SpeakerSegment `json:"segments"`
	RawSegments []SpeakerSegment `json:"raw_segments,omitempty"`
	Speakers    []string         `json:"speakers"`
	FullText    string           `json:"full_text"`
}

// EmptyDiarizationResult is persisted when diarization is unavailable or
// fails; the chunk still completes with the plain transcript.
func EmptyDiarizationResult() DiarizationResult {
	return DiarizationResult{
		Segments: []SpeakerSegment{},
		Speakers: []string{},
		FullText: "",
	}
}
