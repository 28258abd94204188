package services

import "github.com/yoockh/yooscribe/internal/models"

// deriveConversationStatus computes a conversation's status from its chunks.
// It is pure so concurrent refreshes converge without locking: any order of
// refreshes over the same chunk rows yields the same answer.
//
// Rules, in precedence order:
//   - "recording" is frozen; chunks never move a conversation out of it
//   - no chunks leaves the status untouched
//   - all chunks completed -> completed
//   - any chunk pending or processing -> processing (wins over failed)
//   - otherwise -> failed
func deriveConversationStatus(current string, chunks []models.Chunk) string {
	if current == models.ConversationStatusRecording || len(chunks) == 0 {
		return current
	}

	allCompleted := true
	anyActive := false
	for _, c := range chunks {
		switch c.Status {
		case models.ChunkStatusCompleted:
		case models.ChunkStatusPending, models.ChunkStatusProcessing:
			anyActive = true
			allCompleted = false
		default:
			allCompleted = false
		}
	}

	switch {
	case allCompleted:
		return models.ConversationStatusCompleted
	case anyActive:
		return models.ConversationStatusProcessing
	default:
		return models.ConversationStatusFailed
	}
}

// totalDuration sums chunk durations, treating unprobed chunks as zero.
// Recomputed on every refresh regardless of status so the figure converges
// as chunks finish.
func totalDuration(chunks []models.Chunk) float64 {
	var sum float64
	for _, c := range chunks {
		if c.DurationSec != nil {
			sum += *c.DurationSec
		}
	}
	return sum
}
