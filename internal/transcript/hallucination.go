package transcript

import (
	"strings"
	"unicode"
)

// Generic filler phrases Whisper-style models emit on silence or noise.
// An exact match (optionally with a trailing period) classifies the whole
// transcript as hallucinated.
var hallucinationPhrases = []string{
	"thank you",
	"thanks for watching",
	"subscribe",
	"like and subscribe",
	"see you next time",
	"bye",
	"goodbye",
}

// IsLikelyHallucination reports whether ASR output looks like a
// low-confidence hallucination rather than real speech. It is a pure
// heuristic over the text: denylisted filler phrases, a single word
// dominating the output, or a short phrase repeating through most of it.
func IsLikelyHallucination(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}

	for _, phrase := range hallucinationPhrases {
		if text == phrase || text == phrase+"." {
			return true
		}
	}

	words := strings.Fields(text)

	// Single word repeated many times, e.g. "diy diy diy diy diy today".
	if len(words) >= 4 {
		counts := make(map[string]int, len(words))
		for _, w := range words {
			if clean := stripNonAlnum(w); clean != "" {
				counts[clean]++
			}
		}
		for _, n := range counts {
			if n >= 4 && float64(n)/float64(len(words)) > 0.4 {
				return true
			}
		}
	}

	// Leading phrase of 1..4 words repeated 3+ times covering most of the text.
	if len(words) >= 6 {
		maxLen := len(words) / 3
		if maxLen > 4 {
			maxLen = 4
		}
		for n := 1; n <= maxLen; n++ {
			phrase := strings.Join(words[:n], " ")
			count := strings.Count(text, phrase)
			if count >= 3 && float64(len(phrase)*count) > float64(len(text))*0.5 {
				return true
			}
		}
	}

	return false
}

func stripNonAlnum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
