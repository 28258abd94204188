package asr

import (
	"context"
	"fmt"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

// bcp47 maps the short language tags used on the wire to the codes the
// Speech API expects.
var bcp47 = map[string]string{
	"en": "en-US",
	"he": "iw-IL",
}

// GoogleSpeech is the managed-API fallback engine, used when no whisper
// sidecar is deployed. It transcribes in the source language only; the
// translate task degrades to plain transcription here.
type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 16000,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func (g *GoogleSpeech) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	language := bcp47[opts.Language]
	if language == "" {
		language = "en-US"
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   g.Encoding,
			SampleRateHertz:            g.SampleRateHz,
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Language: shortTag(language)}
	var prevEnd float64
	var texts []string
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 || r.Alternatives[0].Transcript == "" {
			continue
		}
		end := prevEnd
		if r.ResultEndTime != nil {
			end = r.ResultEndTime.AsDuration().Seconds()
		}
		result.Segments = append(result.Segments, Segment{
			Start: prevEnd,
			End:   end,
			Text:  r.Alternatives[0].Transcript,
		})
		texts = append(texts, r.Alternatives[0].Transcript)
		prevEnd = end
	}
	result.Text = strings.Join(texts, " ")
	if n := len(result.Segments); n > 0 {
		result.Duration = result.Segments[n-1].End
	}
	return result, nil
}

// DetectLanguage recognizes against the first candidate with the rest as
// alternatives and reports which one the API picked. The API gives no
// per-language scores, so the winner gets probability 1.
func (g *GoogleSpeech) DetectLanguage(ctx context.Context, audioPath string, candidates []string) (map[string]float64, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidate languages")
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	primary := bcp47[candidates[0]]
	if primary == "" {
		primary = candidates[0]
	}
	var alternatives []string
	for _, c := range candidates[1:] {
		if code := bcp47[c]; code != "" {
			alternatives = append(alternatives, code)
		} else {
			alternatives = append(alternatives, c)
		}
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                 g.Encoding,
			SampleRateHertz:          g.SampleRateHz,
			LanguageCode:             primary,
			AlternativeLanguageCodes: alternatives,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return nil, err
	}

	detected := shortTag(primary)
	for _, r := range resp.Results {
		if r.LanguageCode != "" {
			detected = shortTag(r.LanguageCode)
			break
		}
	}

	probs := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		probs[c] = 0
	}
	probs[detected] = 1
	return probs, nil
}

func shortTag(code string) string {
	tag, _, _ := strings.Cut(strings.ToLower(code), "-")
	if tag == "iw" {
		tag = "he"
	}
	return tag
}
