package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Whisperd talks to a faster-whisper HTTP sidecar. Decode parameters are
// pinned to the values that keep hallucination on noisy chunks low:
// previous-text conditioning off and aggressive no-speech gating.
type Whisperd struct {
	baseURL string
	http    *http.Client
}

// NewWhisperd builds a client for the sidecar at baseURL. Transcription of a
// chunk takes roughly real time, so the timeout covers the longest chunk the
// recorder produces with a wide margin.
func NewWhisperd(baseURL string) *Whisperd {
	return &Whisperd{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

func (w *Whisperd) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	fields := map[string]string{
		"task":                        opts.Task,
		"condition_on_previous_text":  "false",
		"no_speech_threshold":         "0.6",
		"compression_ratio_threshold": "2.4",
	}
	if opts.Task == "" {
		fields["task"] = TaskTranscribe
	}
	if opts.Language != "" && opts.Language != "auto" {
		fields["language"] = opts.Language
	}

	var result Result
	if err := w.postAudio(ctx, "/transcribe", audioPath, fields, &result); err != nil {
		return nil, err
	}

	// Duration is derived from the segments, not trusted from the sidecar.
	result.Duration = 0
	if n := len(result.Segments); n > 0 {
		result.Duration = result.Segments[n-1].End
	}
	return &result, nil
}

func (w *Whisperd) DetectLanguage(ctx context.Context, audioPath string, candidates []string) (map[string]float64, error) {
	fields := map[string]string{}
	if len(candidates) > 0 {
		fields["candidates"] = strings.Join(candidates, ",")
	}

	var resp struct {
		Probabilities map[string]float64 `json:"probabilities"`
	}
	if err := w.postAudio(ctx, "/detect-language", audioPath, fields, &resp); err != nil {
		return nil, err
	}
	return resp.Probabilities, nil
}

func (w *Whisperd) Close() error { return nil }

func (w *Whisperd) postAudio(ctx context.Context, endpoint, audioPath string, fields map[string]string, out any) error {
	file, err := os.Open(audioPath)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy audio: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("whisperd request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whisperd %s: status %d: %s", endpoint, resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("whisperd %s: decode response: %w", endpoint, err)
	}
	return nil
}
