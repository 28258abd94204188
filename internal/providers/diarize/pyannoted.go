package diarize

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
	"strconv"
	"strings"
	"time"

	"github.com/yoockh/yooscribe/internal/transcript"
)

// Pyannoted talks to a pyannote HTTP sidecar. It must be fed the exact same
// waveform as the ASR engine or the turn timestamps will not line up with
// the transcript segments.
type Pyannoted struct {
	baseURL string
	http    *http.Client
}

func NewPyannoted(baseURL string) *Pyannoted {
	return &Pyannoted{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

func (p *Pyannoted) Diarize(ctx context.Context, audioPath string, speakers Speakers) ([]transcript.Turn, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy audio: %w", err)
	}
	if speakers.Num > 0 {
		writer.WriteField("num_speakers", strconv.Itoa(speakers.Num))
	} else {
		if speakers.Min > 0 {
			writer.WriteField("min_speakers", strconv.Itoa(speakers.Min))
		}
		if speakers.Max > 0 {
			writer.WriteField("max_speakers", strconv.Itoa(speakers.Max))
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/diarize", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pyannoted request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("pyannoted: status %d: %s", resp.StatusCode, string(b))
	}

	var payload struct {
		Turns []struct {
			Start   float64 `json:"start"`
			End     float64 `json:"end"`
			Speaker string  `json:"speaker"`
		} `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("pyannoted: decode response: %w", err)
	}

	turns := make([]transcript.Turn, 0, len(payload.Turns))
	for _, t := range payload.Turns {
		turns = append(turns, transcript.Turn{Start: t.Start, End: t.End, Speaker: t.Speaker})
	}
	return turns, nil
}

func (p *Pyannoted) Close() error { return nil }
