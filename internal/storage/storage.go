package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// Store persists uploaded audio and rendered transcripts on the node that
// runs the pipeline. Paths returned by Save* are what the engines and the
// download endpoints consume.
type Store interface {
	SaveAudio(ctx context.Context, filename string, r io.Reader) (path string, err error)
	SaveTranscript(ctx context.Context, filename string, data []byte) (path string, err error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// Uploader archives objects to durable remote storage.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

type Signer interface {
	SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}

var supportedAudioExt = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".m4a": {}, ".flac": {}, ".ogg": {},
	".webm": {}, ".mp4": {}, ".mpeg": {}, ".mpga": {},
}

// SupportedAudio reports whether the filename carries an audio extension the
// pipeline accepts.
func SupportedAudio(filename string) bool {
	_, ok := supportedAudioExt[strings.ToLower(filepath.Ext(filename))]
	return ok
}
