package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskStore keeps audio and transcripts on the local filesystem. Filenames
// are regenerated from a UUID so client-supplied names never touch the disk;
// only the extension survives.
type DiskStore struct {
	audioDir      string
	transcriptDir string
}

func NewDiskStore(audioDir, transcriptDir string) (*DiskStore, error) {
	for _, dir := range []string{audioDir, transcriptDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return &DiskStore{audioDir: audioDir, transcriptDir: transcriptDir}, nil
}

func (s *DiskStore) SaveAudio(ctx context.Context, filename string, r io.Reader) (string, error) {
	if !SupportedAudio(filename) {
		return "", fmt.Errorf("unsupported audio format %q", filepath.Ext(filename))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(s.audioDir, strings.ReplaceAll(uuid.NewString(), "-", "")+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *DiskStore) SaveTranscript(ctx context.Context, filename string, data []byte) (string, error) {
	path := filepath.Join(s.transcriptDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

func (s *DiskStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (s *DiskStore) Delete(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
