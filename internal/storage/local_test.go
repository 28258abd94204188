package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportedAudio(t *testing.T) {
	assert.True(t, SupportedAudio("take1.WAV"))
	assert.True(t, SupportedAudio("rec.webm"))
	assert.False(t, SupportedAudio("notes.txt"))
	assert.False(t, SupportedAudio("noext"))
}

func TestDiskStoreSaveAudio(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(filepath.Join(dir, "audio"), filepath.Join(dir, "transcripts"))
	require.NoError(t, err)

	path, err := s.SaveAudio(context.Background(), "../../../etc/passwd.mp3", strings.NewReader("audio-bytes"))
	require.NoError(t, err)

	// Client name is discarded; only the extension survives.
	assert.Equal(t, ".mp3", filepath.Ext(path))
	assert.NotContains(t, filepath.Base(path), "passwd")
	assert.Equal(t, filepath.Join(dir, "audio"), filepath.Dir(path))

	rc, err := s.Open(context.Background(), path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestDiskStoreRejectsUnsupported(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(filepath.Join(dir, "audio"), filepath.Join(dir, "transcripts"))
	require.NoError(t, err)

	_, err = s.SaveAudio(context.Background(), "payload.exe", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestDiskStoreDeleteIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(filepath.Join(dir, "audio"), filepath.Join(dir, "transcripts"))
	require.NoError(t, err)

	path, err := s.SaveAudio(context.Background(), "a.wav", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), path))
	require.NoError(t, s.Delete(context.Background(), path))
	require.NoError(t, s.Delete(context.Background(), ""))
}
