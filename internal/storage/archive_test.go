package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingUploader struct {
	objects map[string]string
	err     error
}

func (u *recordingUploader) Upload(_ context.Context, objectName, _ string, r io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if u.objects == nil {
		u.objects = map[string]string{}
	}
	u.objects[objectName] = string(data)
	return "gs://test/" + objectName, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newArchiveFixture(t *testing.T, uploader *recordingUploader) *ArchivingStore {
	t.Helper()
	dir := t.TempDir()
	disk, err := NewDiskStore(filepath.Join(dir, "audio"), filepath.Join(dir, "transcripts"))
	require.NoError(t, err)
	return NewArchivingStore(disk, uploader, quietLogger())
}

func TestArchivingStoreMirrorsSaves(t *testing.T) {
	uploader := &recordingUploader{}
	s := newArchiveFixture(t, uploader)

	audioPath, err := s.SaveAudio(context.Background(), "take.wav", strings.NewReader("pcm"))
	require.NoError(t, err)
	transcriptPath, err := s.SaveTranscript(context.Background(), "take.txt", []byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, "pcm", uploader.objects["audio/"+filepath.Base(audioPath)])
	assert.Equal(t, "hello", uploader.objects["transcripts/"+filepath.Base(transcriptPath)])
}

func TestArchivingStoreSurvivesUploadFailure(t *testing.T) {
	s := newArchiveFixture(t, &recordingUploader{err: errors.New("bucket gone")})

	// Local save is authoritative; archival failure never fails the write.
	path, err := s.SaveAudio(context.Background(), "take.wav", strings.NewReader("pcm"))
	require.NoError(t, err)

	rc, err := s.Open(context.Background(), path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "pcm", string(data))
}
