package storage

import (
	"bytes"
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// ArchivingStore decorates a Store with best-effort archival of every saved
// object to durable remote storage. The local copy stays authoritative; an
// archival failure is logged and the save still succeeds.
type ArchivingStore struct {
	Store
	uploader Uploader
	log      *logrus.Logger
}

func NewArchivingStore(inner Store, uploader Uploader, log *logrus.Logger) *ArchivingStore {
	return &ArchivingStore{Store: inner, uploader: uploader, log: log}
}

func (s *ArchivingStore) SaveAudio(ctx context.Context, filename string, r io.Reader) (string, error) {
	path, err := s.Store.SaveAudio(ctx, filename, r)
	if err != nil {
		return "", err
	}
	s.archiveFile(ctx, path, contentTypeFor(path))
	return path, nil
}

func (s *ArchivingStore) SaveTranscript(ctx context.Context, filename string, data []byte) (string, error) {
	path, err := s.Store.SaveTranscript(ctx, filename, data)
	if err != nil {
		return "", err
	}
	object := "transcripts/" + filepath.Base(path)
	if _, uerr := s.uploader.Upload(ctx, object, "text/plain; charset=utf-8", bytes.NewReader(data)); uerr != nil {
		s.log.WithError(uerr).WithField("object", object).Warn("transcript archival failed")
	}
	return path, nil
}

func (s *ArchivingStore) archiveFile(ctx context.Context, path, contentType string) {
	f, err := os.Open(path)
	if err != nil {
		s.log.WithError(err).WithField("path", path).Warn("audio archival skipped")
		return
	}
	defer f.Close()

	object := "audio/" + filepath.Base(path)
	if _, err := s.uploader.Upload(ctx, object, contentType, f); err != nil {
		s.log.WithError(err).WithField("object", object).Warn("audio archival failed")
	}
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
