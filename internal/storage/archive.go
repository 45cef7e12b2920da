package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/timmy/recipe-ingest/internal/logger"
)

// Archiver copies finished source files into object storage under
// <prefix>/<area>/<job_id>/<filename>.
type Archiver struct {
	store  ObjectStorage
	prefix string
}

// NewArchiver wraps store. prefix may be empty.
func NewArchiver(store ObjectStorage, prefix string) *Archiver {
	return &Archiver{store: store, prefix: prefix}
}

// Key returns the object key for a file archived from area for jobID.
func (a *Archiver) Key(area, jobID, filename string) string {
	return path.Join(a.prefix, area, jobID, filepath.Base(filename))
}

// ArchiveFile uploads the file at localPath unless the key already exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - area: directory area the file was moved to (processed, dlq).
//   - jobID: job the file belongs to.
//   - localPath: current location of the file.
// Returns:
//   - string: object key.
//   - error: non-nil if the file cannot be read or uploaded.
func (a *Archiver) ArchiveFile(ctx context.Context, area, jobID, localPath string) (string, error) {
	key := a.Key(area, jobID, localPath)

	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return key, err
	}
	if exists {
		logger.CtxDebug(ctx, "Archive object already exists: %s", key)
		return key, nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return key, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return key, fmt.Errorf("stat %s: %w", localPath, err)
	}

	contentType := "application/octet-stream"
	if m, err := mimetype.DetectFile(localPath); err == nil {
		contentType = m.String()
	}

	err = a.store.Put(ctx, Object{
		Key:         key,
		Body:        f,
		Size:        st.Size(),
		ContentType: contentType,
		Metadata: map[string]string{
			"job-id":   jobID,
			"area":     area,
			"filename": filepath.Base(localPath),
		},
	})
	if err != nil {
		return key, err
	}
	logger.With(logger.Fields{logger.FieldSize: st.Size()}).Info(ctx, "Archived %s", key)
	return key, nil
}
