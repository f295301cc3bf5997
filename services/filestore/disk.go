// Package filestore keeps uploaded proposal files on the local disk.
package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/psms/core/submission"
)

const filePrefix = "proposal-"

// allowedMIMEs are the document & archive types accepted (parents included, e.g. docx -> zip).
var allowedMIMEs = []string{
	"application/pdf",
	"application/msword",
	"application/x-ole-storage",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/zip",
	"application/x-rar-compressed",
	"text/plain",
}

type DiskStore struct {
	dir     string
	maxSize int64
	now     func() time.Time
}

var _ submission.FileStore = (*DiskStore)(nil)

// NewDiskStore creates dir if needed.
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating uploads dir")
	}
	return &DiskStore{dir: dir, maxSize: maxSize, now: time.Now}, nil
}

func (s *DiskStore) Dir() string { return s.dir }

// Save streams r to a temp file in the store dir, checks its size and content type,
// then renames it to `proposal-<unix-ms>-<uuid><ext>`.
func (s *DiskStore) Save(ctx context.Context, r io.Reader, ext string) (submission.StoredFile, error) {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return submission.StoredFile{}, errors.Wrap(err, "creating temp file")
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(&ctxReader{ctx: ctx, r: r}, s.maxSize+1))
	if cErr := tmp.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		return submission.StoredFile{}, errors.Wrap(err, "writing temp file")
	}
	if n > s.maxSize {
		return submission.StoredFile{}, submission.ErrFileTooLarge
	}

	mtype, err := mimetype.DetectFile(tmpPath)
	if err != nil {
		return submission.StoredFile{}, errors.Wrap(err, "detecting content type")
	}
	if !isAllowed(mtype) {
		return submission.StoredFile{}, submission.ErrFileTypeNotAllowed
	}

	filename := fmt.Sprintf("%s%d-%s%s", filePrefix, s.now().UnixNano()/int64(time.Millisecond), uuid.New(), ext)
	path := filepath.Join(s.dir, filename)
	if err := os.Rename(tmpPath, path); err != nil {
		return submission.StoredFile{}, errors.Wrap(err, "committing file")
	}
	committed = true

	return submission.StoredFile{
		Filename:    filename,
		Path:        path,
		ContentType: mtype.String(),
		Size:        n,
	}, nil
}

func isAllowed(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		for _, allowed := range allowedMIMEs {
			if m.Is(allowed) {
				return true
			}
		}
	}
	return false
}

func (s *DiskStore) path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || !strings.HasPrefix(filename, filePrefix) {
		return "", submission.ErrFileNotFound
	}
	return filepath.Join(s.dir, filename), nil
}

func (s *DiskStore) Open(filename string) (io.ReadCloser, error) {
	path, err := s.path(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, submission.ErrFileNotFound
		}
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}

func (s *DiskStore) Remove(filename string) error {
	path, err := s.path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return submission.ErrFileNotFound
		}
		return errors.Wrap(err, "removing file")
	}
	return nil
}

// ctxReader stops a copy when ctx is cancelled (client gone).
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
