package filestore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/psms/core/submission"
)

var pdfContent = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func newTestStore(t *testing.T, maxSize int64) *DiskStore {
	t.Helper()
	store, err := NewDiskStore(filepath.Join(t.TempDir(), "uploads"), maxSize)
	require.NoError(t, err)
	return store
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	infos, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names
}

func TestDiskStore_Save(t *testing.T) {
	store := newTestStore(t, 1<<20)

	stored, err := store.Save(context.Background(), bytes.NewReader(pdfContent), ".pdf")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^proposal-\d{13}-[0-9a-f-]{36}\.pdf$`), stored.Filename)
	assert.Equal(t, filepath.Join(store.Dir(), stored.Filename), stored.Path)
	assert.Equal(t, "application/pdf", stored.ContentType)
	assert.Equal(t, int64(len(pdfContent)), stored.Size)
	assert.Equal(t, []string{stored.Filename}, dirEntries(t, store.Dir()))

	f, err := store.Open(stored.Filename)
	require.NoError(t, err)
	content, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, pdfContent, content)
}

func TestDiskStore_SaveRejected(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		maxSize int64
		wantErr error
	}{
		{name: "too large", content: bytes.Repeat([]byte("a"), 101), maxSize: 100, wantErr: submission.ErrFileTooLarge},
		{name: "executable", content: append([]byte("\x7fELF\x02\x01\x01\x00"), make([]byte, 64)...), maxSize: 1 << 20, wantErr: submission.ErrFileTypeNotAllowed},
		{name: "png", content: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), maxSize: 1 << 20, wantErr: submission.ErrFileTypeNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newTestStore(t, tc.maxSize)
			_, err := store.Save(context.Background(), bytes.NewReader(tc.content), ".pdf")
			assert.Equal(t, tc.wantErr, err)
			assert.Empty(t, dirEntries(t, store.Dir()), "temp file left behind")
		})
	}
}

func TestDiskStore_SaveCancelled(t *testing.T) {
	store := newTestStore(t, 1<<20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Save(ctx, strings.NewReader("hello"), ".txt")
	assert.Error(t, err)
	assert.Empty(t, dirEntries(t, store.Dir()))
}

func TestDiskStore_OpenRemove(t *testing.T) {
	store := newTestStore(t, 1<<20)
	stored, err := store.Save(context.Background(), strings.NewReader("my proposal"), ".txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.ContentType, "text/plain"), stored.ContentType)

	require.NoError(t, store.Remove(stored.Filename))
	_, err = os.Stat(stored.Path)
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, submission.ErrFileNotFound, store.Remove(stored.Filename))
	_, err = store.Open(stored.Filename)
	assert.Equal(t, submission.ErrFileNotFound, err)

	for _, name := range []string{"", "../secret.txt", "notes.txt", "proposal-1/../../x"} {
		_, err = store.Open(name)
		assert.Equal(t, submission.ErrFileNotFound, err, name)
	}
}
