package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document/repository"
	"github.com/stretchr/testify/require"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func (m *memObjects) UploadFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.failPut {
		return errors.New("bucket unavailable")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = b
	return nil
}

func (m *memObjects) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func TestArchivingStore_SaveUploadsSnapshot(t *testing.T) {
	ctx := context.Background()
	objs := &memObjects{}
	st := NewArchivingStore(repository.NewMemoryRepo(), objs)

	d := &document.Document{ID: "doc-1", Title: "T", Content: "hello", Version: 3}
	require.NoError(t, st.Save(ctx, d))

	loaded, err := st.Load(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), loaded.Version)

	require.Contains(t, objs.objects, "documents/doc-1/v3.json")
	snap, err := st.Snapshot(ctx, "doc-1", 3)
	require.NoError(t, err)
	require.Equal(t, "hello", snap.Content)

	_, err = st.Snapshot(ctx, "doc-1", 4)
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestArchivingStore_UploadFailureDoesNotFailSave(t *testing.T) {
	ctx := context.Background()
	st := NewArchivingStore(repository.NewMemoryRepo(), &memObjects{failPut: true})
	require.NoError(t, st.Save(ctx, &document.Document{ID: "doc-2", Content: "x", Version: 1}))

	got, err := st.Load(ctx, "doc-2")
	require.NoError(t, err)
	require.Equal(t, "x", got.Content)
}

func TestArchivingStore_NoObjects(t *testing.T) {
	st := NewArchivingStore(repository.NewMemoryRepo(), nil)
	require.NoError(t, st.Save(context.Background(), &document.Document{ID: "d", Version: 1}))
	_, err := st.Snapshot(context.Background(), "d", 1)
	require.ErrorIs(t, err, document.ErrNotFound)
}
