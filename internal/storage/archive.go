package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
)

// ObjectStore is the subset of MinIOStorage the archive needs.
type ObjectStore interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
}

// DocumentStore loads and saves whole documents.
type DocumentStore interface {
	Load(ctx context.Context, id string) (*document.Document, error)
	Save(ctx context.Context, d *document.Document) error
}

// ArchivingStore writes through to Store and, after every successful save,
// uploads an immutable JSON snapshot keyed by version. Archive failures are
// logged and never fail the save.
type ArchivingStore struct {
	Store   DocumentStore
	Objects ObjectStore
	log     *logger.Logger
}

func NewArchivingStore(store DocumentStore, objects ObjectStore) *ArchivingStore {
	return &ArchivingStore{Store: store, Objects: objects, log: logger.Named("archive")}
}

// SnapshotKey is the object key for version v of document id.
func SnapshotKey(id string, v int64) string {
	return fmt.Sprintf("documents/%s/v%d.json", id, v)
}

func (a *ArchivingStore) Load(ctx context.Context, id string) (*document.Document, error) {
	return a.Store.Load(ctx, id)
}

func (a *ArchivingStore) Save(ctx context.Context, d *document.Document) error {
	if err := a.Store.Save(ctx, d); err != nil {
		return err
	}
	if a.Objects == nil {
		return nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		a.log.Warnf("encode snapshot %s: %v", d.ID, err)
		return nil
	}
	key := SnapshotKey(d.ID, d.Version)
	if err := a.Objects.UploadFile(ctx, key, bytes.NewReader(b), int64(len(b)), "application/json"); err != nil {
		a.log.Warnf("upload snapshot %s: %v", key, err)
	}
	return nil
}

// Snapshot reads back an archived version.
func (a *ArchivingStore) Snapshot(ctx context.Context, id string, v int64) (*document.Document, error) {
	if a.Objects == nil {
		return nil, document.ErrNotFound
	}
	rc, err := a.Objects.DownloadFile(ctx, SnapshotKey(id, v))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrNotFound, err)
	}
	defer rc.Close()
	var d document.Document
	if err := json.NewDecoder(rc).Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}
