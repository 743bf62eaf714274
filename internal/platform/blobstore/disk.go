package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskBlobStore keeps blobs under a local directory, one content file and
// one JSON metadata file per blob.
type DiskBlobStore struct {
	dir string
}

// NewDiskBlobStore creates dir if needed.
func NewDiskBlobStore(dir string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskBlobStore{dir: dir}, nil
}

func (s *DiskBlobStore) contentPath(id string) string { return filepath.Join(s.dir, id) }
func (s *DiskBlobStore) metaPath(id string) string    { return filepath.Join(s.dir, id+".meta.json") }

// Upload writes the blob and its metadata to disk.
func (s *DiskBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(s.contentPath(meta.ID), data, 0o640); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode blob metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), encoded, 0o640); err != nil {
		_ = os.Remove(s.contentPath(meta.ID))
		return nil, fmt.Errorf("write blob metadata: %w", err)
	}
	return &meta, nil
}

// Download opens the blob file.
func (s *DiskBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(s.contentPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("read blob: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), meta, nil
}

// Delete removes the blob and its metadata.
func (s *DiskBlobStore) Delete(_ context.Context, id string) error {
	if err := validateKey(id); err != nil {
		return err
	}
	if err := os.Remove(s.contentPath(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob metadata: %w", err)
	}
	return nil
}

// GetMetadata reads the metadata file of blob id.
func (s *DiskBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	if err := validateKey(id); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("read blob metadata: %w", err)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode blob metadata: %w", err)
	}
	return &meta, nil
}
