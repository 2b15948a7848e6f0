package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
)

const (
	payloadExt  = ".bin"
	metadataExt = ".json"
)

// DiskStore keeps one payload file and one metadata file per key.
// Writers of different keys touch disjoint files, so no locking is needed.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the cache directory if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create cache directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat cache directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("cache path %s is not a directory", dir)
	}

	return &DiskStore{dir: dir}, nil
}

// Dir returns the cache directory.
func (d *DiskStore) Dir() string {
	return d.dir
}

// Name implements Backend.
func (d *DiskStore) Name() string {
	return "disk"
}

// Get implements Backend.
func (d *DiskStore) Get(_ context.Context, key string) (*Entry, error) {
	metaRaw, err := os.ReadFile(d.path(key, metadataExt))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	data, err := os.ReadFile(d.path(key, payloadExt))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}

	return &Entry{Data: data, Meta: meta}, nil
}

// Set implements Backend. The payload is written before the metadata so a
// reader never sees metadata without its payload.
func (d *DiskStore) Set(_ context.Context, key string, entry *Entry) error {
	metaRaw, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if err := d.writeAtomic(d.path(key, payloadExt), entry.Data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := d.writeAtomic(d.path(key, metadataExt), metaRaw); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (d *DiskStore) path(key, ext string) string {
	return filepath.Join(d.dir, key+ext)
}

// writeAtomic writes data to a temp file in the cache directory and renames
// it into place.
func (d *DiskStore) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(d.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
