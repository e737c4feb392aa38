package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
)

// NewLocalStore opens a directory-backed store, creating the directory.
func NewLocalStore(baseDir, prefix string) (*Bucket, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", baseDir, err)
	}

	b, err := fileblob.OpenBucket(abs, &fileblob.Options{CreateDir: true, NoTempDir: true})
	if err != nil {
		return nil, fmt.Errorf("open local bucket %s: %w", abs, err)
	}
	return Wrap(b, prefix, "file://"+filepath.ToSlash(abs)), nil
}

// NewMemStore returns an in-memory store, used for dry runs and tests.
func NewMemStore(prefix string) *Bucket {
	return Wrap(memblob.OpenBucket(nil), prefix, "mem://")
}
