// Package storage reads and writes objects in a gocloud.dev bucket. Local
// directories, S3-compatible stores, GCS and in-memory buckets share one type.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Store abstracts object access for run results and content-addressed assets.
type Store interface {
	// Write stores data under key, replacing any existing object.
	Write(ctx context.Context, key string, data []byte, contentType string) error

	// WriteAtomic writes to a temporary key and copies into place, so readers
	// never observe a partial object.
	WriteAtomic(ctx context.Context, key string, data []byte, contentType string) error

	// Read returns the object bytes or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Exists checks if a key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Head returns metadata about a stored object.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns all keys under prefix, relative to the store prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// URI returns the canonical URI for the given key.
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ETag        string // empty for local
	ContentType string
	ModTime     time.Time
}

// Bucket implements Store over a *blob.Bucket.
type Bucket struct {
	bucket  *blob.Bucket
	prefix  string
	baseURI string
}

// Open opens a bucket by gocloud URL (file://, s3://, gs://, mem://).
func Open(ctx context.Context, bucketURL, prefix string) (*Bucket, error) {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	base := bucketURL
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}
	return Wrap(b, prefix, base), nil
}

// Wrap adopts an already opened bucket.
func Wrap(b *blob.Bucket, prefix, baseURI string) *Bucket {
	return &Bucket{bucket: b, prefix: prefix, baseURI: strings.TrimSuffix(baseURI, "/")}
}

func (s *Bucket) key(k string) string { return s.prefix + k }

func (s *Bucket) Write(ctx context.Context, key string, data []byte, contentType string) error {
	return s.write(ctx, s.key(key), data, contentType)
}

func (s *Bucket) write(ctx context.Context, path string, data []byte, contentType string) error {
	var opts *blob.WriterOptions
	if contentType != "" {
		opts = &blob.WriterOptions{ContentType: contentType}
	}

	w, err := s.bucket.NewWriter(ctx, path, opts)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", path, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", path, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", path, err)
	}

	return nil
}

func (s *Bucket) WriteAtomic(ctx context.Context, key string, data []byte, contentType string) error {
	finalKey := s.key(key)
	tempKey := finalKey + ".tmp." + uuid.New().String()

	if err := s.write(ctx, tempKey, data, contentType); err != nil {
		return err
	}
	defer s.bucket.Delete(context.WithoutCancel(ctx), tempKey) // ignore errors

	if err := s.bucket.Copy(ctx, finalKey, tempKey, nil); err != nil {
		return fmt.Errorf("finalize %s -> %s: %w", tempKey, finalKey, err)
	}
	return nil
}

func (s *Bucket) Read(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.NewReader(ctx, s.key(key), nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, s.key(key))
}

func (s *Bucket) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := s.bucket.Attributes(ctx, s.key(key))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get attributes for %s: %w", key, err)
	}

	return &ObjectInfo{
		Key:         key,
		Size:        attrs.Size,
		ETag:        attrs.ETag,
		ContentType: attrs.ContentType,
		ModTime:     attrs.ModTime,
	}, nil
}

func (s *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	iter := s.bucket.List(&blob.ListOptions{
		Prefix: s.key(prefix),
	})

	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir || strings.Contains(obj.Key, ".tmp.") {
			continue
		}
		keys = append(keys, strings.TrimPrefix(obj.Key, s.prefix))
	}

	return keys, nil
}

func (s *Bucket) URI(key string) string {
	return s.baseURI + "/" + s.key(key)
}

func (s *Bucket) Close() error {
	return s.bucket.Close()
}
