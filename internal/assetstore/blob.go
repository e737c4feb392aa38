package assetstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/storage"
)

// ComputeCID returns the CIDv1 (raw codec, sha2-256) of data.
func ComputeCID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hash content: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// VerifyContent reports whether data hashes to contentID.
func VerifyContent(contentID string, data []byte) (bool, error) {
	want, err := cid.Decode(contentID)
	if err != nil {
		return false, fmt.Errorf("decode content id %q: %w", contentID, err)
	}
	got, err := want.Prefix().Sum(data)
	if err != nil {
		return false, fmt.Errorf("hash content: %w", err)
	}
	return got.Equals(want), nil
}

// BlobStore is a content-addressed store over a storage bucket. Objects are
// keyed by their CID, so uploading the same bytes twice is a no-op.
type BlobStore struct {
	store storage.Store
}

// NewBlobStore wraps a bucket.
func NewBlobStore(store storage.Store) *BlobStore {
	return &BlobStore{store: store}
}

func (s *BlobStore) UploadAsset(ctx context.Context, data []byte, filename string) (UploadResult, error) {
	if err := validateAsset(data, filename); err != nil {
		return UploadResult{}, err
	}
	return s.put(ctx, "asset", data, http.DetectContentType(data))
}

func (s *BlobStore) UploadMetadata(ctx context.Context, doc MetadataDocument) (UploadResult, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return UploadResult{}, &UploadError{Op: "metadata", Err: fmt.Errorf("marshal metadata: %w", err)}
	}
	return s.put(ctx, "metadata", data, "application/json")
}

func (s *BlobStore) put(ctx context.Context, op string, data []byte, contentType string) (UploadResult, error) {
	id, err := ComputeCID(data)
	if err != nil {
		return UploadResult{}, &UploadError{Op: op, Err: err}
	}
	key := id.String()

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return UploadResult{}, &UploadError{Op: op, Err: fmt.Errorf("check %s: %w", key, err)}
	}
	if !exists {
		if err := s.store.WriteAtomic(ctx, key, data, contentType); err != nil {
			return UploadResult{}, &UploadError{Op: op, Err: err}
		}
	}
	return newResult(key), nil
}

// Fetch returns the bytes stored under contentID after checking their hash.
func (s *BlobStore) Fetch(ctx context.Context, contentID string) ([]byte, error) {
	data, err := s.store.Read(ctx, contentID)
	if err != nil {
		return nil, err
	}
	ok, err := VerifyContent(contentID, data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("content %s failed hash verification", contentID)
	}
	return data, nil
}
