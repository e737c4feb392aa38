// Package assetstore uploads asset bytes and metadata documents to a
// content-addressed store and returns resolvable ipfs:// URLs.
package assetstore

import (
	"context"
	"fmt"
	"strings"
)

// URIScheme prefixes every resolvable URL.
const URIScheme = "ipfs://"

// UploadResult identifies stored content.
type UploadResult struct {
	ContentID     string `json:"content_id"`
	ResolvableURL string `json:"resolvable_url"`
}

func newResult(contentID string) UploadResult {
	return UploadResult{ContentID: contentID, ResolvableURL: URIScheme + contentID}
}

// Store is the upload side of a content-addressed asset store.
type Store interface {
	UploadAsset(ctx context.Context, data []byte, filename string) (UploadResult, error)
	UploadMetadata(ctx context.Context, doc MetadataDocument) (UploadResult, error)
}

// UploadError reports a failed upload. StatusCode is 0 for validation and
// transport failures.
type UploadError struct {
	Op         string // "asset" | "metadata"
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "upload %s", e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

func (e *UploadError) Unwrap() error { return e.Err }

func validateAsset(data []byte, filename string) error {
	switch {
	case len(data) == 0:
		return &UploadError{Op: "asset", Err: fmt.Errorf("empty asset data")}
	case strings.TrimSpace(filename) == "":
		return &UploadError{Op: "asset", Err: fmt.Errorf("empty filename")}
	}
	return nil
}

// GatewayURL rewrites an ipfs:// URL onto an HTTP gateway. Other URLs are
// returned unchanged.
func GatewayURL(resolvable, gatewayBase string) string {
	cid, ok := strings.CutPrefix(resolvable, URIScheme)
	if !ok {
		return resolvable
	}
	return strings.TrimSuffix(gatewayBase, "/") + "/ipfs/" + cid
}
