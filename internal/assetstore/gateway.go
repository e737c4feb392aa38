package assetstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ipfs/go-cid"
)

// Gateway reads pinned content back over an HTTP IPFS gateway.
type Gateway struct {
	base   string
	client *http.Client
}

// NewGateway returns a gateway reader for base, e.g. https://gateway.pinata.cloud.
func NewGateway(base string, client *http.Client) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gateway{base: base, client: client}
}

// Fetch downloads contentID. Raw-codec ids are re-hashed against the bytes;
// other codecs wrap the content in a DAG and cannot be checked locally.
func (g *Gateway) Fetch(ctx context.Context, contentID string) ([]byte, error) {
	url := GatewayURL(URIScheme+contentID, g.base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("fetch %s: http %d: %s", url, resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	if id, err := cid.Decode(contentID); err == nil && id.Prefix().Codec == cid.Raw {
		ok, err := VerifyContent(contentID, data)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("content %s failed hash verification", contentID)
		}
	}
	return data, nil
}
