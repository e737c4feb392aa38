package assetstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
)

// ErrNoCredentials is returned when neither a JWT nor an API key pair is set.
var ErrNoCredentials = errors.New("pinata authentication not configured: provide a JWT or an API key and secret")

// maxErrorBody caps how much of an error response is kept on UploadError.
const maxErrorBody = 4096

// PinataConfig configures the Pinata pinning client.
type PinataConfig struct {
	BaseURL    string // https://api.pinata.cloud
	JWT        string
	APIKey     string
	SecretKey  string
	Collection string
	Timeout    time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
}

// PinataClient pins files and JSON documents through the Pinata REST API.
// It does not retry; callers decide whether a failed upload is worth another
// attempt.
type PinataClient struct {
	cfg    PinataConfig
	client *http.Client
	logger *slog.Logger
}

// NewPinataClient validates credentials and returns a client.
func NewPinataClient(cfg PinataConfig) (*PinataClient, error) {
	if cfg.JWT == "" && (cfg.APIKey == "" || cfg.SecretKey == "") {
		return nil, ErrNoCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.pinata.cloud"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Collection == "" {
		cfg.Collection = "viral-memes"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &PinataClient{
		cfg:    cfg,
		client: client,
		logger: logging.Component("pinata"),
	}, nil
}

func (c *PinataClient) setAuth(req *http.Request) {
	if c.cfg.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.JWT)
		return
	}
	req.Header.Set("pinata_api_key", c.cfg.APIKey)
	req.Header.Set("pinata_secret_api_key", c.cfg.SecretKey)
}

// UploadAsset pins raw file bytes.
func (c *PinataClient) UploadAsset(ctx context.Context, data []byte, filename string) (UploadResult, error) {
	if err := validateAsset(data, filename); err != nil {
		return UploadResult{}, err
	}

	sidecar, err := json.Marshal(map[string]any{
		"name": filename,
		"keyvalues": map[string]string{
			"type":        "nft-image",
			"collection":  c.cfg.Collection,
			"uploaded_at": c.cfg.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return UploadResult{}, &UploadError{Op: "asset", Err: fmt.Errorf("marshal pinata metadata: %w", err)}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err == nil {
		_, err = fw.Write(data)
	}
	if err == nil {
		err = mw.WriteField("pinataMetadata", string(sidecar))
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		return UploadResult{}, &UploadError{Op: "asset", Err: fmt.Errorf("build multipart body: %w", err)}
	}

	return c.post(ctx, "asset", "/pinning/pinFileToIPFS", mw.FormDataContentType(), body.Bytes())
}

// UploadMetadata pins a metadata document as JSON.
func (c *PinataClient) UploadMetadata(ctx context.Context, doc MetadataDocument) (UploadResult, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return UploadResult{}, &UploadError{Op: "metadata", Err: fmt.Errorf("marshal metadata: %w", err)}
	}
	return c.post(ctx, "metadata", "/pinning/pinJSONToIPFS", "application/json", body)
}

// post sends a single POST request and extracts IpfsHash from the response.
func (c *PinataClient) post(ctx context.Context, op, path, contentType string, body []byte) (UploadResult, error) {
	url := c.cfg.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return UploadResult{}, &UploadError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	c.setAuth(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return UploadResult{}, &UploadError{Op: op, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return UploadResult{}, &UploadError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return UploadResult{}, &UploadError{Op: op, StatusCode: resp.StatusCode, Body: text}
	}

	hash := gjson.GetBytes(respBody, "IpfsHash")
	if !hash.Exists() || hash.String() == "" {
		return UploadResult{}, &UploadError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody), Err: errors.New("response has no IpfsHash")}
	}

	c.logger.Debug("pinned",
		"op", op,
		"cid", hash.String(),
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return newResult(hash.String()), nil
}
