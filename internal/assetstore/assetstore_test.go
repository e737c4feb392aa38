package assetstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/storage"
)

// fakePinata records requests and serves CIDs computed from the uploaded bytes,
// plus a gateway that serves them back.
type fakePinata struct {
	mu       sync.Mutex
	requests []*http.Request
	sidecars []string
	objects  map[string][]byte
	status   int
}

func newFakePinata() *fakePinata {
	return &fakePinata{objects: map[string][]byte{}, status: http.StatusOK}
}

func (f *fakePinata) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)

	if f.status != http.StatusOK {
		http.Error(w, `{"error":"quota exceeded"}`, f.status)
		return
	}

	var data []byte
	switch {
	case r.URL.Path == "/pinning/pinFileToIPFS":
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ = io.ReadAll(file)
		f.sidecars = append(f.sidecars, r.FormValue("pinataMetadata"))
	case r.URL.Path == "/pinning/pinJSONToIPFS":
		data, _ = io.ReadAll(r.Body)
	case strings.HasPrefix(r.URL.Path, "/ipfs/"):
		obj, ok := f.objects[strings.TrimPrefix(r.URL.Path, "/ipfs/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(obj)
		return
	default:
		http.NotFound(w, r)
		return
	}

	id, _ := ComputeCID(data)
	f.objects[id.String()] = data
	json.NewEncoder(w).Encode(map[string]any{"IpfsHash": id.String(), "PinSize": len(data)})
}

func newTestClient(t *testing.T, srv *httptest.Server, cfg PinataConfig) *PinataClient {
	t.Helper()
	cfg.BaseURL = srv.URL
	cfg.HTTPClient = srv.Client()
	if cfg.JWT == "" && cfg.APIKey == "" {
		cfg.JWT = "test-jwt"
	}
	c, err := NewPinataClient(cfg)
	if err != nil {
		t.Fatalf("NewPinataClient failed: %v", err)
	}
	return c
}

func TestPinataRoundTrip(t *testing.T) {
	fake := newFakePinata()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, srv, PinataConfig{Collection: "viral-memes", Now: func() time.Time { return now }})
	ctx := context.Background()

	data := []byte("\x89PNG fake image bytes")
	res, err := client.UploadAsset(ctx, data, "memes/cat.png")
	if err != nil {
		t.Fatalf("UploadAsset failed: %v", err)
	}
	if res.ResolvableURL != "ipfs://"+res.ContentID {
		t.Errorf("ResolvableURL = %q", res.ResolvableURL)
	}

	got, err := NewGateway(srv.URL, srv.Client()).Fetch(ctx, res.ContentID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(got) != string(data) {
		t.Error("fetched bytes differ from uploaded bytes")
	}

	if auth := fake.requests[0].Header.Get("Authorization"); auth != "Bearer test-jwt" {
		t.Errorf("Authorization = %q", auth)
	}
	var sidecar struct {
		Name      string            `json:"name"`
		KeyValues map[string]string `json:"keyvalues"`
	}
	if err := json.Unmarshal([]byte(fake.sidecars[0]), &sidecar); err != nil {
		t.Fatalf("bad sidecar: %v", err)
	}
	want := map[string]string{"type": "nft-image", "collection": "viral-memes", "uploaded_at": "2025-03-01T12:00:00Z"}
	if sidecar.Name != "memes/cat.png" || !reflect.DeepEqual(sidecar.KeyValues, want) {
		t.Errorf("sidecar = %+v", sidecar)
	}
}

func TestPinataMetadataUpload(t *testing.T) {
	fake := newFakePinata()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := newTestClient(t, srv, PinataConfig{APIKey: "key", SecretKey: "secret"})
	doc := CreateMetadataDocument("Cat", "a cat", "ipfs://img", nil, time.Now(), MetadataOptions{})

	res, err := client.UploadMetadata(context.Background(), doc)
	if err != nil {
		t.Fatalf("UploadMetadata failed: %v", err)
	}

	var stored MetadataDocument
	if err := json.Unmarshal(fake.objects[res.ContentID], &stored); err != nil {
		t.Fatalf("stored metadata is not JSON: %v", err)
	}
	if stored.Image != "ipfs://img" || len(stored.Attributes) != 2 {
		t.Errorf("stored = %+v", stored)
	}

	req := fake.requests[0]
	if req.Header.Get("pinata_api_key") != "key" || req.Header.Get("pinata_secret_api_key") != "secret" {
		t.Errorf("missing key pair headers: %v", req.Header)
	}
	if req.Header.Get("Authorization") != "" {
		t.Error("key pair auth should not send a bearer token")
	}
}

func TestPinataErrors(t *testing.T) {
	fake := newFakePinata()
	fake.status = http.StatusTooManyRequests
	srv := httptest.NewServer(fake)
	defer srv.Close()
	client := newTestClient(t, srv, PinataConfig{})
	ctx := context.Background()

	_, err := client.UploadAsset(ctx, []byte("x"), "x.png")
	var ue *UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	if ue.StatusCode != http.StatusTooManyRequests || !strings.Contains(ue.Body, "quota exceeded") {
		t.Errorf("UploadError = %+v", ue)
	}

	before := len(fake.requests)
	tests := []struct {
		name     string
		data     []byte
		filename string
	}{
		{"empty data", nil, "a.png"},
		{"empty filename", []byte("x"), " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.UploadAsset(ctx, tt.data, tt.filename)
			if !errors.As(err, &ue) {
				t.Fatalf("expected UploadError, got %v", err)
			}
		})
	}
	if len(fake.requests) != before {
		t.Error("validation failures must not reach the network")
	}
}

func TestPinataTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := newTestClient(t, srv, PinataConfig{})
	srv.Close()

	_, err := client.UploadAsset(context.Background(), []byte("x"), "x.png")
	var ue *UploadError
	if !errors.As(err, &ue) || ue.StatusCode != 0 || ue.Err == nil {
		t.Fatalf("expected transport UploadError, got %v", err)
	}
}

func TestNewPinataClientRequiresCredentials(t *testing.T) {
	tests := []PinataConfig{
		{},
		{APIKey: "key"},
		{SecretKey: "secret"},
	}
	for _, cfg := range tests {
		if _, err := NewPinataClient(cfg); !errors.Is(err, ErrNoCredentials) {
			t.Errorf("NewPinataClient(%+v) = %v, want ErrNoCredentials", cfg, err)
		}
	}
}

func TestBlobStoreRoundTrip(t *testing.T) {
	store := NewBlobStore(storage.NewMemStore("ipfs/"))
	ctx := context.Background()

	data := []byte("meme bytes")
	first, err := store.UploadAsset(ctx, data, "a.png")
	if err != nil {
		t.Fatalf("UploadAsset failed: %v", err)
	}
	second, err := store.UploadAsset(ctx, data, "b.png")
	if err != nil {
		t.Fatalf("second UploadAsset failed: %v", err)
	}
	if first != second {
		t.Errorf("same bytes gave different ids: %v vs %v", first, second)
	}

	got, err := store.Fetch(ctx, first.ContentID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(got) != string(data) {
		t.Error("round trip mismatch")
	}

	if ok, _ := VerifyContent(first.ContentID, []byte("tampered")); ok {
		t.Error("VerifyContent accepted different bytes")
	}
	if _, err := store.Fetch(ctx, "bafkreiaaaa"); err == nil {
		t.Error("Fetch of unknown id should fail")
	}
}

func TestGatewayURL(t *testing.T) {
	tests := []struct{ in, base, want string }{
		{"ipfs://bafy123", "https://gateway.pinata.cloud", "https://gateway.pinata.cloud/ipfs/bafy123"},
		{"ipfs://bafy123", "https://gw.example/", "https://gw.example/ipfs/bafy123"},
		{"https://already/http", "https://gw.example", "https://already/http"},
	}
	for _, tt := range tests {
		if got := GatewayURL(tt.in, tt.base); got != tt.want {
			t.Errorf("GatewayURL(%q, %q) = %q, want %q", tt.in, tt.base, got, tt.want)
		}
	}
}
