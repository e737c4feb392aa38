// Package results writes the terminal run records of a batch to the results
// bucket: one JSON array per batch, optionally gzip-compressed, with an
// optional parquet sibling and a small manifest.
package results

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/storage"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/tables"
)

// Config selects the output encodings.
type Config struct {
	Compress bool
	Parquet  bool
	Now      func() time.Time
}

// Manifest describes one written batch.
type Manifest struct {
	BatchID   string    `json:"batch_id"`
	Records   int       `json:"records"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	JSONKey   string    `json:"json_key"`
	JSONHash  string    `json:"json_sha256"`
	Parquet   string    `json:"parquet_key,omitempty"`
	WrittenAt time.Time `json:"written_at"`
}

// Writer persists batches into a store.
type Writer struct {
	store storage.Store
	cfg   Config
	log   *slog.Logger
}

// NewWriter returns a writer over store.
func NewWriter(store storage.Store, cfg Config) *Writer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Writer{store: store, cfg: cfg, log: logging.Component("results")}
}

// Key returns the object key of a batch's JSON array.
func (w *Writer) Key(batchID string) string {
	if w.cfg.Compress {
		return batchID + ".json.gz"
	}
	return batchID + ".json"
}

// WriteBatch writes recs as a JSON array and returns the manifest. The
// records are written in the order given.
func (w *Writer) WriteBatch(ctx context.Context, batchID string, recs []*run.Record) (*Manifest, error) {
	if batchID == "" {
		return nil, fmt.Errorf("results: empty batch id")
	}
	if recs == nil {
		recs = []*run.Record{}
	}

	body, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal batch %s: %w", batchID, err)
	}

	contentType := "application/json"
	if w.cfg.Compress {
		if body, err = gzipBytes(body); err != nil {
			return nil, fmt.Errorf("compress batch %s: %w", batchID, err)
		}
		contentType = "application/gzip"
	}

	now := w.cfg.Now()
	m := &Manifest{
		BatchID:   batchID,
		Records:   len(recs),
		JSONKey:   w.Key(batchID),
		JSONHash:  tables.ComputeChecksum(body),
		WrittenAt: now.UTC(),
	}
	for _, r := range recs {
		if r.Success {
			m.Succeeded++
		} else {
			m.Failed++
		}
	}

	if err := w.store.WriteAtomic(ctx, m.JSONKey, body, contentType); err != nil {
		return nil, fmt.Errorf("write batch %s: %w", batchID, err)
	}

	if w.cfg.Parquet {
		data, err := tables.ToParquet(tables.ExtractRunRows(recs, now), tables.DefaultParquetConfig())
		if err != nil {
			return nil, fmt.Errorf("encode parquet for batch %s: %w", batchID, err)
		}
		m.Parquet = batchID + ".parquet"
		if err := w.store.WriteAtomic(ctx, m.Parquet, data, "application/vnd.apache.parquet"); err != nil {
			return nil, fmt.Errorf("write parquet for batch %s: %w", batchID, err)
		}
	}

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := w.store.WriteAtomic(ctx, batchID+".manifest.json", manifest, "application/json"); err != nil {
		return nil, fmt.Errorf("write manifest for batch %s: %w", batchID, err)
	}

	w.log.Info("batch results written",
		"batch_id", batchID,
		"records", m.Records,
		"succeeded", m.Succeeded,
		"failed", m.Failed,
		"uri", w.store.URI(m.JSONKey),
	)
	return m, nil
}

// ReadBatch loads the records of a previously written batch.
func (w *Writer) ReadBatch(ctx context.Context, batchID string) ([]*run.Record, error) {
	key := w.Key(batchID)
	data, err := w.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(key, ".gz") {
		if data, err = gunzipBytes(data); err != nil {
			return nil, fmt.Errorf("decompress %s: %w", key, err)
		}
	}

	var recs []*run.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	return recs, nil
}

// Batches lists the ids of written batches.
func (w *Writer) Batches(ctx context.Context) ([]string, error) {
	keys, err := w.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, k := range keys {
		if id, ok := strings.CutSuffix(k, ".manifest.json"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// URI returns the location of a batch's JSON array.
func (w *Writer) URI(batchID string) string {
	return w.store.URI(w.Key(batchID))
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
