// Package catalog records terminal runs in an optional PostgreSQL catalog.
package catalog

import (
	"context"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

type Config struct {
	PostgresDSN string
}

// Writer records runs.
type Writer interface {
	RecordRun(ctx context.Context, rec *run.Record) error
	Close() error
}

// NewWriter connects to PostgreSQL when a DSN is configured and returns a
// no-op writer otherwise.
func NewWriter(ctx context.Context, cfg Config) (Writer, error) {
	if cfg.PostgresDSN == "" {
		return noopWriter{}, nil
	}
	return NewPostgresWriter(ctx, cfg)
}

type noopWriter struct{}

func (noopWriter) RecordRun(_ context.Context, _ *run.Record) error { return nil }
func (noopWriter) Close() error                                     { return nil }
