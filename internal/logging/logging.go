// Package logging configures the process-wide slog logger and hands out
// loggers pre-bound to a run, an upload worker or a component.
//
// Every command invocation carries one correlation id in its context. It is
// attached to run loggers so the lines of a batch can be pulled out of a
// shared log stream.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the handler and the minimum level. Unknown values fall back
// to text output at info.
type Config struct {
	Format string
	Level  string
}

// Setup installs the default logger on stderr. Stdout is left to command
// output.
func Setup(cfg Config) {
	SetupWriter(cfg, os.Stderr)
}

func SetupWriter(cfg Config, w io.Writer) {
	slog.SetDefault(slog.New(newHandler(cfg, w)))
}

func newHandler(cfg Config, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func parseLevel(s string) slog.Level {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l
	}
	return slog.LevelInfo
}

type correlationKey struct{}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID is empty when ctx carries none.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// GenerateCorrelationID returns 16 hex characters.
func GenerateCorrelationID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// RunLogger is bound to one asset of a batch.
func RunLogger(ctx context.Context, batchID, runID string, assetIndex int) *slog.Logger {
	attrs := []any{"batch_id", batchID, "run_id", runID, "asset_index", assetIndex}
	if id := CorrelationID(ctx); id != "" {
		attrs = append(attrs, "correlation_id", id)
	}
	return slog.With(attrs...)
}

func WorkerLogger(workerID int) *slog.Logger {
	return slog.With("worker_id", workerID)
}

func Component(name string) *slog.Logger {
	return slog.With("component", name)
}
