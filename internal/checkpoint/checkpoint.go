// Package checkpoint journals in-flight run records so that an interrupted
// or failed run can be resumed from its last completed stage.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

var (
	// ErrNoJournal is returned when no journal entry exists for a run.
	ErrNoJournal = errors.New("no journal entry found")
)

// Journal persists run records between stages.
type Journal interface {
	// Save persists the record, replacing any previous entry for its run id.
	Save(ctx context.Context, rec *run.Record) error

	// Load reads the entry for runID.
	Load(ctx context.Context, runID string) (*run.Record, error)

	// Pending returns every journaled record that is not done, oldest first.
	Pending(ctx context.Context) ([]*run.Record, error)

	// Delete removes the entry for runID. Deleting a missing entry is not an error.
	Delete(ctx context.Context, runID string) error
}

// Config configures the journal.
type Config struct {
	Enabled bool
	Dir     string // Directory for journal files
}

// NewJournal creates a journal based on configuration.
func NewJournal(cfg Config) (Journal, error) {
	if !cfg.Enabled {
		return &noopJournal{}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal directory %s: %w", cfg.Dir, err)
	}

	return &fileJournal{dir: cfg.Dir}, nil
}

const filePrefix = "run_"

// fileJournal keeps one JSON file per run.
type fileJournal struct {
	dir string
}

func (j *fileJournal) path(runID string) string {
	return filepath.Join(j.dir, filePrefix+runID+".json")
}

func (j *fileJournal) Load(ctx context.Context, runID string) (*run.Record, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}
	return j.loadFromPath(j.path(runID))
}

func (j *fileJournal) loadFromPath(path string) (*run.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoJournal
		}
		return nil, fmt.Errorf("read journal file: %w", err)
	}

	var rec run.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse journal file %s: %w", filepath.Base(path), err)
	}

	return &rec, nil
}

func (j *fileJournal) Pending(ctx context.Context) ([]*run.Record, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal directory: %w", err)
	}

	var out []*run.Record
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != ".json" || !strings.HasPrefix(name, filePrefix) {
			continue
		}

		rec, err := j.loadFromPath(filepath.Join(j.dir, name))
		if err != nil {
			return nil, err
		}
		if rec.Resumable() {
			out = append(out, rec)
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].StartedAt.Equal(out[b].StartedAt) {
			return out[a].StartedAt.Before(out[b].StartedAt)
		}
		return out[a].AssetIndex < out[b].AssetIndex
	})
	return out, nil
}

func (j *fileJournal) Save(ctx context.Context, rec *run.Record) error {
	if rec.RunID == "" {
		return errors.New("journal: record has no run id")
	}
	path := j.path(rec.RunID)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	// Write atomically
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write journal temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename journal file: %w", err)
	}

	return nil
}

func (j *fileJournal) Delete(ctx context.Context, runID string) error {
	err := os.Remove(j.path(runID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete journal entry %s: %w", runID, err)
	}
	return nil
}

// noopJournal is used when journaling is disabled.
type noopJournal struct{}

func (j *noopJournal) Load(ctx context.Context, runID string) (*run.Record, error) {
	return nil, ErrNoJournal
}

func (j *noopJournal) Pending(ctx context.Context) ([]*run.Record, error) {
	return nil, nil
}

func (j *noopJournal) Save(ctx context.Context, rec *run.Record) error {
	return nil
}

func (j *noopJournal) Delete(ctx context.Context, runID string) error {
	return nil
}
