package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
)

// FileBackup saves each event to its own JSON file.
type FileBackup struct {
	dir    string
	logger *slog.Logger
}

func NewFileBackup(dir string) (*FileBackup, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &FileBackup{dir: dir, logger: logging.Component("audit")}, nil
}

// Save writes evt to event_<run_id>_<unixnano>.json.
func (f *FileBackup) Save(evt *Event) error {
	filename := fmt.Sprintf("event_%s_%d.json", evt.Run.RunID, evt.Timestamp.UnixNano())
	path := filepath.Join(f.dir, filename)

	data, err := json.MarshalIndent(evt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	f.logger.Debug("event backed up", "path", path)
	return nil
}

// Events reads every backed up event for chainKey, oldest first.
func (f *FileBackup) Events(chainKey string) ([]Event, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var out []Event
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "event_") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		if evt.Run.ChainKey() == chainKey {
			out = append(out, evt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
