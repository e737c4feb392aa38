package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/retry"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

// DefaultDir holds backups and chain heads when no directory is configured.
const DefaultDir = ".meme-minter/audit"

// Config selects the emitter. Events always go to Dir; Endpoint adds an HTTP
// POST of each event.
type Config struct {
	Enabled   bool
	Endpoint  string
	Dir       string
	NetworkID int64
	Contract  string
	Producer  ProducerInfo

	HTTPClient *http.Client
	Retry      retry.Policy
	Sleeper    retry.Sleeper
	Now        func() time.Time
}

// Emitter records terminal runs.
type Emitter interface {
	EmitRun(ctx context.Context, rec *run.Record) error
	Close() error
}

// NewEmitter returns a no-op emitter when cfg is disabled.
func NewEmitter(cfg Config) (Emitter, error) {
	logger := logging.Component("audit")
	if !cfg.Enabled {
		logger.Debug("audit disabled, using no-op emitter")
		return noopEmitter{}, nil
	}

	tracker, err := NewChainTracker(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}
	backup, err := NewFileBackup(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("create file backup: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := &chainEmitter{
		cfg:     cfg,
		tracker: tracker,
		backup:  backup,
		logger:  logger,
	}
	if cfg.Endpoint != "" {
		e.http = newHTTPPoster(cfg)
		logger.Info("using HTTP audit emitter", "endpoint", cfg.Endpoint, "dir", backup.dir)
	} else {
		logger.Info("using file audit emitter", "dir", backup.dir)
	}
	return e, nil
}

// chainEmitter links each event to the previous one in its chain, backs it up
// to a file and then optionally posts it.
type chainEmitter struct {
	mu      sync.Mutex
	cfg     Config
	tracker *ChainTracker
	backup  *FileBackup
	http    *httpPoster
	logger  *slog.Logger
}

func (e *chainEmitter) EmitRun(ctx context.Context, rec *run.Record) error {
	if !rec.Terminal() {
		return fmt.Errorf("audit: run %s is not terminal", rec.RunID)
	}

	evt := &Event{
		Version:   EventVersion,
		EventType: EventType,
		EventID:   GenerateEventID(),
		Timestamp: e.cfg.Now().UTC(),
		Run:       NewRunInfo(rec, e.cfg.NetworkID, e.cfg.Contract),
		Producer:  e.cfg.Producer,
	}
	chainKey := evt.Run.ChainKey()

	// One head update at a time per emitter.
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, err := e.tracker.GetHead(chainKey)
	if err != nil && !errors.Is(err, ErrNoChainHead) {
		return fmt.Errorf("get chain head: %w", err)
	}
	evt.SetChainHashes(prev)

	e.logger.Debug("emitting audit event",
		"chain", chainKey,
		"run_id", rec.RunID,
		"prev_hash", prev,
		"event_hash", evt.Chain.EventHash,
	)

	if err := e.backup.Save(evt); err != nil {
		if e.http == nil {
			return err
		}
		// HTTP is the primary path when configured
		e.logger.Warn("audit backup failed", "error", err)
	}

	if e.http != nil {
		if err := e.http.post(ctx, evt); err != nil {
			return fmt.Errorf("audit emit failed: %w", err)
		}
	}

	// The in-memory head moves even when persisting fails, so later events in
	// this process still link to evt.
	if err := e.tracker.SetHead(chainKey, evt.Chain.EventHash); err != nil {
		return fmt.Errorf("persist chain head: %w", err)
	}
	return nil
}

func (e *chainEmitter) Close() error { return nil }

type noopEmitter struct{}

func (noopEmitter) EmitRun(context.Context, *run.Record) error { return nil }
func (noopEmitter) Close() error                               { return nil }
