// Package pipeline runs the per-asset mint-and-list state machine.
//
// Uploads may run ahead on a pool of workers, but every stage that sends a
// transaction runs on a single sequencer in asset order, so one signing key
// never has two transactions in flight from the pipeline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/assetstore"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/audit"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/catalog"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/checkpoint"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/metrics"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/retry"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

// Deps are the services a pipeline calls. Store, Minter, Verifier and Lister
// are required; the rest default to no-ops.
type Deps struct {
	Store    assetstore.Store
	Minter   Minter
	Verifier Verifier
	Lister   Lister
	Loader   AssetLoader
	Journal  checkpoint.Journal
	Results  ResultsWriter
	Catalog  catalog.Writer
	Audit    Auditor
	Sleeper  retry.Sleeper
	Now      func() time.Time
	NewID    func() string
}

// Pipeline sequences uploads, mints, verification and listing.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
}

// New validates cfg and deps.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	var missing []string
	if deps.Store == nil {
		missing = append(missing, "asset store")
	}
	if deps.Minter == nil {
		missing = append(missing, "minter")
	}
	if deps.Verifier == nil {
		missing = append(missing, "verifier")
	}
	if deps.Lister == nil {
		missing = append(missing, "lister")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing %v", missing)
	}

	owner, ok := chain.ParseAddress(cfg.Owner)
	if !ok {
		return nil, fmt.Errorf("pipeline: invalid owner address %q", cfg.Owner)
	}
	cfg.Owner = owner.Hex()
	if cfg.UploadWorkers < 1 {
		cfg.UploadWorkers = 1
	}

	if deps.Journal == nil {
		deps.Journal, _ = checkpoint.NewJournal(checkpoint.Config{})
	}
	if deps.Catalog == nil {
		deps.Catalog, _ = catalog.NewWriter(context.Background(), catalog.Config{})
	}
	if deps.Audit == nil {
		deps.Audit, _ = audit.NewEmitter(audit.Config{})
	}
	if deps.Sleeper == nil {
		deps.Sleeper = retry.RealSleeper
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return uuid.New().String() }
	}

	return &Pipeline{cfg: cfg, deps: deps, log: logging.Component("pipeline")}, nil
}

// Owner is the normalized owner address.
func (p *Pipeline) Owner() string { return p.cfg.Owner }

// Run processes assets as one batch and returns one record per asset in
// input order. A failing asset is recorded and the batch continues. The
// error is non-nil only when ctx ends; unfinished assets are then recorded
// as failed with the context error.
func (p *Pipeline) Run(ctx context.Context, assets []Asset) ([]*run.Record, error) {
	batchID := p.deps.NewID()
	recs := make([]*run.Record, len(assets))
	for i, a := range assets {
		recs[i] = p.newRecord(batchID, i, a)
	}
	if len(assets) == 0 {
		return recs, nil
	}

	start := p.deps.Now()
	p.log.Info("starting batch",
		"batch_id", batchID,
		"assets", len(assets),
		"upload_workers", p.cfg.UploadWorkers,
	)

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan uploadTask)
	done := make(chan uploadResult, p.cfg.UploadWorkers)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.UploadWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.uploadWorker(workCtx, workerID, recs, work, done)
		}(i)
	}
	go p.dispatch(workCtx, assets, work)
	go func() {
		wg.Wait()
		close(done)
	}()

	seqErr := p.sequence(ctx, recs, done)

	// Stop workers and wait for them before touching records they may own.
	cancel()
	for range done {
	}

	if seqErr != nil {
		for _, rec := range recs {
			if !rec.Terminal() {
				p.finish(ctx, rec, seqErr)
			}
		}
	}

	p.writeResults(ctx, batchID, recs)

	succeeded := 0
	for _, r := range recs {
		if r.Success {
			succeeded++
		}
	}
	p.log.Info("batch finished",
		"batch_id", batchID,
		"succeeded", succeeded,
		"failed", len(recs)-succeeded,
		"duration_ms", p.deps.Now().Sub(start).Milliseconds(),
	)
	return recs, seqErr
}

// dispatch sends upload tasks to workers in asset order.
func (p *Pipeline) dispatch(ctx context.Context, assets []Asset, work chan<- uploadTask) {
	defer close(work)

	for i, a := range assets {
		if m := metrics.Get(); m != nil {
			m.SetUploadQueueDepth(float64(len(assets) - i))
		}
		select {
		case <-ctx.Done():
			return
		case work <- uploadTask{index: i, asset: a}:
		}
	}
	if m := metrics.Get(); m != nil {
		m.SetUploadQueueDepth(0)
	}
}

// uploadWorker runs the upload stages. It owns a record from receipt of the
// task until the result is handed to the sequencer.
func (p *Pipeline) uploadWorker(ctx context.Context, workerID int, recs []*run.Record, work <-chan uploadTask, done chan<- uploadResult) {
	log := logging.WorkerLogger(workerID).With("component", "pipeline")

	for task := range work {
		rec := recs[task.index]
		log.Debug("uploading asset", "asset_index", task.index, "file", task.asset.Filename)

		err := p.upload(ctx, rec, task.asset)
		select {
		case done <- uploadResult{index: task.index, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// sequence runs chain stages in asset order as uploads complete.
func (p *Pipeline) sequence(ctx context.Context, recs []*run.Record, done <-chan uploadResult) error {
	pending := make(map[int]error)
	next := 0
	chainRan := false

	for next < len(recs) {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case res, ok := <-done:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return fmt.Errorf("upload workers stopped before asset %d", next)
			}
			pending[res.index] = res.err
			if m := metrics.Get(); m != nil {
				m.SetSequencerPending(float64(len(pending)))
			}

			// Flush in order as far as possible
			for {
				uploadErr, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				rec := recs[next]
				next++

				if uploadErr != nil {
					p.finish(ctx, rec, uploadErr)
					if err := ctx.Err(); err != nil {
						return err
					}
					continue
				}

				if chainRan {
					if err := p.deps.Sleeper.Sleep(ctx, p.cfg.InterAssetDelay); err != nil {
						return err
					}
				}
				err := p.chainStages(ctx, rec)
				chainRan = true
				p.finish(ctx, rec, err)
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// RunOne processes a single asset. Unlike Run, a stage failure is returned.
func (p *Pipeline) RunOne(ctx context.Context, asset Asset) (*run.Record, error) {
	rec := p.newRecord(p.deps.NewID(), 0, asset)

	err := p.upload(ctx, rec, asset)
	if err == nil {
		err = p.chainStages(ctx, rec)
	}
	p.finish(ctx, rec, err)
	p.writeResults(ctx, rec.BatchID, []*run.Record{rec})
	return rec, err
}

// Resume continues a journaled run from its last completed stage. Stages
// whose results are on the record are not repeated.
func (p *Pipeline) Resume(ctx context.Context, prev *run.Record) (*run.Record, error) {
	if prev.State == run.StateDone {
		return prev, nil
	}
	if prev.Owner != "" && !sameAddress(prev.Owner, p.cfg.Owner) {
		return prev, fmt.Errorf("%w: run %s belongs to %s", ErrManualResolution, prev.RunID, prev.Owner)
	}

	rec := prev.Clone()
	rec.Owner = p.cfg.Owner
	rec.Error = ""
	rec.FailedStage = ""
	rec.Success = false
	rec.FinishedAt = time.Time{}
	rec.Attempts++

	p.runLogger(ctx, rec).Info("resuming run",
		"attempt", rec.Attempts,
		"token_id", rec.TokenID(),
	)

	var err error
	if rec.Image == nil || rec.Metadata == nil {
		err = p.resumeUpload(ctx, rec)
	}
	if err == nil {
		err = p.chainStages(ctx, rec)
	}
	p.finish(ctx, rec, err)
	return rec, err
}

func (p *Pipeline) resumeUpload(ctx context.Context, rec *run.Record) error {
	asset := Asset{
		Filename:    rec.Asset.Filename,
		Path:        rec.Asset.Path,
		Name:        rec.Asset.Name,
		Description: rec.Asset.Description,
		Attributes:  rec.Asset.Attributes,
		Price:       rec.Asset.Price,
	}
	if rec.Image == nil {
		if p.deps.Loader == nil || rec.Asset.Path == "" {
			return &StageError{Stage: run.StageUploadImage, Err: errors.New("asset bytes are not available to resume the upload")}
		}
		loaded, err := p.deps.Loader.Load(ctx, rec.Asset.Path)
		if err != nil {
			return &StageError{Stage: run.StageUploadImage, Err: fmt.Errorf("reload asset: %w", err)}
		}
		asset.Data = loaded.Data
	}
	return p.upload(ctx, rec, asset)
}

// ResumePending resumes every journaled run that is not done, oldest first,
// pausing between chain sequences like Run.
func (p *Pipeline) ResumePending(ctx context.Context) ([]*run.Record, error) {
	pending, err := p.deps.Journal.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	out := make([]*run.Record, 0, len(pending))
	for i, prev := range pending {
		if i > 0 {
			if err := p.deps.Sleeper.Sleep(ctx, p.cfg.InterAssetDelay); err != nil {
				return out, err
			}
		}
		rec, err := p.Resume(ctx, prev)
		out = append(out, rec)
		if err != nil {
			p.log.Warn("resume failed", "run_id", prev.RunID, "error", err)
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
		}
	}
	return out, nil
}

func (p *Pipeline) newRecord(batchID string, index int, a Asset) *run.Record {
	price := a.Price
	if price == "" {
		price = p.cfg.DefaultPrice
	}
	stages := make(map[run.Stage]run.StageStatus, len(run.Stages))
	for _, s := range run.Stages {
		stages[s] = run.StatusPending
	}
	now := p.deps.Now()
	return &run.Record{
		RunID:      p.deps.NewID(),
		BatchID:    batchID,
		AssetIndex: index,
		Asset: run.AssetInfo{
			Path:        a.Path,
			Filename:    a.Filename,
			Name:        a.Name,
			Description: a.Description,
			Attributes:  a.Attributes,
			Price:       price,
		},
		Owner:         p.cfg.Owner,
		State:         run.StateUploading,
		ProvenanceTag: assetstore.GenerateProvenanceTag(a.Name, a.Description, now),
		Stages:        stages,
		Attempts:      1,
		StartedAt:     now.UTC(),
	}
}

// finish marks rec terminal and records it. Bookkeeping ignores the run
// context's cancellation so an aborted run is still journaled.
func (p *Pipeline) finish(ctx context.Context, rec *run.Record, err error) {
	bg := context.WithoutCancel(ctx)
	rec.FinishedAt = p.deps.Now().UTC()
	log := p.runLogger(ctx, rec)

	if err != nil {
		var se *StageError
		failedAt := rec.State
		if errors.As(err, &se) {
			failedAt = se.Stage.State()
			err = se.Err
		}
		rec.FailedStage = failedAt
		rec.State = run.StateFailed
		rec.Success = false
		rec.Error = err.Error()

		log.Error("run failed", "failed_stage", failedAt, "token_id", rec.TokenID(), "error", err)
		if m := metrics.Get(); m != nil {
			m.IncRunCompleted("failed")
			m.IncStageFailure(string(failedAt))
		}
		p.journal(bg, rec)
	} else {
		rec.State = run.StateDone
		rec.Success = true
		log.Info("run done", "token_id", rec.TokenID(), "listed", rec.Listing != nil)
		if m := metrics.Get(); m != nil {
			m.IncRunCompleted("done")
		}
		if err := p.deps.Journal.Delete(bg, rec.RunID); err != nil {
			p.subsystemError(log, "journal", err)
		}
	}

	if m := metrics.Get(); m != nil {
		m.ObserveRunDuration(rec.FinishedAt.Sub(rec.StartedAt).Seconds())
	}
	if err := p.deps.Catalog.RecordRun(bg, rec); err != nil {
		p.subsystemError(log, "catalog", err)
	}
	if err := p.deps.Audit.EmitRun(bg, rec); err != nil {
		p.subsystemError(log, "audit", err)
	}
}

func (p *Pipeline) writeResults(ctx context.Context, batchID string, recs []*run.Record) {
	if p.deps.Results == nil {
		return
	}
	sorted := append([]*run.Record(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AssetIndex < sorted[j].AssetIndex })
	if _, err := p.deps.Results.WriteBatch(context.WithoutCancel(ctx), batchID, sorted); err != nil {
		p.subsystemError(p.log.With("batch_id", batchID), "results", err)
	}
}

func (p *Pipeline) journal(ctx context.Context, rec *run.Record) {
	if err := p.deps.Journal.Save(ctx, rec); err != nil {
		p.subsystemError(p.runLogger(ctx, rec), "journal", err)
	}
}

func (p *Pipeline) subsystemError(log *slog.Logger, subsystem string, err error) {
	log.Warn("subsystem error", "subsystem", subsystem, "error", err)
	if m := metrics.Get(); m != nil {
		m.IncSubsystemError(subsystem)
	}
}

func (p *Pipeline) runLogger(ctx context.Context, rec *run.Record) *slog.Logger {
	return logging.RunLogger(ctx, rec.BatchID, rec.RunID, rec.AssetIndex).With("component", "pipeline")
}

func sameAddress(a, b string) bool {
	x, okA := chain.ParseAddress(a)
	y, okB := chain.ParseAddress(b)
	return okA && okB && x == y
}
