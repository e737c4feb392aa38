package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/assetstore"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/market"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/metrics"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/minter"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

// upload runs the two upload stages, skipping any whose result is already on
// the record.
func (p *Pipeline) upload(ctx context.Context, rec *run.Record, asset Asset) error {
	rec.State = run.StateUploading

	if rec.Image == nil {
		err := p.stage(ctx, rec, run.StageUploadImage, func(ctx context.Context) error {
			res, err := p.deps.Store.UploadAsset(ctx, asset.Data, asset.Filename)
			if err != nil {
				return err
			}
			rec.Image = &res
			if m := metrics.Get(); m != nil {
				m.ObserveUploadBytes(float64(len(asset.Data)))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if rec.Metadata == nil {
		err := p.stage(ctx, rec, run.StageUploadMetadata, func(ctx context.Context) error {
			doc := assetstore.CreateMetadataDocument(
				rec.Asset.Name,
				rec.Asset.Description,
				rec.Image.ResolvableURL,
				rec.Asset.Attributes,
				p.deps.Now(),
				p.cfg.Metadata,
			)
			res, err := p.deps.Store.UploadMetadata(ctx, doc)
			if err != nil {
				return err
			}
			rec.Metadata = &res
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// chainStages mints, verifies and lists. It must only run on the sequencer.
func (p *Pipeline) chainStages(ctx context.Context, rec *run.Record) error {
	freshMint := false

	if rec.Mint == nil {
		rec.State = run.StateMinting
		err := p.stage(ctx, rec, run.StageMint, func(ctx context.Context) error {
			res, err := p.mint(ctx, rec)
			if err != nil {
				return err
			}
			rec.Mint = &res
			rec.MintTxHash = res.TxHash
			return nil
		})
		if err != nil {
			return err
		}
		freshMint = true
	}

	if freshMint {
		// Give the node time to index the mint before reading ownership
		err := p.stage(ctx, rec, run.StageFinalize, func(ctx context.Context) error {
			return p.deps.Sleeper.Sleep(ctx, p.cfg.FinalizeDelay)
		})
		if err != nil {
			return err
		}
	} else {
		rec.Stages[run.StageFinalize] = run.StatusSkipped
	}

	if !rec.Verified {
		rec.State = run.StateVerifying
		err := p.stage(ctx, rec, run.StageVerify, func(ctx context.Context) error {
			if err := p.deps.Verifier.VerifyOwnership(ctx, rec.Mint.TokenID, p.cfg.Owner); err != nil {
				return err
			}
			rec.Verified = true
			return nil
		})
		if err != nil {
			return err
		}
	}

	if rec.Listing != nil {
		return nil
	}
	rec.State = run.StateListing
	if !p.shouldList(rec.Asset.Price) {
		rec.ListSkipped = true
		p.notify(rec, run.StageList, run.StatusSkipped)
		p.runLogger(ctx, rec).Info("listing skipped", "token_id", rec.TokenID(), "price", rec.Asset.Price)
		return nil
	}
	rec.ListSkipped = false
	return p.stage(ctx, rec, run.StageList, func(ctx context.Context) error {
		sent := p.recordSent(ctx, rec, "list", &rec.ListTxHash)
		var res market.ListingResult
		var err error
		if rec.ListTxHash != "" {
			res, err = p.deps.Lister.ResumeListing(sent, rec.Mint.TokenID, rec.Asset.Price, rec.ListTxHash)
		} else {
			res, err = p.deps.Lister.ListForSale(sent, rec.Mint.TokenID, rec.Asset.Price)
		}
		if err != nil {
			var unresolved *market.ListingIdUnresolvedError
			if errors.As(err, &unresolved) {
				rec.ListTxHash = unresolved.TxHash
			}
			return err
		}
		rec.Listing = &res
		rec.ListTxHash = res.TxHash
		return nil
	})
}

// mint sends a new mint only when rec has no earlier mint transaction or
// that transaction reverted. Any other outcome of the earlier transaction
// stops the run for manual resolution, since minting again could create a
// second token for the same asset.
func (p *Pipeline) mint(ctx context.Context, rec *run.Record) (minter.MintResult, error) {
	if rec.MintTxHash != "" {
		res, err := p.deps.Minter.Resolve(ctx, rec.MintTxHash, rec.ProvenanceTag)
		var reverted *minter.MintTransactionFailedError
		switch {
		case err == nil:
			return res, nil
		case errors.As(err, &reverted):
			p.runLogger(ctx, rec).Info("earlier mint reverted, minting again", "tx_hash", rec.MintTxHash)
			rec.MintTxHash = ""
		default:
			return minter.MintResult{}, fmt.Errorf("%w: mint %s: %w", ErrManualResolution, rec.MintTxHash, err)
		}
	}

	sent := p.recordSent(ctx, rec, "mintTo", &rec.MintTxHash)
	res, err := p.deps.Minter.Mint(sent, p.cfg.Owner, rec.Metadata.ResolvableURL, rec.ProvenanceTag)
	if err != nil {
		var unresolved *minter.TokenIdUnresolvedError
		if errors.As(err, &unresolved) {
			rec.MintTxHash = unresolved.TxHash
		}
		return minter.MintResult{}, err
	}
	return res, nil
}

// recordSent returns a context that stores the hash of every accepted method
// transaction in *field and journals rec before the receipt is awaited.
func (p *Pipeline) recordSent(ctx context.Context, rec *run.Record, method string, field *string) context.Context {
	return chain.WithSentHook(ctx, func(tx chain.SentTx) {
		if tx.Method != method {
			return
		}
		*field = tx.Hash
		p.journal(ctx, rec)
	})
}

// shouldList is false when auto-listing is off or the price is empty or
// zero. Malformed prices are left to the lister to reject.
func (p *Pipeline) shouldList(price string) bool {
	if !p.cfg.AutoList || price == "" {
		return false
	}
	if _, err := market.ParsePrice(price); err != nil {
		var zero big.Rat
		if r, ok := new(big.Rat).SetString(price); ok && r.Cmp(&zero) == 0 {
			return false
		}
	}
	return true
}

// stage runs fn as one named stage: it reports loading and the outcome to
// the progress callback, journals the record, and observes duration.
func (p *Pipeline) stage(ctx context.Context, rec *run.Record, s run.Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: s, Err: err}
	}

	rec.State = s.State()
	p.notify(rec, s, run.StatusLoading)
	p.journal(ctx, rec)

	start := p.deps.Now()
	err := fn(ctx)
	elapsed := p.deps.Now().Sub(start)

	if m := metrics.Get(); m != nil {
		m.ObserveStageDuration(string(s), elapsed.Seconds())
	}

	log := p.runLogger(ctx, rec)
	if err != nil {
		p.notify(rec, s, run.StatusError)
		log.Warn("stage failed", "stage", s, "duration_ms", elapsed.Milliseconds(), "error", err)
		return &StageError{Stage: s, Err: err}
	}

	p.notify(rec, s, run.StatusSuccess)
	log.Debug("stage ok", "stage", s, "duration_ms", elapsed.Milliseconds())
	p.journal(ctx, rec)
	return nil
}

// notify records status on rec and calls the progress callback. A panicking
// callback is logged and otherwise ignored.
func (p *Pipeline) notify(rec *run.Record, s run.Stage, status run.StageStatus) {
	rec.Stages[s] = status
	cb := p.cfg.OnStageUpdate
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("progress callback panicked",
				"run_id", rec.RunID,
				"stage", s,
				"status", status,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	cb(rec.AssetIndex, s, status)
}

// Summary is a one-line outcome for a batch.
func Summary(recs []*run.Record, elapsed time.Duration) string {
	var done, failed, listed int
	for _, r := range recs {
		switch {
		case r.Success:
			done++
			if r.Listing != nil {
				listed++
			}
		default:
			failed++
		}
	}
	return fmt.Sprintf("%d/%d minted, %d listed, %d failed in %s",
		done, len(recs), listed, failed, elapsed.Round(time.Millisecond))
}
