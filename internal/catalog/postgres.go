package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

//go:embed schema.sql
var schemaSQL string

// querier is the subset of *pgxpool.Pool the writer uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	db    querier
	close func()
	log   *slog.Logger
}

// NewPostgresWriter creates a new PostgreSQL catalog writer.
func NewPostgresWriter(ctx context.Context, cfg Config) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	// Configure connection pool
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	w := newWriter(pool, pool.Close)
	if err := w.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	w.log.Info("connected to PostgreSQL catalog")
	return w, nil
}

func newWriter(db querier, closeFn func()) *PostgresWriter {
	return &PostgresWriter{db: db, close: closeFn, log: logging.Component("catalog")}
}

// initSchema creates the catalog tables if they don't exist.
func (w *PostgresWriter) initSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

const upsertRunSQL = `
	INSERT INTO meme_runs (
		run_id, batch_id, asset_index, asset_file, asset_name, owner_address,
		state, failed_stage, success, error_message, image_cid, metadata_uri,
		token_id, mint_tx_hash, provenance_tag, token_low_confidence, verified,
		listing_id, price_minor_units, list_tx_hash, listing_low_confidence,
		started_at, finished_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23)
	ON CONFLICT (run_id)
	DO UPDATE SET
		state = EXCLUDED.state,
		failed_stage = EXCLUDED.failed_stage,
		success = EXCLUDED.success,
		error_message = EXCLUDED.error_message,
		image_cid = EXCLUDED.image_cid,
		metadata_uri = EXCLUDED.metadata_uri,
		token_id = EXCLUDED.token_id,
		mint_tx_hash = EXCLUDED.mint_tx_hash,
		provenance_tag = EXCLUDED.provenance_tag,
		token_low_confidence = EXCLUDED.token_low_confidence,
		verified = EXCLUDED.verified,
		listing_id = EXCLUDED.listing_id,
		price_minor_units = EXCLUDED.price_minor_units,
		list_tx_hash = EXCLUDED.list_tx_hash,
		listing_low_confidence = EXCLUDED.listing_low_confidence,
		finished_at = EXCLUDED.finished_at,
		updated_at = NOW()
`

// RecordRun upserts rec keyed by run id. A resumed run overwrites its
// earlier failed row.
func (w *PostgresWriter) RecordRun(ctx context.Context, rec *run.Record) error {
	if _, err := w.db.Exec(ctx, upsertRunSQL, runArgs(rec)...); err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}
	w.log.Debug("recorded run", "run_id", rec.RunID, "state", rec.State)
	return nil
}

// BatchSummary counts recorded runs of a batch.
func (w *PostgresWriter) BatchSummary(ctx context.Context, batchID string) (total, succeeded int, err error) {
	const query = `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE success)
		FROM meme_runs
		WHERE batch_id = $1
	`
	if err := w.db.QueryRow(ctx, query, batchID).Scan(&total, &succeeded); err != nil {
		return 0, 0, fmt.Errorf("batch summary %s: %w", batchID, err)
	}
	return total, succeeded, nil
}

// RunForToken returns the run id that minted tokenID, or "" if none did.
func (w *PostgresWriter) RunForToken(ctx context.Context, tokenID uint64) (string, error) {
	const query = `
		SELECT run_id FROM meme_runs
		WHERE token_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var runID string
	err := w.db.QueryRow(ctx, query, strconv.FormatUint(tokenID, 10)).Scan(&runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("run for token %d: %w", tokenID, err)
	}
	return runID, nil
}

// Close releases database connections.
func (w *PostgresWriter) Close() error {
	if w.close != nil {
		w.close()
	}
	return nil
}

// runArgs maps a record onto upsertRunSQL's placeholders. Absent results map
// to NULL; numeric ids are passed as decimal text for the NUMERIC columns.
func runArgs(rec *run.Record) []any {
	var (
		imageCID, metadataURI, tokenID, mintTx, listingID, price, listTx *string
		tokenLow, listingLow                                             bool
		finishedAt                                                       *time.Time
	)
	if rec.Image != nil {
		imageCID = &rec.Image.ContentID
	}
	if rec.Metadata != nil {
		metadataURI = &rec.Metadata.ResolvableURL
	}
	if m := rec.Mint; m != nil {
		id := strconv.FormatUint(m.TokenID, 10)
		tokenID, mintTx, tokenLow = &id, &m.TxHash, m.LowConfidence
	}
	if l := rec.Listing; l != nil {
		id := strconv.FormatUint(l.ListingID, 10)
		listingID, listTx, listingLow = &id, &l.TxHash, l.LowConfidence
		if l.PriceMinorUnits != "" {
			price = &l.PriceMinorUnits
		}
	}
	if !rec.FinishedAt.IsZero() {
		finishedAt = &rec.FinishedAt
	}

	return []any{
		rec.RunID,
		rec.BatchID,
		rec.AssetIndex,
		rec.Asset.Filename,
		rec.Asset.Name,
		rec.Owner,
		string(rec.State),
		nullable(string(rec.FailedStage)),
		rec.Success,
		nullable(rec.Error),
		imageCID,
		metadataURI,
		tokenID,
		mintTx,
		nullable(rec.ProvenanceTag),
		tokenLow,
		rec.Verified,
		listingID,
		price,
		listTx,
		listingLow,
		rec.StartedAt,
		finishedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
