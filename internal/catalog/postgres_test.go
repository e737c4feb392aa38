package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/market"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/minter"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int:
			*p = r.values[i].(int)
		case *string:
			*p = r.values[i].(string)
		}
	}
	return nil
}

type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	execErr  error
	row      fakeRow
	rowArgs  []any
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.rowArgs = args
	return f.row
}

func TestRecordRunArgs(t *testing.T) {
	db := &fakeDB{}
	w := newWriter(db, nil)
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	rec := &run.Record{
		RunID: "r1", BatchID: "b1", AssetIndex: 2,
		Asset:     run.AssetInfo{Filename: "a.png", Name: "A"},
		Owner:     "0xabc",
		State:     run.StateDone,
		Success:   true,
		Mint:      &minter.MintResult{TokenID: 42, TxHash: "0xm", LowConfidence: true},
		Listing:   &market.ListingResult{ListingID: 7, PriceMinorUnits: "10000000000000000", TxHash: "0xl"},
		StartedAt: start, FinishedAt: start.Add(time.Minute),
	}
	if err := w.RecordRun(context.Background(), rec); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if len(db.execArgs) != 1 {
		t.Fatalf("exec calls = %d", len(db.execArgs))
	}
	if !strings.Contains(db.execSQL[0], "ON CONFLICT (run_id)") {
		t.Error("RecordRun should upsert by run id")
	}

	args := db.execArgs[0]
	if len(args) != 23 {
		t.Fatalf("args = %d, want 23", len(args))
	}
	if got := *args[12].(*string); got != "42" {
		t.Errorf("token_id = %s", got)
	}
	if !args[15].(bool) {
		t.Error("token_low_confidence not set")
	}
	if got := *args[18].(*string); got != "10000000000000000" {
		t.Errorf("price = %s", got)
	}
	if args[7].(*string) != nil || args[9].(*string) != nil {
		t.Error("empty failed_stage and error should be NULL")
	}
	if args[10].(*string) != nil {
		t.Error("missing image should be NULL")
	}
}

func TestRecordRunFailedWithoutMint(t *testing.T) {
	db := &fakeDB{}
	w := newWriter(db, nil)
	rec := &run.Record{RunID: "r2", State: run.StateFailed, FailedStage: run.StateUploading, Error: "boom"}
	if err := w.RecordRun(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	args := db.execArgs[0]
	if args[12].(*string) != nil || args[17].(*string) != nil {
		t.Error("token and listing ids should be NULL")
	}
	if *args[7].(*string) != "uploading" || *args[9].(*string) != "boom" {
		t.Error("failure fields not recorded")
	}
	if args[22].(*time.Time) != nil {
		t.Error("zero finish time should be NULL")
	}
}

func TestRecordRunError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("conn reset")}
	w := newWriter(db, nil)
	err := w.RecordRun(context.Background(), &run.Record{RunID: "x"})
	if err == nil || !strings.Contains(err.Error(), "record run x") {
		t.Errorf("err = %v", err)
	}
}

func TestQueries(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{3, 2}}}
	w := newWriter(db, nil)

	total, ok, err := w.BatchSummary(context.Background(), "b")
	if err != nil || total != 3 || ok != 2 {
		t.Errorf("BatchSummary = %d %d %v", total, ok, err)
	}

	db.row = fakeRow{err: pgx.ErrNoRows}
	id, err := w.RunForToken(context.Background(), 9)
	if err != nil || id != "" {
		t.Errorf("RunForToken(missing) = %q %v", id, err)
	}
	if db.rowArgs[0] != "9" {
		t.Errorf("token arg = %v", db.rowArgs[0])
	}

	db.row = fakeRow{values: []any{"r7"}}
	if id, _ := w.RunForToken(context.Background(), 9); id != "r7" {
		t.Errorf("RunForToken = %q", id)
	}
}

func TestNoopWithoutDSN(t *testing.T) {
	w, err := NewWriter(context.Background(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.RecordRun(context.Background(), &run.Record{}); err != nil {
		t.Error(err)
	}
	if err := w.Close(); err != nil {
		t.Error(err)
	}
}

func TestSchemaEmbedded(t *testing.T) {
	if !strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS meme_runs") {
		t.Error("schema not embedded")
	}
}
