package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/assetstore"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain/chaintest"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/checkpoint"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/market"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/minter"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/results"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/retry"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/storage"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/verify"
)

const (
	finalizeDelay   = 15 * time.Second
	interAssetDelay = 8 * time.Second
)

// flakyStore fails uploads for the named files.
type flakyStore struct {
	*assetstore.BlobStore
	fail map[string]bool
}

func (s *flakyStore) UploadAsset(ctx context.Context, data []byte, filename string) (assetstore.UploadResult, error) {
	if s.fail[filename] {
		return assetstore.UploadResult{}, &assetstore.UploadError{Op: "asset", StatusCode: 500, Body: "boom"}
	}
	return s.BlobStore.UploadAsset(ctx, data, filename)
}

// mapLoader serves asset bytes by path.
type mapLoader map[string]Asset

func (l mapLoader) Load(_ context.Context, key string) (Asset, error) {
	a, ok := l[key]
	if !ok {
		return Asset{}, fmt.Errorf("no asset %s", key)
	}
	return a, nil
}

// auditLog collects emitted runs.
type auditLog struct {
	mu   sync.Mutex
	runs []string
}

func (a *auditLog) EmitRun(_ context.Context, rec *run.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs = append(a.runs, fmt.Sprintf("%d:%s", rec.AssetIndex, rec.State))
	return nil
}

type harness struct {
	env     *chaintest.Env
	store   *flakyStore
	sleeper *retry.Recorder
	journal checkpoint.Journal
	results *results.Writer
	audit   *auditLog
	deps    Deps
	cfg     Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	env := chaintest.NewEnv(t)

	journal, err := checkpoint.NewJournal(checkpoint.Config{Enabled: true, Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}
	ids := 0
	newID := func() string {
		mu.Lock()
		defer mu.Unlock()
		ids++
		return fmt.Sprintf("id-%03d", ids)
	}

	h := &harness{
		env:     env,
		store:   &flakyStore{BlobStore: assetstore.NewBlobStore(storage.NewMemStore("assets/")), fail: map[string]bool{}},
		sleeper: &retry.Recorder{},
		journal: journal,
		results: results.NewWriter(storage.NewMemStore("runs/"), results.Config{}),
		audit:   &auditLog{},
	}
	h.deps = Deps{
		Store:    h.store,
		Minter:   minter.New(env.Minter, 0),
		Verifier: verify.New(env.Minter, retry.Fixed(3, time.Second), &retry.Recorder{}),
		Lister:   market.New(env.Minter, env.Market, env.Ledger, env.Signer.Address(), market.Config{}),
		Journal:  journal,
		Results:  h.results,
		Audit:    h.audit,
		Sleeper:  h.sleeper,
		Now:      now,
		NewID:    newID,
	}
	h.cfg = Config{
		Owner:           env.Signer.Address().Hex(),
		DefaultPrice:    "0.01",
		AutoList:        true,
		FinalizeDelay:   finalizeDelay,
		InterAssetDelay: interAssetDelay,
		UploadWorkers:   1,
	}
	return h
}

func (h *harness) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(h.cfg, h.deps)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func countSent(env *chaintest.Env, method string) int {
	n := 0
	for _, m := range env.Ledger.Sent() {
		if m == method {
			n++
		}
	}
	return n
}

func testAssets(names ...string) []Asset {
	out := make([]Asset, len(names))
	for i, n := range names {
		out[i] = Asset{
			Data:        []byte("image-" + n),
			Filename:    n + ".png",
			Path:        n + ".png",
			Name:        "Viral Meme NFT #" + n,
			Description: "test meme " + n,
			Attributes:  []assetstore.Attribute{{TraitType: "Meme Template", Value: n}},
		}
	}
	return out
}

func TestRunContinuesPastFailedAsset(t *testing.T) {
	h := newHarness(t)
	h.store.fail["two.png"] = true
	p := h.pipeline(t)
	ctx := context.Background()

	recs, err := p.Run(ctx, testAssets("one", "two", "three"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records", len(recs))
	}

	if !recs[0].Success || recs[0].State != run.StateDone || recs[0].TokenID() != 1 || recs[0].Listing == nil || recs[0].Listing.ListingID != 1 {
		t.Errorf("record 0 = %+v", recs[0])
	}
	if recs[1].Success || recs[1].State != run.StateFailed || recs[1].FailedStage != run.StateUploading {
		t.Errorf("record 1 = %+v", recs[1])
	}
	if !strings.Contains(recs[1].Error, "http 500") {
		t.Errorf("record 1 error = %q", recs[1].Error)
	}
	if recs[1].Mint != nil || recs[1].Stages[run.StageUploadImage] != run.StatusError {
		t.Errorf("record 1 should stop at upload: %+v", recs[1])
	}
	if !recs[2].Success || recs[2].TokenID() != 2 || recs[2].Listing.ListingID != 2 {
		t.Errorf("record 2 = %+v", recs[2])
	}

	wantSent := []string{"mintTo", "setApprovalForAll", "list", "mintTo", "list"}
	if got := h.env.Ledger.Sent(); !reflect.DeepEqual(got, wantSent) {
		t.Errorf("sent = %v, want %v", got, wantSent)
	}

	// Inter-asset delay only between chain sequences, never after the last.
	wantSleeps := []time.Duration{finalizeDelay, interAssetDelay, finalizeDelay}
	if got := h.sleeper.Sleeps(); !reflect.DeepEqual(got, wantSleeps) {
		t.Errorf("sleeps = %v, want %v", got, wantSleeps)
	}

	pending, err := h.journal.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].RunID != recs[1].RunID {
		t.Errorf("journal pending = %+v, want only the failed run", pending)
	}

	wantAudit := []string{"0:done", "1:failed", "2:done"}
	if !reflect.DeepEqual(h.audit.runs, wantAudit) {
		t.Errorf("audit = %v, want %v", h.audit.runs, wantAudit)
	}

	batches, err := h.results.Batches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 || batches[0] != recs[0].BatchID {
		t.Fatalf("batches = %v", batches)
	}
	written, err := h.results.ReadBatch(ctx, batches[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 3 || written[1].FailedStage != run.StateUploading {
		t.Errorf("written batch = %+v", written)
	}
}

func TestRunKeepsChainOrderWithParallelUploads(t *testing.T) {
	h := newHarness(t)
	h.cfg.UploadWorkers = 4
	p := h.pipeline(t)

	assets := testAssets("a", "b", "c", "d", "e", "f")
	recs, err := p.Run(context.Background(), assets)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for i, rec := range recs {
		if !rec.Success {
			t.Fatalf("record %d failed: %s", i, rec.Error)
		}
		if rec.AssetIndex != i || rec.TokenID() != uint64(i+1) {
			t.Errorf("record %d: index %d token %d", i, rec.AssetIndex, rec.TokenID())
		}
		if rec.Asset.Filename != assets[i].Filename {
			t.Errorf("record %d filename = %q", i, rec.Asset.Filename)
		}
	}
	if got := h.sleeper.Total(); got != 6*finalizeDelay+5*interAssetDelay {
		t.Errorf("total sleep = %v", got)
	}
}

func TestRunEmptyBatch(t *testing.T) {
	h := newHarness(t)
	recs, err := h.pipeline(t).Run(context.Background(), nil)
	if err != nil || len(recs) != 0 {
		t.Fatalf("Run(nil) = %v, %v", recs, err)
	}
	if len(h.env.Ledger.Sent()) != 0 {
		t.Error("empty batch sent transactions")
	}
}

func TestListingSkipped(t *testing.T) {
	tests := []struct {
		name     string
		autoList bool
		price    string
	}{
		{name: "auto list off", autoList: false, price: "0.01"},
		{name: "empty price", autoList: true, price: ""},
		{name: "zero price", autoList: true, price: "0"},
		{name: "zero decimal price", autoList: true, price: "0.000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.cfg.AutoList = tt.autoList
			h.cfg.DefaultPrice = tt.price
			p := h.pipeline(t)

			rec, err := p.RunOne(context.Background(), testAssets("solo")[0])
			if err != nil {
				t.Fatalf("RunOne failed: %v", err)
			}
			if !rec.Success || !rec.ListSkipped || rec.Listing != nil {
				t.Errorf("record = %+v", rec)
			}
			if rec.Stages[run.StageList] != run.StatusSkipped {
				t.Errorf("list stage = %q", rec.Stages[run.StageList])
			}
			if got := h.env.Ledger.Sent(); !reflect.DeepEqual(got, []string{"mintTo"}) {
				t.Errorf("sent = %v", got)
			}
		})
	}
}

func TestAssetPriceOverridesDefault(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline(t)

	a := testAssets("pricy")[0]
	a.Price = "2.5"
	rec, err := p.RunOne(context.Background(), a)
	if err != nil {
		t.Fatalf("RunOne failed: %v", err)
	}
	if rec.Listing.Price != "2.5" || rec.Listing.PriceMinorUnits != "2500000000000000000" {
		t.Errorf("listing = %+v", rec.Listing)
	}
}

func TestInvalidPriceFailsAtListing(t *testing.T) {
	h := newHarness(t)
	h.cfg.DefaultPrice = "-1"
	p := h.pipeline(t)

	rec, err := p.RunOne(context.Background(), testAssets("neg")[0])
	var invalid *market.InvalidPriceError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidPriceError", err)
	}
	if rec.FailedStage != run.StateListing || rec.TokenID() != 1 || !rec.Verified {
		t.Errorf("record = %+v", rec)
	}
}

func TestStageCallbacks(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var events []string
	h.cfg.OnStageUpdate = func(idx int, s run.Stage, status run.StageStatus) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, fmt.Sprintf("%d:%s:%s", idx, s, status))
	}
	p := h.pipeline(t)

	if _, err := p.RunOne(context.Background(), testAssets("cb")[0]); err != nil {
		t.Fatalf("RunOne failed: %v", err)
	}
	want := []string{
		"0:upload_image:loading", "0:upload_image:success",
		"0:upload_metadata:loading", "0:upload_metadata:success",
		"0:mint:loading", "0:mint:success",
		"0:finalize:loading", "0:finalize:success",
		"0:verify:loading", "0:verify:success",
		"0:list:loading", "0:list:success",
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events =\n%v\nwant\n%v", events, want)
	}
}

func TestPanickingCallbackIsIgnored(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.cfg.OnStageUpdate = func(int, run.Stage, run.StageStatus) {
		calls++
		panic("progress bar exploded")
	}
	p := h.pipeline(t)

	rec, err := p.RunOne(context.Background(), testAssets("panic")[0])
	if err != nil {
		t.Fatalf("RunOne failed: %v", err)
	}
	if !rec.Success || calls != 12 {
		t.Errorf("success = %v, calls = %d", rec.Success, calls)
	}
}

func TestRunOneReturnsStageError(t *testing.T) {
	h := newHarness(t)
	h.env.Ledger.FailMethods["mintTo"] = true
	p := h.pipeline(t)

	rec, err := p.RunOne(context.Background(), testAssets("revert")[0])
	var failed *minter.MintTransactionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want MintTransactionFailedError", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != run.StageMint {
		t.Errorf("stage error = %v", se)
	}
	if rec.State != run.StateFailed || rec.FailedStage != run.StateMinting || rec.Mint != nil {
		t.Errorf("record = %+v", rec)
	}
	if rec.Image == nil || rec.Metadata == nil {
		t.Error("upload results should survive a mint failure")
	}
}

func TestVerificationFailureKeepsMint(t *testing.T) {
	h := newHarness(t)
	h.env.Ledger.OwnerOfFailures = 10
	p := h.pipeline(t)

	rec, err := p.RunOne(context.Background(), testAssets("lag")[0])
	var verr *verify.OwnershipVerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want OwnershipVerificationError", err)
	}
	if rec.FailedStage != run.StateVerifying || rec.TokenID() != 1 || rec.Verified {
		t.Errorf("record = %+v", rec)
	}
	if got := countSent(h.env, "list"); got != 0 {
		t.Errorf("list called %d times after failed verification", got)
	}

	// The ledger recovers; resuming verifies and lists without re-minting.
	h.env.Ledger.OwnerOfFailures = 0
	resumed, err := p.Resume(context.Background(), rec)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !resumed.Success || resumed.TokenID() != 1 || resumed.Attempts != 2 {
		t.Errorf("resumed = %+v", resumed)
	}
	if resumed.Stages[run.StageFinalize] != run.StatusSkipped {
		t.Errorf("finalize = %q, want skipped on resume", resumed.Stages[run.StageFinalize])
	}
	if got := countSent(h.env, "mintTo"); got != 1 {
		t.Errorf("mintTo sent %d times", got)
	}
}

// cancelAfterMint cancels the run once the first mint is mined.
type cancelAfterMint struct {
	Minter
	cancel context.CancelFunc
}

func (c *cancelAfterMint) Mint(ctx context.Context, to, uri, tag string) (minter.MintResult, error) {
	res, err := c.Minter.Mint(ctx, to, uri, tag)
	c.cancel()
	return res, err
}

func TestCancelledRunIsResumable(t *testing.T) {
	h := newHarness(t)
	assets := testAssets("first", "second")
	loader := mapLoader{}
	for _, a := range assets {
		loader[a.Path] = a
	}
	h.deps.Loader = loader

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.deps.Minter = &cancelAfterMint{Minter: h.deps.Minter, cancel: cancel}
	p := h.pipeline(t)

	recs, err := p.Run(ctx, assets)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	for i, rec := range recs {
		if rec.State != run.StateFailed || !strings.Contains(rec.Error, "context canceled") {
			t.Errorf("record %d = %+v", i, rec)
		}
	}
	if recs[0].TokenID() != 1 || recs[0].FailedStage != run.StateMinting {
		t.Errorf("record 0 should be minted and stopped before verify: %+v", recs[0])
	}

	// Resume with a fresh pipeline whose minter is not wired to cancel.
	h.deps.Minter = minter.New(h.env.Minter, 0)
	p = h.pipeline(t)
	resumed, err := p.ResumePending(context.Background())
	if err != nil {
		t.Fatalf("ResumePending failed: %v", err)
	}
	if len(resumed) != 2 {
		t.Fatalf("resumed %d runs", len(resumed))
	}
	for i, rec := range resumed {
		if !rec.Success {
			t.Errorf("resumed %d failed: %s", i, rec.Error)
		}
	}
	if resumed[0].TokenID() != 1 || resumed[1].TokenID() != 2 {
		t.Errorf("token ids = %d, %d", resumed[0].TokenID(), resumed[1].TokenID())
	}
	if got := countSent(h.env, "mintTo"); got != 2 {
		t.Errorf("mintTo sent %d times, want 2", got)
	}

	left, err := h.journal.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("journal still holds %d runs", len(left))
	}
}

func TestResumeRefusesAmbiguousRuns(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  *run.Record
	}{
		{
			name: "unconfirmed mint",
			rec: &run.Record{
				RunID:      "r1",
				State:      run.StateFailed,
				MintTxHash: "0x00000000000000000000000000000000000000000000000000000000000000ab",
				Owner:      p.Owner(),
				Image:      &assetstore.UploadResult{ResolvableURL: "ipfs://image"},
				Metadata:   &assetstore.UploadResult{ResolvableURL: "ipfs://meta"},
			},
		},
		{
			name: "different owner",
			rec:  &run.Record{RunID: "r2", State: run.StateFailed, Owner: "0x52908400098527886E0F7030069857D2E4169EE7"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Resume(ctx, tt.rec)
			if !errors.Is(err, ErrManualResolution) {
				t.Errorf("err = %v, want ErrManualResolution", err)
			}
		})
	}
	if len(h.env.Ledger.Sent()) != 0 {
		t.Error("refused resumes sent transactions")
	}
}

// journaledMint records the journaled mint hash once Mint returns.
type journaledMint struct {
	Minter
	journal checkpoint.Journal
	seen    string
}

func (m *journaledMint) Mint(ctx context.Context, to, uri, tag string) (minter.MintResult, error) {
	res, err := m.Minter.Mint(ctx, to, uri, tag)
	if pending, jerr := m.journal.Pending(ctx); jerr == nil && len(pending) == 1 {
		m.seen = pending[0].MintTxHash
	}
	return res, err
}

// receiptPolls outlasts the chaintest receipt timeout.
const receiptPolls = 11

func TestUnconfirmedMintIsResolvedOnResume(t *testing.T) {
	h := newHarness(t)
	jm := &journaledMint{Minter: h.deps.Minter, journal: h.journal}
	h.deps.Minter = jm
	h.env.Ledger.PendingPolls = receiptPolls
	p := h.pipeline(t)
	ctx := context.Background()

	rec, err := p.RunOne(ctx, testAssets("slow")[0])
	if !errors.Is(err, chain.ErrReceiptTimeout) {
		t.Fatalf("err = %v, want ErrReceiptTimeout", err)
	}
	if rec.FailedStage != run.StateMinting || rec.Mint != nil || rec.MintTxHash == "" {
		t.Fatalf("record = %+v", rec)
	}
	if jm.seen != rec.MintTxHash {
		t.Errorf("journaled hash before wait = %q, want %q", jm.seen, rec.MintTxHash)
	}

	h.env.Ledger.PendingPolls = 0
	pending, err := h.journal.Pending(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("journal pending = %v, %v", pending, err)
	}
	resumed, err := p.Resume(ctx, pending[0])
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !resumed.Success || resumed.TokenID() != 1 || resumed.Mint.TxHash != rec.MintTxHash {
		t.Errorf("resumed = %+v", resumed)
	}
	if got := countSent(h.env, "mintTo"); got != 1 {
		t.Errorf("mintTo sent %d times, want 1", got)
	}
	if got := h.env.Ledger.Owner(2); got != (common.Address{}) {
		t.Errorf("token 2 exists, owned by %s", got.Hex())
	}
}

func TestStillPendingMintNeedsManualResolution(t *testing.T) {
	h := newHarness(t)
	h.env.Ledger.PendingPolls = 1000
	p := h.pipeline(t)
	ctx := context.Background()

	rec, err := p.RunOne(ctx, testAssets("stuck")[0])
	if err == nil || rec.MintTxHash == "" {
		t.Fatalf("RunOne = %+v, %v", rec, err)
	}

	resumed, err := p.Resume(ctx, rec)
	if !errors.Is(err, ErrManualResolution) {
		t.Fatalf("err = %v, want ErrManualResolution", err)
	}
	if resumed.MintTxHash != rec.MintTxHash || resumed.Mint != nil {
		t.Errorf("resumed = %+v", resumed)
	}
	if got := countSent(h.env, "mintTo"); got != 1 {
		t.Errorf("mintTo sent %d times, want 1", got)
	}
}

func TestRevertedMintIsSentAgainOnResume(t *testing.T) {
	h := newHarness(t)
	h.env.Ledger.FailMethods["mintTo"] = true
	h.env.Ledger.PendingPolls = receiptPolls
	p := h.pipeline(t)
	ctx := context.Background()

	rec, err := p.RunOne(ctx, testAssets("revert")[0])
	if err == nil || rec.MintTxHash == "" {
		t.Fatalf("RunOne = %+v, %v", rec, err)
	}

	h.env.Ledger.FailMethods["mintTo"] = false
	h.env.Ledger.PendingPolls = 0
	resumed, err := p.Resume(ctx, rec)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.TokenID() != 1 || resumed.MintTxHash == rec.MintTxHash {
		t.Errorf("resumed = %+v", resumed)
	}
	if got := countSent(h.env, "mintTo"); got != 2 {
		t.Errorf("mintTo sent %d times, want 2", got)
	}
}

// slowList leaves the list receipt unconfirmed past the wait.
type slowList struct {
	Lister
	ledger *chaintest.Ledger
}

func (l *slowList) ListForSale(ctx context.Context, tokenID uint64, price string) (market.ListingResult, error) {
	l.ledger.PendingPolls = receiptPolls
	defer func() { l.ledger.PendingPolls = 0 }()
	return l.Lister.ListForSale(ctx, tokenID, price)
}

func TestUnconfirmedListingIsAdoptedOnResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.env.Minter.SetApprovalForAll(ctx, chaintest.MarketAddress, true, market.DefaultApprovalGas); err != nil {
		t.Fatalf("SetApprovalForAll failed: %v", err)
	}
	h.deps.Lister = &slowList{Lister: h.deps.Lister, ledger: h.env.Ledger}
	p := h.pipeline(t)

	rec, err := p.RunOne(ctx, testAssets("slowlist")[0])
	if !errors.Is(err, chain.ErrReceiptTimeout) {
		t.Fatalf("err = %v, want ErrReceiptTimeout", err)
	}
	if rec.FailedStage != run.StateListing || rec.Listing != nil || rec.ListTxHash == "" {
		t.Fatalf("record = %+v", rec)
	}

	resumed, err := p.Resume(ctx, rec)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.Listing == nil || resumed.Listing.ListingID != 1 || resumed.Listing.TxHash != rec.ListTxHash {
		t.Errorf("resumed listing = %+v", resumed.Listing)
	}
	if got := countSent(h.env, "list"); got != 1 {
		t.Errorf("list sent %d times, want 1", got)
	}
	if got := countSent(h.env, "mintTo"); got != 1 {
		t.Errorf("mintTo sent %d times, want 1", got)
	}
}

func TestResumeDoneIsNoop(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline(t)
	done := &run.Record{RunID: "r", State: run.StateDone, Success: true}
	got, err := p.Resume(context.Background(), done)
	if err != nil || got != done {
		t.Errorf("Resume(done) = %v, %v", got, err)
	}
}

func TestNewValidates(t *testing.T) {
	h := newHarness(t)

	cfg := h.cfg
	cfg.Owner = "not-an-address"
	if _, err := New(cfg, h.deps); err == nil {
		t.Error("expected invalid owner error")
	}

	deps := h.deps
	deps.Minter = nil
	deps.Lister = nil
	_, err := New(h.cfg, deps)
	if err == nil || !strings.Contains(err.Error(), "minter") || !strings.Contains(err.Error(), "lister") {
		t.Errorf("err = %v", err)
	}

	cfg = h.cfg
	cfg.Owner = strings.ToLower(h.cfg.Owner)
	p, err := New(cfg, h.deps)
	if err != nil {
		t.Fatal(err)
	}
	if p.Owner() != h.env.Signer.Address().Hex() {
		t.Errorf("owner = %q, want checksummed", p.Owner())
	}
}

func TestSummary(t *testing.T) {
	recs := []*run.Record{
		{Success: true, Listing: &market.ListingResult{ListingID: 1}},
		{Success: true, ListSkipped: true},
		{State: run.StateFailed},
	}
	got := Summary(recs, 1500*time.Millisecond)
	want := "2/3 minted, 1 listed, 1 failed in 1.5s"
	if got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}
}
