package pipeline

import (
	"context"
	"time"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/assetstore"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/market"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/minter"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/results"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

// Asset is one image to mint, with its display metadata.
type Asset struct {
	Data        []byte
	Filename    string
	Path        string // source key, used to reload the bytes on resume
	Name        string
	Description string
	Attributes  []assetstore.Attribute
	Price       string // overrides the default listing price when set
}

// Minter mints a token to an owner, or recovers an earlier mint from its
// transaction hash without sending a new one.
type Minter interface {
	Mint(ctx context.Context, to, metadataURI, provenanceTag string) (minter.MintResult, error)
	Resolve(ctx context.Context, txHash, provenanceTag string) (minter.MintResult, error)
}

// Verifier confirms a freshly minted token is readable as owned.
type Verifier interface {
	VerifyOwnership(ctx context.Context, tokenID uint64, expectedOwner string) error
}

// Lister lists a token on the marketplace. ResumeListing settles a listing
// whose transaction was sent by an earlier attempt.
type Lister interface {
	ListForSale(ctx context.Context, tokenID uint64, price string) (market.ListingResult, error)
	ResumeListing(ctx context.Context, tokenID uint64, price, txHash string) (market.ListingResult, error)
}

// AssetLoader reloads an asset by its source key.
type AssetLoader interface {
	Load(ctx context.Context, key string) (Asset, error)
}

// ResultsWriter persists the terminal records of a batch.
type ResultsWriter interface {
	WriteBatch(ctx context.Context, batchID string, recs []*run.Record) (*results.Manifest, error)
}

// Auditor records terminal runs in an audit log.
type Auditor interface {
	EmitRun(ctx context.Context, rec *run.Record) error
}

// StageFunc receives progress updates. It may be called from several
// goroutines when more than one upload worker is configured. Panics are
// recovered and logged.
type StageFunc func(assetIndex int, stage run.Stage, status run.StageStatus)

// Config controls per-run behavior.
type Config struct {
	Owner           string // receives minted tokens and lists them
	DefaultPrice    string
	AutoList        bool
	FinalizeDelay   time.Duration
	InterAssetDelay time.Duration
	UploadWorkers   int
	Metadata        assetstore.MetadataOptions
	OnStageUpdate   StageFunc
}

// uploadTask is sent to upload workers.
type uploadTask struct {
	index int
	asset Asset
}

// uploadResult is returned from workers to the sequencer.
type uploadResult struct {
	index int
	err   error
}
