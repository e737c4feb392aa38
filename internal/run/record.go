// Package run defines the per-asset run record shared by the pipeline, the
// journal, the results writer and the catalog.
package run

import (
	"time"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/assetstore"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/market"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/minter"
)

// State is the position of a run in the per-asset state machine.
type State string

const (
	StateUploading State = "uploading"
	StateMinting   State = "minting"
	StateVerifying State = "verifying"
	StateListing   State = "listing"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Stage names a unit of work reported to progress callbacks.
type Stage string

const (
	StageUploadImage    Stage = "upload_image"
	StageUploadMetadata Stage = "upload_metadata"
	StageMint           Stage = "mint"
	StageFinalize       Stage = "finalize"
	StageVerify         Stage = "verify"
	StageList           Stage = "list"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageUploadImage, StageUploadMetadata, StageMint, StageFinalize, StageVerify, StageList}

// State returns the run state a stage executes in.
func (s Stage) State() State {
	switch s {
	case StageUploadImage, StageUploadMetadata:
		return StateUploading
	case StageMint, StageFinalize:
		return StateMinting
	case StageVerify:
		return StateVerifying
	default:
		return StateListing
	}
}

// StageStatus is progress information only. It never drives control flow.
type StageStatus string

const (
	StatusPending StageStatus = "pending"
	StatusLoading StageStatus = "loading"
	StatusSuccess StageStatus = "success"
	StatusError   StageStatus = "error"
	StatusSkipped StageStatus = "skipped"
)

// AssetInfo is everything about an asset needed to restart its run, minus
// the bytes themselves.
type AssetInfo struct {
	Path        string                 `json:"path,omitempty"`
	Filename    string                 `json:"filename"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Attributes  []assetstore.Attribute `json:"attributes,omitempty"`
	Price       string                 `json:"price,omitempty"`
}

// Record is the outcome of one asset's run. Completed stage results are kept
// even when a later stage fails, so a minted but unlisted token can be resumed.
type Record struct {
	RunID         string                   `json:"run_id"`
	BatchID       string                   `json:"batch_id"`
	AssetIndex    int                      `json:"asset_index"`
	Asset         AssetInfo                `json:"asset"`
	Owner         string                   `json:"owner"`
	State         State                    `json:"state"`
	FailedStage   State                    `json:"failed_stage,omitempty"`
	ProvenanceTag string                   `json:"provenance_tag,omitempty"`
	Image         *assetstore.UploadResult `json:"image,omitempty"`
	Metadata      *assetstore.UploadResult `json:"metadata,omitempty"`
	Mint          *minter.MintResult       `json:"mint,omitempty"`
	MintTxHash    string                   `json:"mint_tx_hash,omitempty"` // set once the node accepts the mint
	Verified      bool                     `json:"verified"`
	Listing       *market.ListingResult    `json:"listing,omitempty"`
	ListTxHash    string                   `json:"list_tx_hash,omitempty"` // set once the node accepts the list
	ListSkipped   bool                     `json:"list_skipped,omitempty"`
	Success       bool                     `json:"success"`
	Error         string                   `json:"error,omitempty"`
	Stages        map[Stage]StageStatus    `json:"stages"`
	Attempts      int                      `json:"attempts"`
	StartedAt     time.Time                `json:"started_at"`
	FinishedAt    time.Time                `json:"finished_at,omitempty"`
}

// Terminal reports whether the run reached done or failed.
func (r *Record) Terminal() bool {
	return r.State == StateDone || r.State == StateFailed
}

// Resumable reports whether a failed run has work left that can be picked up.
func (r *Record) Resumable() bool {
	return r.State != StateDone
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *Record) Clone() *Record {
	c := *r
	if r.Image != nil {
		v := *r.Image
		c.Image = &v
	}
	if r.Metadata != nil {
		v := *r.Metadata
		c.Metadata = &v
	}
	if r.Mint != nil {
		v := *r.Mint
		c.Mint = &v
	}
	if r.Listing != nil {
		v := *r.Listing
		c.Listing = &v
	}
	if r.Asset.Attributes != nil {
		c.Asset.Attributes = append([]assetstore.Attribute(nil), r.Asset.Attributes...)
	}
	c.Stages = make(map[Stage]StageStatus, len(r.Stages))
	for k, v := range r.Stages {
		c.Stages[k] = v
	}
	return &c
}

// TokenID returns the minted token id, or 0 if the mint has not completed.
func (r *Record) TokenID() uint64 {
	if r.Mint == nil {
		return 0
	}
	return r.Mint.TokenID
}
