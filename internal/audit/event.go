// Package audit emits a tamper-evident, hash-chained event for every
// terminal run, so the provenance of each minted token can be checked
// independently of the chain.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

const (
	EventVersion = "1.0"
	EventType    = "meme_run"
)

// Event is one audit log entry.
type Event struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Run      RunInfo      `json:"run"`
	Producer ProducerInfo `json:"producer"`
	Chain    ChainInfo    `json:"chain"`
}

// RunInfo is the audited outcome of one asset run.
type RunInfo struct {
	RunID         string `json:"run_id"`
	BatchID       string `json:"batch_id"`
	AssetIndex    int    `json:"asset_index"`
	State         string `json:"state"`
	FailedStage   string `json:"failed_stage,omitempty"`
	NetworkID     int64  `json:"network_id"`
	Contract      string `json:"contract"`
	Owner         string `json:"owner"`
	TokenID       uint64 `json:"token_id,omitempty"`
	ListingID     uint64 `json:"listing_id,omitempty"`
	ProvenanceTag string `json:"provenance_tag"`
	ImageCID      string `json:"image_cid,omitempty"`
	MetadataURI   string `json:"metadata_uri,omitempty"`
	MintTxHash    string `json:"mint_tx_hash,omitempty"`
	ListTxHash    string `json:"list_tx_hash,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ProducerInfo identifies the software that produced the event.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha"`
}

// ChainInfo links events into a tamper-evident log.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// ChainKey groups events into one chain per network, contract and owner.
func (r RunInfo) ChainKey() string {
	return fmt.Sprintf("%d/%s/%s", r.NetworkID, strings.ToLower(r.Contract), strings.ToLower(r.Owner))
}

// NewRunInfo extracts the audited fields from rec.
func NewRunInfo(rec *run.Record, networkID int64, contract string) RunInfo {
	info := RunInfo{
		RunID:         rec.RunID,
		BatchID:       rec.BatchID,
		AssetIndex:    rec.AssetIndex,
		State:         string(rec.State),
		FailedStage:   string(rec.FailedStage),
		NetworkID:     networkID,
		Contract:      contract,
		Owner:         rec.Owner,
		ProvenanceTag: rec.ProvenanceTag,
		MintTxHash:    rec.MintTxHash,
		ListTxHash:    rec.ListTxHash,
		Error:         rec.Error,
	}
	if rec.Image != nil {
		info.ImageCID = rec.Image.ContentID
	}
	if rec.Metadata != nil {
		info.MetadataURI = rec.Metadata.ResolvableURL
	}
	if rec.Mint != nil {
		info.TokenID = rec.Mint.TokenID
		info.MintTxHash = rec.Mint.TxHash
	}
	if rec.Listing != nil {
		info.ListingID = rec.Listing.ListingID
		info.ListTxHash = rec.Listing.TxHash
	}
	return info
}

// ComputeEventHash hashes the JSON form of evt with event_hash cleared.
func ComputeEventHash(evt *Event) string {
	c := *evt
	c.Chain.EventHash = ""

	canonical, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// SetChainHashes links evt to prev and computes its own hash.
func (e *Event) SetChainHashes(prev string) {
	e.Chain.PrevEventHash = prev
	e.Chain.EventHash = ComputeEventHash(e)
}

// GenerateEventID returns a unique event id.
func GenerateEventID() string {
	return "audit_evt_" + uuid.New().String()
}
