package tables

import "time"

// RunRow is one run record flattened for columnar export.
type RunRow struct {
	// Identity
	RunID      string `parquet:"run_id"`
	BatchID    string `parquet:"batch_id"`
	AssetIndex int32  `parquet:"asset_index"`
	AssetFile  string `parquet:"asset_file"`
	AssetName  string `parquet:"asset_name"`
	Owner      string `parquet:"owner"`

	// Outcome
	State       string `parquet:"state"`
	FailedStage string `parquet:"failed_stage"`
	Success     bool   `parquet:"success"`
	Error       string `parquet:"error"`

	// Content ids
	ImageCID    string `parquet:"image_cid"`
	MetadataCID string `parquet:"metadata_cid"`
	MetadataURI string `parquet:"metadata_uri"`

	// Mint
	TokenID            int64  `parquet:"token_id"` // -1 when not minted
	MintTxHash         string `parquet:"mint_tx_hash"`
	MintBlock          int64  `parquet:"mint_block"`
	GasUsed            int64  `parquet:"gas_used"`
	ProvenanceTag      string `parquet:"provenance_tag"`
	TokenLowConfidence bool   `parquet:"token_low_confidence"`
	Verified           bool   `parquet:"verified"`

	// Listing
	ListingID            int64  `parquet:"listing_id"` // -1 when not listed
	PriceMinorUnits      string `parquet:"price_minor_units"`
	ListTxHash           string `parquet:"list_tx_hash"`
	ListingLowConfidence bool   `parquet:"listing_low_confidence"`

	StartedAt  time.Time `parquet:"started_at,timestamp(millisecond)"`
	FinishedAt time.Time `parquet:"finished_at,timestamp(millisecond)"`

	// Export metadata
	SchemaVersion string    `parquet:"schema_version"`
	ExportedAt    time.Time `parquet:"exported_at,timestamp(millisecond)"`
}

// TableName returns the canonical table name.
func (RunRow) TableName() string {
	return "meme_runs"
}

// ParquetConfig configures parquet output generation.
type ParquetConfig struct {
	Compression string // "snappy" | "zstd" | "none"
}

// DefaultParquetConfig returns sensible defaults.
func DefaultParquetConfig() ParquetConfig {
	return ParquetConfig{
		Compression: "snappy",
	}
}

// SchemaVersion returns the version of the schema.
// Increment this when making breaking changes.
const SchemaVersion = "1.0.0"
