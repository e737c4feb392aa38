package tables

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

// ExtractRunRow flattens a run record.
func ExtractRunRow(rec *run.Record, exportedAt time.Time) RunRow {
	row := RunRow{
		RunID:         rec.RunID,
		BatchID:       rec.BatchID,
		AssetIndex:    int32(rec.AssetIndex),
		AssetFile:     rec.Asset.Filename,
		AssetName:     rec.Asset.Name,
		Owner:         rec.Owner,
		State:         string(rec.State),
		FailedStage:   string(rec.FailedStage),
		Success:       rec.Success,
		Error:         rec.Error,
		ProvenanceTag: rec.ProvenanceTag,
		Verified:      rec.Verified,
		TokenID:       -1,
		ListingID:     -1,
		StartedAt:     rec.StartedAt.UTC(),
		FinishedAt:    rec.FinishedAt.UTC(),
		SchemaVersion: SchemaVersion,
		ExportedAt:    exportedAt.UTC(),
	}

	if rec.Image != nil {
		row.ImageCID = rec.Image.ContentID
	}
	if rec.Metadata != nil {
		row.MetadataCID = rec.Metadata.ContentID
		row.MetadataURI = rec.Metadata.ResolvableURL
	}
	if m := rec.Mint; m != nil {
		row.TokenID = int64(m.TokenID)
		row.MintTxHash = m.TxHash
		row.MintBlock = int64(m.BlockNumber)
		row.GasUsed = int64(m.GasUsed)
		row.TokenLowConfidence = m.LowConfidence
		if row.ProvenanceTag == "" {
			row.ProvenanceTag = m.ProvenanceTag
		}
	}
	if l := rec.Listing; l != nil {
		row.ListingID = int64(l.ListingID)
		row.PriceMinorUnits = l.PriceMinorUnits
		row.ListTxHash = l.TxHash
		row.ListingLowConfidence = l.LowConfidence
	}
	return row
}

// ExtractRunRows flattens a batch, preserving order.
func ExtractRunRows(recs []*run.Record, exportedAt time.Time) []RunRow {
	rows := make([]RunRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, ExtractRunRow(r, exportedAt))
	}
	return rows
}

// ToParquet encodes rows as a single parquet file.
func ToParquet(rows []RunRow, cfg ParquetConfig) ([]byte, error) {
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[RunRow](&buf, parquet.Compression(codec))
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func compressionCodec(name string) (compress.Codec, error) {
	switch name {
	case "", "snappy":
		return &parquet.Snappy, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "none":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unsupported parquet compression %q", name)
	}
}
