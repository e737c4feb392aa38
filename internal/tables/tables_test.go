package tables

import (
	"bytes"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/assetstore"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/market"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/minter"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

func sampleRecords() []*run.Record {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*run.Record{
		{
			RunID: "r0", BatchID: "b", AssetIndex: 0,
			Asset:    run.AssetInfo{Filename: "cat.png", Name: "Cat"},
			State:    run.StateDone,
			Success:  true,
			Image:    &assetstore.UploadResult{ContentID: "img", ResolvableURL: "ipfs://img"},
			Metadata: &assetstore.UploadResult{ContentID: "meta", ResolvableURL: "ipfs://meta"},
			Mint:     &minter.MintResult{TokenID: 12, TxHash: "0x1", BlockNumber: 99, GasUsed: 21000, ProvenanceTag: "viral-meme-1-cat"},
			Verified: true,
			Listing:  &market.ListingResult{ListingID: 3, PriceMinorUnits: "10000000000000000", TxHash: "0x2", LowConfidence: true},
			StartedAt: start, FinishedAt: start.Add(time.Minute),
		},
		{
			RunID: "r1", BatchID: "b", AssetIndex: 1,
			Asset:       run.AssetInfo{Filename: "dog.png", Name: "Dog"},
			State:       run.StateFailed,
			FailedStage: run.StateUploading,
			Error:       "upload failed",
			StartedAt:   start,
		},
	}
}

func TestExtractRunRow(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := ExtractRunRows(sampleRecords(), now)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}

	done := rows[0]
	if done.TokenID != 12 || done.ListingID != 3 || done.MetadataURI != "ipfs://meta" {
		t.Errorf("done row = %+v", done)
	}
	if !done.ListingLowConfidence || done.TokenLowConfidence {
		t.Errorf("confidence flags = %v %v", done.TokenLowConfidence, done.ListingLowConfidence)
	}
	if done.ProvenanceTag != "viral-meme-1-cat" {
		t.Errorf("provenance tag = %q", done.ProvenanceTag)
	}

	failed := rows[1]
	if failed.TokenID != -1 || failed.ListingID != -1 {
		t.Errorf("unminted row should carry -1 ids: %+v", failed)
	}
	if failed.FailedStage != "uploading" || failed.SchemaVersion != SchemaVersion {
		t.Errorf("failed row = %+v", failed)
	}
}

func TestToParquetRoundTrip(t *testing.T) {
	for _, c := range []string{"snappy", "zstd", "none"} {
		t.Run(c, func(t *testing.T) {
			rows := ExtractRunRows(sampleRecords(), time.Now())
			data, err := ToParquet(rows, ParquetConfig{Compression: c})
			if err != nil {
				t.Fatalf("ToParquet failed: %v", err)
			}

			got, err := parquet.Read[RunRow](bytes.NewReader(data), int64(len(data)))
			if err != nil {
				t.Fatalf("parquet.Read failed: %v", err)
			}
			if len(got) != 2 || got[0].RunID != "r0" || got[1].Error != "upload failed" {
				t.Errorf("read back = %+v", got)
			}
		})
	}
}

func TestToParquetRejectsUnknownCodec(t *testing.T) {
	if _, err := ToParquet(nil, ParquetConfig{Compression: "lzma"}); err == nil {
		t.Error("expected error for unknown codec")
	}
}

func TestChecksum(t *testing.T) {
	sum := ComputeChecksum([]byte("abc"))
	if sum != "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("checksum = %s", sum)
	}
	if !VerifyChecksum([]byte("abc"), sum) || VerifyChecksum([]byte("abd"), sum) {
		t.Error("VerifyChecksum")
	}
}
