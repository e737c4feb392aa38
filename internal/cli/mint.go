package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/pipeline"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/source"
)

// parseSelection turns "all" or a 1-based index into the keys to mint.
func parseSelection(arg string, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no images found")
	}
	if strings.EqualFold(arg, "all") {
		return keys, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(keys) {
		return nil, fmt.Errorf("invalid selection %q: use a number from 1 to %d or \"all\"", arg, len(keys))
	}
	return keys[n-1 : n], nil
}

func newMintCmd(a *app) *cobra.Command {
	var dir string
	var max int

	cmd := &cobra.Command{
		Use:   "mint <n|all>",
		Short: "Upload, mint and list images from the asset directory",
		Long: `Mint runs the full pipeline for the n-th image in the asset directory, or
for every image with "all". At most MAX_NFT_IMAGES images are considered.

Each asset is uploaded, minted, verified and listed at DEFAULT_NFT_PRICE.
An asset that fails is recorded and the batch continues.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.connectedWallet(ctx); err != nil {
				return err
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.Pipeline.AssetDir
			}
			if max == 0 {
				max = a.cfg.Pipeline.MaxAssets
			}

			src, err := source.Open(ctx, dir)
			if err != nil {
				return err
			}
			defer src.Close()

			keys, err := src.List(ctx, max)
			if err != nil {
				return err
			}
			selected, err := parseSelection(args[0], keys)
			if err != nil {
				return err
			}
			assets, err := src.LoadAll(ctx, selected)
			if err != nil {
				return err
			}
			return a.runBatch(ctx, src, assets)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "asset directory or bucket URL (defaults to ASSET_DIR)")
	cmd.Flags().IntVar(&max, "max", 0, "maximum images to consider (defaults to MAX_NFT_IMAGES)")
	return cmd
}

func (a *app) runBatch(ctx context.Context, loader pipeline.AssetLoader, assets []pipeline.Asset) error {
	cc, err := a.dialChain(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()

	bar := newProgress(a.out, len(assets))
	p, cleanup, err := a.newPipeline(ctx, cc, loader, bar.update)
	if err != nil {
		return err
	}
	defer cleanup.close()

	a.printf("Minting %d asset(s) to %s\n", len(assets), p.Owner())
	start := time.Now()
	recs, runErr := p.Run(ctx, assets)
	bar.finish(a.out)

	a.printRecords(recs)
	a.printf("%s\n", pipeline.Summary(recs, time.Since(start)))
	if runErr != nil {
		return runErr
	}
	return failedErr(recs)
}

func newMintOneCmd(a *app) *cobra.Command {
	var name, description, price string

	cmd := &cobra.Command{
		Use:   "mint-one <file>",
		Short: "Run the pipeline for a single image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.connectedWallet(ctx); err != nil {
				return err
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			path := args[0]
			if !source.IsImage(path) {
				return fmt.Errorf("%s is not a supported image", path)
			}
			src, err := source.Open(ctx, filepath.Dir(path))
			if err != nil {
				return err
			}
			defer src.Close()

			asset, err := src.Load(ctx, filepath.Base(path))
			if err != nil {
				return err
			}
			if name != "" {
				asset.Name = name
			}
			if description != "" {
				asset.Description = description
			}
			asset.Price = price

			cc, err := a.dialChain(ctx)
			if err != nil {
				return err
			}
			defer cc.Close()

			bar := newProgress(a.out, 1)
			p, cleanup, err := a.newPipeline(ctx, cc, src, bar.update)
			if err != nil {
				return err
			}
			defer cleanup.close()

			rec, runErr := p.RunOne(ctx, asset)
			bar.finish(a.out)
			a.printRecords([]*run.Record{rec})
			return runErr
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "token name (defaults to one derived from the file name)")
	cmd.Flags().StringVar(&description, "description", "", "token description")
	cmd.Flags().StringVar(&price, "price", "", "listing price (defaults to DEFAULT_NFT_PRICE)")
	return cmd
}

func newResumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Continue journaled runs that did not finish",
		Long: `Resume picks up every run left in the journal and continues it from its
last completed stage. A token that was minted is never minted again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			var loader pipeline.AssetLoader
			if src, err := source.Open(ctx, a.cfg.Pipeline.AssetDir); err == nil {
				defer src.Close()
				loader = src
			}

			cc, err := a.dialChain(ctx)
			if err != nil {
				return err
			}
			defer cc.Close()

			p, cleanup, err := a.newPipeline(ctx, cc, loader, nil)
			if err != nil {
				return err
			}
			defer cleanup.close()

			start := time.Now()
			recs, err := p.ResumePending(ctx)
			if len(recs) == 0 && err == nil {
				a.printf("Nothing to resume\n")
				return nil
			}
			a.printRecords(recs)
			a.printf("%s\n", pipeline.Summary(recs, time.Since(start)))
			if err != nil {
				return err
			}
			return failedErr(recs)
		},
	}
}

func (a *app) printRecords(recs []*run.Record) {
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		label := rec.Asset.Name
		if label == "" {
			label = rec.Asset.Filename
		}
		if !rec.Success {
			a.printf("FAILED %s at %s: %s\n", label, rec.FailedStage, rec.Error)
			if rec.Mint != nil {
				a.printf("  token %d minted (%s); run `meme-minter resume` to continue\n", rec.Mint.TokenID, a.txLink(rec.Mint.TxHash))
			}
			continue
		}

		a.printf("OK %s: token %d\n", label, rec.TokenID())
		a.printf("  metadata %s\n", rec.Metadata.ResolvableURL)
		a.printf("  mint     %s\n", a.txLink(rec.Mint.TxHash))
		if rec.Mint.LowConfidence {
			a.printf("  warning: token id derived from the contract counter\n")
		}
		switch {
		case rec.Listing != nil:
			a.printf("  listing  %d at %s (%s)\n", rec.Listing.ListingID, rec.Listing.Price, a.txLink(rec.Listing.TxHash))
			if rec.Listing.LowConfidence {
				a.printf("  warning: listing id derived from the listing counter\n")
			}
		case rec.ListSkipped:
			a.printf("  listing  skipped\n")
		}
	}
}

func failedErr(recs []*run.Record) error {
	failed := 0
	for _, r := range recs {
		if r != nil && !r.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d asset(s) failed", failed, len(recs))
	}
	return nil
}
