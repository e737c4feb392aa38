// Package cli implements the meme-minter command tree.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/config"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/metrics"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "meme-minter",
		Short: "Mint meme images as NFTs and list them on the marketplace",
		Long: `meme-minter uploads meme images to IPFS, mints each as an NFT, verifies
ownership and lists it for sale.

Configuration comes from the environment (a .env file in the working
directory is loaded first) and an optional YAML file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return a.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&a.sessionID, "session", "", "session id (defaults to SESSION_ID or \"default\")")

	cmd.AddCommand(
		newConnectCmd(a),
		newDisconnectCmd(a),
		newMintCmd(a),
		newMintOneCmd(a),
		newResumeCmd(a),
		newBuyCmd(a),
		newListCmd(a),
		newBalanceCmd(a),
	)
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	if a.sessionID == "" {
		a.sessionID = cfg.Session.ID
	}

	logging.Setup(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})
	cmd.SetContext(logging.WithCorrelationID(cmd.Context(), logging.GenerateCorrelationID()))

	if cfg.Metrics.Enabled && metrics.Get() == nil {
		metrics.Init(cfg.Metrics.Namespace)
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Addr); err != nil {
				slog.Warn("metrics server stopped", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
		slog.Info("metrics server started", "addr", cfg.Metrics.Addr)
	}
	return nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
