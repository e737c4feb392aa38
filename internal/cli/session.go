package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/session"
)

func newConnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <address>",
		Short: "Connect a wallet to this session",
		Long: `Connect binds a wallet address to the session. Tokens are minted to the
operator wallet; the connected wallet receives tokens bought with "buy".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.sessions(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := session.Connect(ctx, store, a.sessionID, args[0], time.Now())
			if err != nil {
				return err
			}
			a.printf("Connected wallet %s to session %q\n", s.Wallet, s.ID)
			return nil
		},
	}
}

func newDisconnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the wallet connected to this session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.sessions(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			prev, err := store.Get(ctx, a.sessionID)
			if errors.Is(err, session.ErrNotConnected) {
				a.printf("No wallet connected to session %q\n", a.sessionID)
				return nil
			}
			if err != nil {
				return err
			}
			if err := store.Delete(ctx, a.sessionID); err != nil {
				return err
			}
			a.printf("Disconnected wallet %s\n", prev.Wallet)
			return nil
		},
	}
}
