package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/market"
)

func newBuyCmd(a *app) *cobra.Command {
	var byToken bool

	cmd := &cobra.Command{
		Use:   "buy <listingId>",
		Short: "Buy a listing and transfer the token to the connected wallet",
		Long: `Buy purchases a marketplace listing with the operator wallet and then
transfers the token to the wallet connected to this session. With --token the
argument is a token id and its newest active listing is bought.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.connectedWallet(ctx)
			if err != nil {
				return err
			}
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}

			cc, err := a.dialChain(ctx)
			if err != nil {
				return err
			}
			defer cc.Close()

			listingID := id
			if byToken {
				view, err := cc.market.FindListingByToken(ctx, id)
				if err != nil {
					return err
				}
				listingID = view.ListingID
			}

			res, err := cc.market.Buy(ctx, listingID)
			if err != nil {
				return err
			}
			a.printf("Bought listing %d (token %d) for %s: %s\n", res.ListingID, res.TokenID, res.Price, a.txLink(res.TxHash))

			if s.Wallet == cc.signer.Address().Hex() {
				return nil
			}
			txHash, err := cc.market.TransferTo(ctx, res.TokenID, s.Wallet)
			if err != nil {
				return fmt.Errorf("token %d bought but not transferred to %s: %w", res.TokenID, s.Wallet, err)
			}
			a.printf("Transferred token %d to %s: %s\n", res.TokenID, s.Wallet, a.txLink(txHash))
			return nil
		},
	}

	cmd.Flags().BoolVar(&byToken, "token", false, "treat the argument as a token id")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var offset, limit uint64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show active marketplace listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc, err := a.dialChain(ctx)
			if err != nil {
				return err
			}
			defer cc.Close()

			views, err := cc.market.ActiveListings(ctx, offset, limit)
			if err != nil {
				return err
			}
			a.printListings(views)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&offset, "offset", 0, "first listing to show")
	cmd.Flags().Uint64Var(&limit, "limit", 20, "maximum listings to show")
	return cmd
}

func (a *app) printListings(views []market.ListingView) {
	if len(views) == 0 {
		a.printf("No active listings\n")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LISTING\tTOKEN\tPRICE\tSELLER")
	for _, v := range views {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", v.ListingID, v.TokenID, v.Price, v.Seller)
	}
	tw.Flush()
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the operator and connected wallet balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc, err := a.dialChain(ctx)
			if err != nil {
				return err
			}
			defer cc.Close()

			operator := cc.signer.Address().Hex()
			bal, err := cc.market.Balance(ctx, operator)
			if err != nil {
				return err
			}
			a.printf("Operator %s: %s\n", operator, market.FormatUnits(bal, market.Decimals))

			s, err := a.connectedWallet(ctx)
			if err != nil {
				a.printf("No wallet connected\n")
				return nil
			}
			bal, err = cc.market.Balance(ctx, s.Wallet)
			if err != nil {
				return err
			}
			a.printf("Connected %s: %s\n", s.Wallet, market.FormatUnits(bal, market.Decimals))
			return nil
		},
	}
}
