package market

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain"
)

// ListingView is a marketplace listing ready for display.
type ListingView struct {
	ListingID       uint64 `json:"listing_id"`
	TokenID         uint64 `json:"token_id"`
	NFT             string `json:"nft"`
	Seller          string `json:"seller"`
	PriceMinorUnits string `json:"price_minor_units"`
	Price           string `json:"price"`
	Active          bool   `json:"active"`
	ListedAt        uint64 `json:"listed_at"`
}

func newView(id uint64, l chain.Listing) ListingView {
	v := ListingView{
		ListingID: id,
		NFT:       l.NFT.Hex(),
		Seller:    l.Seller.Hex(),
		Active:    l.Active,
		Price:     FormatUnits(l.Price, Decimals),
	}
	if l.Price != nil {
		v.PriceMinorUnits = l.Price.String()
	}
	if l.TokenID != nil {
		v.TokenID = l.TokenID.Uint64()
	}
	if l.ListedAt != nil {
		v.ListedAt = l.ListedAt.Uint64()
	}
	return v
}

// PurchaseResult describes a mined purchase.
type PurchaseResult struct {
	ListingID       uint64 `json:"listing_id"`
	TokenID         uint64 `json:"token_id"`
	Seller          string `json:"seller"`
	PriceMinorUnits string `json:"price_minor_units"`
	Price           string `json:"price"`
	TxHash          string `json:"tx_hash"`
}

// GetListing reads one listing.
func (c *Client) GetListing(ctx context.Context, listingID uint64) (ListingView, error) {
	l, err := c.market.GetListing(ctx, new(big.Int).SetUint64(listingID))
	if err != nil {
		return ListingView{}, fmt.Errorf("read listing %d: %w", listingID, err)
	}
	return newView(listingID, l), nil
}

// Buy purchases listingID paying its listed price.
func (c *Client) Buy(ctx context.Context, listingID uint64) (PurchaseResult, error) {
	id := new(big.Int).SetUint64(listingID)

	paused, err := c.market.Paused(ctx)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("read marketplace state: %w", err)
	}
	if paused {
		return PurchaseResult{}, ErrMarketPaused
	}

	listing, err := c.market.GetListing(ctx, id)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("read listing %d: %w", listingID, err)
	}
	if !listing.Active {
		return PurchaseResult{}, fmt.Errorf("listing %d: %w", listingID, ErrListingInactive)
	}
	if listing.Seller == c.account {
		return PurchaseResult{}, fmt.Errorf("listing %d: %w", listingID, ErrOwnListing)
	}

	balance, err := c.reader.BalanceAt(ctx, c.account, nil)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("read balance: %w", err)
	}
	if balance.Cmp(listing.Price) < 0 {
		return PurchaseResult{}, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance,
			FormatUnits(balance, Decimals), FormatUnits(listing.Price, Decimals))
	}

	receipt, err := c.market.Buy(ctx, id, listing.Price)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("submit purchase: %w", err)
	}
	txHash := receipt.TxHash.Hex()
	if receipt.Status != types.ReceiptStatusSuccessful {
		countTx("buy", false)
		return PurchaseResult{}, &ListingTransactionFailedError{Method: "buy", TxHash: txHash, Status: receipt.Status}
	}
	countTx("buy", true)

	result := PurchaseResult{
		ListingID:       listingID,
		TokenID:         listing.TokenID.Uint64(),
		Seller:          listing.Seller.Hex(),
		PriceMinorUnits: listing.Price.String(),
		Price:           FormatUnits(listing.Price, Decimals),
		TxHash:          txHash,
	}
	if ev, ok := chain.ParsePurchased(receipt.Logs, c.market.Address()); ok && ev.TokenID.IsUint64() {
		result.TokenID = ev.TokenID.Uint64()
	}

	c.logger.Info("listing purchased",
		"listing_id", listingID,
		"token_id", result.TokenID,
		"price", result.Price,
		"tx_hash", txHash,
	)
	return result, nil
}

// TransferTo moves tokenID from the client account to to.
func (c *Client) TransferTo(ctx context.Context, tokenID uint64, to string) (string, error) {
	dst, ok := chain.ParseAddress(to)
	if !ok {
		return "", fmt.Errorf("invalid recipient address %q", to)
	}
	receipt, err := c.token.TransferFrom(ctx, c.account, dst, new(big.Int).SetUint64(tokenID), c.cfg.TransferGas)
	if err != nil {
		return "", fmt.Errorf("submit transfer: %w", err)
	}
	txHash := receipt.TxHash.Hex()
	if receipt.Status != types.ReceiptStatusSuccessful {
		countTx("transferFrom", false)
		return "", &ListingTransactionFailedError{Method: "transferFrom", TxHash: txHash, Status: receipt.Status}
	}
	countTx("transferFrom", true)

	c.logger.Info("token transferred", "token_id", tokenID, "to", dst.Hex(), "tx_hash", txHash)
	return txHash, nil
}

// ActiveListings pages through active listings.
func (c *Client) ActiveListings(ctx context.Context, offset, limit uint64) ([]ListingView, error) {
	ids, err := c.market.ActiveListings(ctx, new(big.Int).SetUint64(offset), new(big.Int).SetUint64(limit))
	if err != nil {
		return nil, fmt.Errorf("read active listings: %w", err)
	}

	views := make([]ListingView, 0, len(ids))
	for _, id := range ids {
		l, err := c.market.GetListing(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read listing %s: %w", id, err)
		}
		views = append(views, newView(id.Uint64(), l))
	}
	return views, nil
}

// FindListingByToken returns the newest active listing of tokenID, searching
// Listed events within the configured block lookback.
func (c *Client) FindListingByToken(ctx context.Context, tokenID uint64) (ListingView, error) {
	head, err := c.reader.BlockNumber(ctx)
	if err != nil {
		return ListingView{}, fmt.Errorf("read block number: %w", err)
	}
	var from uint64
	if head > c.cfg.LookbackBlocks {
		from = head - c.cfg.LookbackBlocks
	}

	events, err := c.market.FilterListed(ctx, c.token.Address(), new(big.Int).SetUint64(tokenID), from)
	if err != nil {
		return ListingView{}, err
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].ListingID.Cmp(events[j].ListingID) > 0
	})

	for _, ev := range events {
		l, err := c.market.GetListing(ctx, ev.ListingID)
		if err != nil {
			return ListingView{}, fmt.Errorf("read listing %s: %w", ev.ListingID, err)
		}
		if l.Active {
			return newView(ev.ListingID.Uint64(), l), nil
		}
	}
	return ListingView{}, fmt.Errorf("token %d: %w", tokenID, ErrListingNotFound)
}

// Balance returns the native balance of addr in minor units.
func (c *Client) Balance(ctx context.Context, addr string) (*big.Int, error) {
	a, ok := chain.ParseAddress(addr)
	if !ok {
		return nil, fmt.Errorf("invalid address %q", addr)
	}
	bal, err := c.reader.BalanceAt(ctx, a, nil)
	if err != nil {
		return nil, fmt.Errorf("read balance of %s: %w", a.Hex(), err)
	}
	return bal, nil
}
