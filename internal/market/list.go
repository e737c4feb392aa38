package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/metrics"
)

// ListingResult describes a mined listing.
type ListingResult struct {
	ListingID       uint64 `json:"listing_id"`
	PriceMinorUnits string `json:"price_minor_units"`
	Price           string `json:"price"`
	TxHash          string `json:"tx_hash"`
	ApprovalTxHash  string `json:"approval_tx_hash,omitempty"`
	// LowConfidence is set when ListingID came from the listing counter.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// ListForSale lists tokenID at price (a decimal string in whole units).
//
// The price is validated and the caller's ownership confirmed before any
// transaction is sent, so a bad price or a token the caller does not own
// costs nothing. Approval is granted only if the marketplace lacks it.
func (c *Client) ListForSale(ctx context.Context, tokenID uint64, price string) (ListingResult, error) {
	wei, err := ParsePrice(price)
	if err != nil {
		return ListingResult{}, err
	}
	id := new(big.Int).SetUint64(tokenID)

	if err := c.requireOwner(ctx, tokenID, id); err != nil {
		return ListingResult{}, err
	}

	approvalTx, err := c.ensureApproval(ctx)
	if err != nil {
		return ListingResult{}, err
	}

	receipt, err := c.market.List(ctx, c.token.Address(), id, wei, c.cfg.ListGas)
	if err != nil {
		return ListingResult{}, fmt.Errorf("submit listing: %w", err)
	}
	txHash := receipt.TxHash.Hex()
	if receipt.Status != types.ReceiptStatusSuccessful {
		countTx("list", false)
		return ListingResult{}, &ListingTransactionFailedError{Method: "list", TxHash: txHash, Status: receipt.Status}
	}
	countTx("list", true)

	result := ListingResult{
		PriceMinorUnits: wei.String(),
		Price:           FormatUnits(wei, Decimals),
		TxHash:          txHash,
		ApprovalTxHash:  approvalTx,
	}

	if ev, ok := chain.ParseListed(receipt.Logs, c.market.Address()); ok && ev.ListingID.IsUint64() {
		result.ListingID = ev.ListingID.Uint64()
		c.logger.Info("token listed",
			"token_id", tokenID,
			"listing_id", result.ListingID,
			"price", result.Price,
			"tx_hash", txHash,
		)
		return result, nil
	}

	counter, err := c.market.CurrentListingID(ctx)
	if err != nil {
		return ListingResult{}, &ListingIdUnresolvedError{TxHash: txHash, Err: fmt.Errorf("read listing counter: %w", err)}
	}
	if counter.Sign() <= 0 || !counter.IsUint64() {
		return ListingResult{}, &ListingIdUnresolvedError{TxHash: txHash, Err: fmt.Errorf("listing counter %s cannot identify a listing", counter)}
	}
	result.ListingID = counter.Uint64() - 1
	result.LowConfidence = true

	c.logger.Warn("Listed event not found, listing id derived from counter",
		"token_id", tokenID,
		"listing_id", result.ListingID,
		"tx_hash", txHash,
	)
	if m := metrics.Get(); m != nil {
		m.IncLowConfidence("listing")
	}
	return result, nil
}

// ResumeListing settles a listing whose list transaction txHash was sent
// earlier but whose outcome was never recorded. An active listing of tokenID
// by this account is adopted. Otherwise the earlier receipt decides: a
// reverted listing is retried through ListForSale, and an unconfirmed one
// returns *chain.PendingTxError without sending anything.
func (c *Client) ResumeListing(ctx context.Context, tokenID uint64, price, txHash string) (ListingResult, error) {
	if txHash == "" {
		return c.ListForSale(ctx, tokenID, price)
	}
	wei, err := ParsePrice(price)
	if err != nil {
		return ListingResult{}, err
	}
	hash := common.HexToHash(txHash)

	view, err := c.FindListingByToken(ctx, tokenID)
	switch {
	case err == nil && view.Seller == c.account.Hex():
		c.logger.Info("earlier listing found",
			"token_id", tokenID,
			"listing_id", view.ListingID,
			"tx_hash", hash.Hex(),
		)
		return ListingResult{
			ListingID:       view.ListingID,
			PriceMinorUnits: view.PriceMinorUnits,
			Price:           view.Price,
			TxHash:          hash.Hex(),
		}, nil
	case err != nil && !errors.Is(err, ErrListingNotFound):
		return ListingResult{}, err
	}

	receipt, err := c.market.Receipt(ctx, hash)
	if err != nil {
		return ListingResult{}, &chain.PendingTxError{Method: "list", Hash: hash.Hex(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		c.logger.Info("earlier listing reverted, listing again", "token_id", tokenID, "tx_hash", hash.Hex())
		return c.ListForSale(ctx, tokenID, price)
	}

	// Mined, but no longer active: sold or cancelled since.
	if ev, ok := chain.ParseListed(receipt.Logs, c.market.Address()); ok && ev.ListingID.IsUint64() {
		return ListingResult{
			ListingID:       ev.ListingID.Uint64(),
			PriceMinorUnits: wei.String(),
			Price:           FormatUnits(wei, Decimals),
			TxHash:          hash.Hex(),
		}, nil
	}
	return ListingResult{}, &ListingIdUnresolvedError{TxHash: hash.Hex(), Err: errors.New("listing mined but not found")}
}

func (c *Client) requireOwner(ctx context.Context, tokenID uint64, id *big.Int) error {
	owner, err := c.token.OwnerOf(ctx, id)
	if err != nil {
		return &NotOwnerError{TokenID: tokenID, Caller: c.account.Hex(), Err: err}
	}
	if owner != c.account {
		return &NotOwnerError{TokenID: tokenID, Caller: c.account.Hex(), Owner: owner.Hex()}
	}
	return nil
}

// ensureApproval grants the marketplace blanket approval if it does not have
// it. The check and the grant are not atomic; a concurrent revocation between
// them makes the listing revert.
func (c *Client) ensureApproval(ctx context.Context) (string, error) {
	operator := c.market.Address()
	approved, err := c.token.IsApprovedForAll(ctx, c.account, operator)
	if err != nil {
		return "", fmt.Errorf("read marketplace approval: %w", err)
	}
	if approved {
		return "", nil
	}

	receipt, err := c.token.SetApprovalForAll(ctx, operator, true, c.cfg.ApprovalGas)
	if err != nil {
		return "", fmt.Errorf("submit approval: %w", err)
	}
	txHash := receipt.TxHash.Hex()
	if receipt.Status != types.ReceiptStatusSuccessful {
		countTx("setApprovalForAll", false)
		return "", &ListingTransactionFailedError{Method: "setApprovalForAll", TxHash: txHash, Status: receipt.Status}
	}
	countTx("setApprovalForAll", true)

	c.logger.Info("marketplace approved", "operator", operator.Hex(), "tx_hash", txHash)
	return txHash, nil
}

func countTx(method string, ok bool) {
	m := metrics.Get()
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failed"
	}
	m.IncTransaction(method, status)
}
