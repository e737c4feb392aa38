// Package minter submits mint transactions and resolves the new token id.
package minter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/metrics"
)

// DefaultGasLimit is the padded ceiling for mintTo.
const DefaultGasLimit = 500000

// Contract is the mint contract surface the client needs.
type Contract interface {
	Address() common.Address
	MintTo(ctx context.Context, to common.Address, tokenURI, provenanceTag string, gas uint64) (*types.Receipt, error)
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CurrentTokenID(ctx context.Context) (*big.Int, error)
}

// MintResult describes a mined mint.
type MintResult struct {
	TokenID       uint64 `json:"token_id"`
	TxHash        string `json:"tx_hash"`
	BlockNumber   uint64 `json:"block_number"`
	GasUsed       uint64 `json:"gas_used"`
	ProvenanceTag string `json:"provenance_tag"`
	// LowConfidence is set when TokenID came from the contract counter rather
	// than the Minted event. A concurrent mint by another caller can make the
	// counter value wrong.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// Client mints tokens.
type Client struct {
	contract Contract
	gasLimit uint64
	logger   *slog.Logger
}

// New returns a client using gasLimit for every mint (0 selects DefaultGasLimit).
func New(contract Contract, gasLimit uint64) *Client {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	return &Client{
		contract: contract,
		gasLimit: gasLimit,
		logger:   logging.Component("minter"),
	}
}

// Mint mints a token owned by to with metadataURI and provenanceTag, waits for
// the receipt and resolves the assigned token id.
func (c *Client) Mint(ctx context.Context, to, metadataURI, provenanceTag string) (MintResult, error) {
	owner, ok := chain.ParseAddress(to)
	if !ok {
		return MintResult{}, &InvalidAddressError{Address: to}
	}

	receipt, err := c.contract.MintTo(ctx, owner, metadataURI, provenanceTag, c.gasLimit)
	if err != nil {
		return MintResult{}, fmt.Errorf("submit mint: %w", err)
	}

	txHash := receipt.TxHash.Hex()
	if receipt.Status != types.ReceiptStatusSuccessful {
		if m := metrics.Get(); m != nil {
			m.IncTransaction("mintTo", "failed")
		}
		return MintResult{}, &MintTransactionFailedError{TxHash: txHash, Status: receipt.Status}
	}
	if m := metrics.Get(); m != nil {
		m.IncTransaction("mintTo", "success")
	}

	result := newResult(receipt, provenanceTag)
	if ev, ok := chain.ParseMinted(receipt.Logs, c.contract.Address()); ok && ev.TokenID.IsUint64() {
		result.TokenID = ev.TokenID.Uint64()
		c.logger.Info("token minted",
			"token_id", result.TokenID,
			"tx_hash", txHash,
			"block", result.BlockNumber,
		)
		return result, nil
	}

	id, err := c.counterFallback(ctx)
	if err != nil {
		return MintResult{}, &TokenIdUnresolvedError{TxHash: txHash, Err: err}
	}
	result.TokenID = id
	result.LowConfidence = true

	c.logger.Warn("Minted event not found, token id derived from counter",
		"token_id", id,
		"tx_hash", txHash,
	)
	if m := metrics.Get(); m != nil {
		m.IncLowConfidence("token")
	}
	return result, nil
}

// Resolve recovers the outcome of an earlier mint from its transaction hash
// without sending anything. An unconfirmed mint returns *chain.PendingTxError
// and a reverted one *MintTransactionFailedError. A mined mint without a
// Minted event returns *TokenIdUnresolvedError: the counter may have moved
// since, so it is not consulted.
func (c *Client) Resolve(ctx context.Context, txHash, provenanceTag string) (MintResult, error) {
	hash := common.HexToHash(txHash)
	receipt, err := c.contract.Receipt(ctx, hash)
	if err != nil {
		return MintResult{}, &chain.PendingTxError{Method: "mintTo", Hash: hash.Hex(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return MintResult{}, &MintTransactionFailedError{TxHash: hash.Hex(), Status: receipt.Status}
	}

	result := newResult(receipt, provenanceTag)
	result.TxHash = hash.Hex()
	ev, ok := chain.ParseMinted(receipt.Logs, c.contract.Address())
	if !ok || !ev.TokenID.IsUint64() {
		return MintResult{}, &TokenIdUnresolvedError{TxHash: result.TxHash, Err: errors.New("receipt has no Minted event")}
	}
	result.TokenID = ev.TokenID.Uint64()

	c.logger.Info("earlier mint recovered",
		"token_id", result.TokenID,
		"tx_hash", result.TxHash,
		"block", result.BlockNumber,
	)
	return result, nil
}

func newResult(receipt *types.Receipt, provenanceTag string) MintResult {
	result := MintResult{
		TxHash:        receipt.TxHash.Hex(),
		GasUsed:       receipt.GasUsed,
		ProvenanceTag: provenanceTag,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return result
}

// counterFallback reads getCurrentTokenId and assumes the last mint took
// counter-1.
func (c *Client) counterFallback(ctx context.Context) (uint64, error) {
	counter, err := c.contract.CurrentTokenID(ctx)
	if err != nil {
		return 0, fmt.Errorf("read token counter: %w", err)
	}
	if counter.Sign() <= 0 || !counter.IsUint64() {
		return 0, fmt.Errorf("token counter %s cannot identify a minted token", counter)
	}
	return counter.Uint64() - 1, nil
}
