// Package market lists minted tokens on the marketplace contract and serves
// the buy, browse and balance operations around it.
package market

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
)

// Default gas ceilings.
const (
	DefaultApprovalGas = 100000
	DefaultListGas     = 300000
)

// TokenContract is the NFT surface needed for listing and transfers.
type TokenContract interface {
	Address() common.Address
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
	SetApprovalForAll(ctx context.Context, operator common.Address, approved bool, gas uint64) (*types.Receipt, error)
	TransferFrom(ctx context.Context, from, to common.Address, tokenID *big.Int, gas uint64) (*types.Receipt, error)
}

// MarketContract is the marketplace surface.
type MarketContract interface {
	Address() common.Address
	List(ctx context.Context, nft common.Address, tokenID, price *big.Int, gas uint64) (*types.Receipt, error)
	Buy(ctx context.Context, listingID, value *big.Int) (*types.Receipt, error)
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CurrentListingID(ctx context.Context) (*big.Int, error)
	GetListing(ctx context.Context, listingID *big.Int) (chain.Listing, error)
	ActiveListings(ctx context.Context, offset, limit *big.Int) ([]*big.Int, error)
	Paused(ctx context.Context) (bool, error)
	FilterListed(ctx context.Context, nft common.Address, tokenID *big.Int, fromBlock uint64) ([]chain.ListedEvent, error)
}

// ChainReader reads balances and the chain head.
type ChainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config sets gas ceilings and the log lookback used to find listings.
type Config struct {
	ApprovalGas    uint64
	ListGas        uint64
	TransferGas    uint64 // 0 estimates
	LookbackBlocks uint64
}

// Client acts on the marketplace for one account.
type Client struct {
	token   TokenContract
	market  MarketContract
	reader  ChainReader
	account common.Address
	cfg     Config
	logger  *slog.Logger
}

// New returns a client that lists, buys and transfers as account.
func New(token TokenContract, market MarketContract, reader ChainReader, account common.Address, cfg Config) *Client {
	if cfg.ApprovalGas == 0 {
		cfg.ApprovalGas = DefaultApprovalGas
	}
	if cfg.ListGas == 0 {
		cfg.ListGas = DefaultListGas
	}
	if cfg.LookbackBlocks == 0 {
		cfg.LookbackBlocks = 50000
	}
	return &Client{
		token:   token,
		market:  market,
		reader:  reader,
		account: account,
		cfg:     cfg,
		logger:  logging.Component("market"),
	}
}

// Account is the seller and buyer address.
func (c *Client) Account() common.Address { return c.account }
