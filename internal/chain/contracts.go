package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MinterContract binds the meme token contract.
type MinterContract struct {
	address common.Address
	tx      *Transactor
}

// NewMinterContract binds the token contract at address.
func NewMinterContract(address common.Address, tx *Transactor) *MinterContract {
	return &MinterContract{address: address, tx: tx}
}

func (c *MinterContract) Address() common.Address { return c.address }

// MintTo mints a token owned by to and waits for the receipt.
func (c *MinterContract) MintTo(ctx context.Context, to common.Address, tokenURI, provenanceTag string, gas uint64) (*types.Receipt, error) {
	return transact(ctx, c.tx, c.address, MinterABI, gas, nil, "mintTo", to, tokenURI, provenanceTag)
}

// Receipt waits for the receipt of an earlier transaction.
func (c *MinterContract) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.tx.WaitMined(ctx, hash)
}

// CurrentTokenID returns the contract's token counter.
func (c *MinterContract) CurrentTokenID(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, c.tx, c.address, MinterABI, "getCurrentTokenId")
}

func (c *MinterContract) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	out, err := c.tx.Call(ctx, c.address, MinterABI, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *MinterContract) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	out, err := c.tx.Call(ctx, c.address, MinterABI, "tokenURI", tokenID)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (c *MinterContract) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	out, err := c.tx.Call(ctx, c.address, MinterABI, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *MinterContract) SetApprovalForAll(ctx context.Context, operator common.Address, approved bool, gas uint64) (*types.Receipt, error) {
	return transact(ctx, c.tx, c.address, MinterABI, gas, nil, "setApprovalForAll", operator, approved)
}

func (c *MinterContract) TransferFrom(ctx context.Context, from, to common.Address, tokenID *big.Int, gas uint64) (*types.Receipt, error) {
	return transact(ctx, c.tx, c.address, MinterABI, gas, nil, "transferFrom", from, to, tokenID)
}

// Listing is a marketplace listing as stored on chain.
type Listing struct {
	NFT      common.Address
	TokenID  *big.Int
	Seller   common.Address
	Price    *big.Int
	Active   bool
	ListedAt *big.Int
}

// listingTuple mirrors the ABI tuple field names for decoding.
type listingTuple struct {
	Nft      common.Address
	TokenId  *big.Int
	Seller   common.Address
	Price    *big.Int
	Active   bool
	ListedAt *big.Int
}

// MarketContract binds the marketplace contract.
type MarketContract struct {
	address common.Address
	tx      *Transactor
}

func NewMarketContract(address common.Address, tx *Transactor) *MarketContract {
	return &MarketContract{address: address, tx: tx}
}

func (c *MarketContract) Address() common.Address { return c.address }

// List creates a fixed-price listing and waits for the receipt.
func (c *MarketContract) List(ctx context.Context, nft common.Address, tokenID, price *big.Int, gas uint64) (*types.Receipt, error) {
	return transact(ctx, c.tx, c.address, MarketABI, gas, nil, "list", nft, tokenID, price)
}

// Buy purchases a listing paying value. Gas is estimated.
func (c *MarketContract) Buy(ctx context.Context, listingID, value *big.Int) (*types.Receipt, error) {
	return transact(ctx, c.tx, c.address, MarketABI, 0, value, "buy", listingID)
}

// Receipt waits for the receipt of an earlier transaction.
func (c *MarketContract) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.tx.WaitMined(ctx, hash)
}

func (c *MarketContract) CurrentListingID(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, c.tx, c.address, MarketABI, "getCurrentListingId")
}

func (c *MarketContract) GetListing(ctx context.Context, listingID *big.Int) (Listing, error) {
	out, err := c.tx.Call(ctx, c.address, MarketABI, "getListing", listingID)
	if err != nil {
		return Listing{}, err
	}
	t := *abi.ConvertType(out[0], new(listingTuple)).(*listingTuple)
	return Listing{
		NFT:      t.Nft,
		TokenID:  t.TokenId,
		Seller:   t.Seller,
		Price:    t.Price,
		Active:   t.Active,
		ListedAt: t.ListedAt,
	}, nil
}

func (c *MarketContract) ActiveListings(ctx context.Context, offset, limit *big.Int) ([]*big.Int, error) {
	out, err := c.tx.Call(ctx, c.address, MarketABI, "getActiveListings", offset, limit)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int), nil
}

func (c *MarketContract) Paused(ctx context.Context) (bool, error) {
	out, err := c.tx.Call(ctx, c.address, MarketABI, "paused")
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// FilterListed returns Listed events for tokenID on nft from fromBlock onward.
func (c *MarketContract) FilterListed(ctx context.Context, nft common.Address, tokenID *big.Int, fromBlock uint64) ([]ListedEvent, error) {
	return filterListed(ctx, c.tx.Backend(), c.address, nft, tokenID, fromBlock)
}

func transact(ctx context.Context, t *Transactor, to common.Address, parsed abi.ABI, gas uint64, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	receipt, err := t.Transact(ctx, TxRequest{Method: method, To: to, Data: data, Value: value, GasLimit: gas})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return receipt, nil
}

func callBig(ctx context.Context, t *Transactor, to common.Address, parsed abi.ABI, method string, args ...any) (*big.Int, error) {
	out, err := t.Call(ctx, to, parsed, method, args...)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
