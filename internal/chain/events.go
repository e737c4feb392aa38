package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MintedEvent is Minted(uint256 indexed tokenId, address indexed to, string tokenURI, string trendHash).
type MintedEvent struct {
	TokenID   *big.Int
	To        common.Address
	TokenURI  string
	TrendHash string
}

// ListedEvent is Listed(uint256 indexed listingId, address indexed nft, uint256 indexed tokenId, address seller, uint256 price).
type ListedEvent struct {
	ListingID   *big.Int
	NFT         common.Address
	TokenID     *big.Int
	Seller      common.Address
	Price       *big.Int
	BlockNumber uint64
	TxHash      common.Hash
}

// PurchasedEvent is Purchased(uint256 indexed listingId, address indexed nft, uint256 indexed tokenId, address seller, address buyer, uint256 price, uint256 fee).
type PurchasedEvent struct {
	ListingID *big.Int
	NFT       common.Address
	TokenID   *big.Int
	Seller    common.Address
	Buyer     common.Address
	Price     *big.Int
	Fee       *big.Int
}

// matchEvent reports whether lg is an instance of ev emitted by contract, and
// returns its decoded non-indexed fields.
func matchEvent(lg *types.Log, contract common.Address, ev abi.Event) ([]any, bool) {
	if lg == nil || lg.Address != contract {
		return nil, false
	}
	indexed := 0
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed++
		}
	}
	if len(lg.Topics) != indexed+1 || lg.Topics[0] != ev.ID {
		return nil, false
	}
	values, err := ev.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, false
	}
	return values, true
}

func topicBig(h common.Hash) *big.Int { return new(big.Int).SetBytes(h.Bytes()) }

func topicAddress(h common.Hash) common.Address { return common.BytesToAddress(h.Bytes()) }

// ParseMinted returns the first Minted event emitted by contract in logs.
func ParseMinted(logs []*types.Log, contract common.Address) (MintedEvent, bool) {
	ev := MinterABI.Events["Minted"]
	for _, lg := range logs {
		values, ok := matchEvent(lg, contract, ev)
		if !ok || len(values) != 2 {
			continue
		}
		uri, ok1 := values[0].(string)
		tag, ok2 := values[1].(string)
		if !ok1 || !ok2 {
			continue
		}
		return MintedEvent{
			TokenID:   topicBig(lg.Topics[1]),
			To:        topicAddress(lg.Topics[2]),
			TokenURI:  uri,
			TrendHash: tag,
		}, true
	}
	return MintedEvent{}, false
}

// ParseListed returns the first Listed event emitted by contract in logs.
func ParseListed(logs []*types.Log, contract common.Address) (ListedEvent, bool) {
	ev := MarketABI.Events["Listed"]
	for _, lg := range logs {
		if e, ok := decodeListed(lg, contract, ev); ok {
			return e, true
		}
	}
	return ListedEvent{}, false
}

func decodeListed(lg *types.Log, contract common.Address, ev abi.Event) (ListedEvent, bool) {
	values, ok := matchEvent(lg, contract, ev)
	if !ok || len(values) != 2 {
		return ListedEvent{}, false
	}
	seller, ok1 := values[0].(common.Address)
	price, ok2 := values[1].(*big.Int)
	if !ok1 || !ok2 {
		return ListedEvent{}, false
	}
	return ListedEvent{
		ListingID:   topicBig(lg.Topics[1]),
		NFT:         topicAddress(lg.Topics[2]),
		TokenID:     topicBig(lg.Topics[3]),
		Seller:      seller,
		Price:       price,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
	}, true
}

// ParsePurchased returns the first Purchased event emitted by contract in logs.
func ParsePurchased(logs []*types.Log, contract common.Address) (PurchasedEvent, bool) {
	ev := MarketABI.Events["Purchased"]
	for _, lg := range logs {
		values, ok := matchEvent(lg, contract, ev)
		if !ok || len(values) != 4 {
			continue
		}
		seller, ok1 := values[0].(common.Address)
		buyer, ok2 := values[1].(common.Address)
		price, ok3 := values[2].(*big.Int)
		fee, ok4 := values[3].(*big.Int)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		return PurchasedEvent{
			ListingID: topicBig(lg.Topics[1]),
			NFT:       topicAddress(lg.Topics[2]),
			TokenID:   topicBig(lg.Topics[3]),
			Seller:    seller,
			Buyer:     buyer,
			Price:     price,
			Fee:       fee,
		}, true
	}
	return PurchasedEvent{}, false
}

// LogFilterer is the log query side of Backend.
type LogFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

func filterListed(ctx context.Context, f LogFilterer, market, nft common.Address, tokenID *big.Int, fromBlock uint64) ([]ListedEvent, error) {
	ev := MarketABI.Events["Listed"]
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{market},
		Topics: [][]common.Hash{
			{ev.ID},
			nil,
			{common.BytesToHash(nft.Bytes())},
			{common.BigToHash(tokenID)},
		},
	}
	logs, err := f.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filter Listed logs: %w", err)
	}

	var out []ListedEvent
	for i := range logs {
		if e, ok := decodeListed(&logs[i], market, ev); ok {
			out = append(out, e)
		}
	}
	return out, nil
}
