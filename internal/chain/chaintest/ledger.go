// Package chaintest provides an in-memory ledger that speaks the mint and
// marketplace contract ABIs, for tests that exercise real calldata.
package chaintest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain"
)

// ChainID is the chain id the ledger accepts signatures for.
const ChainID = 1328

var (
	MinterAddress = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	MarketAddress = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type listing struct {
	nft      common.Address
	tokenID  uint64
	seller   common.Address
	price    *big.Int
	active   bool
	listedAt uint64
}

// Ledger is a fake chain.Backend hosting one mint contract and one marketplace.
type Ledger struct {
	mu sync.Mutex

	// Failure injection. Set before use.
	FailMethods     map[string]bool // mined with status 0
	SuppressEvents  bool
	OwnerOfFailures int // number of upcoming ownerOf reads that error
	PendingPolls    int // receipt polls answered NotFound per transaction
	Paused          bool

	block       uint64
	nonces      map[common.Address]uint64
	balances    map[common.Address]*big.Int
	owners      map[uint64]common.Address
	uris        map[uint64]string
	nextToken   uint64
	approvals   map[common.Address]map[common.Address]bool
	listings    map[uint64]*listing
	nextListing uint64
	receipts    map[common.Hash]*types.Receipt
	pending     map[common.Hash]int
	logs        []types.Log
	sent        []string
	calls       map[string]int
	sendErr     error
}

// NewLedger returns an empty ledger. Token and listing counters start at 1.
func NewLedger() *Ledger {
	return &Ledger{
		FailMethods: map[string]bool{},
		block:       100,
		nonces:      map[common.Address]uint64{},
		balances:    map[common.Address]*big.Int{},
		owners:      map[uint64]common.Address{},
		uris:        map[uint64]string{},
		nextToken:   1,
		approvals:   map[common.Address]map[common.Address]bool{},
		listings:    map[uint64]*listing{},
		nextListing: 1,
		receipts:    map[common.Hash]*types.Receipt{},
		pending:     map[common.Hash]int{},
		calls:       map[string]int{},
	}
}

// NewKey returns a fresh operator key.
func NewKey() *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return key
}

// Fund credits addr with wei.
func (l *Ledger) Fund(addr common.Address, wei *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance(addr).Add(l.balance(addr), wei)
}

// SetOwner assigns tokenID to owner without a transaction.
func (l *Ledger) SetOwner(tokenID uint64, owner common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owners[tokenID] = owner
	if tokenID >= l.nextToken {
		l.nextToken = tokenID + 1
	}
}

// Owner returns the recorded owner of tokenID.
func (l *Ledger) Owner(tokenID uint64) common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owners[tokenID]
}

// FailNextSend makes the next SendTransaction return err.
func (l *Ledger) FailNextSend(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// Sent lists the method names of accepted transactions in order.
func (l *Ledger) Sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sent...)
}

// Calls returns how many times a view method was called.
func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

// Approved reports the recorded operator approval.
func (l *Ledger) Approved(owner, operator common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.approvals[owner][operator]
}

func (l *Ledger) balance(addr common.Address) *big.Int {
	b, ok := l.balances[addr]
	if !ok {
		b = new(big.Int)
		l.balances[addr] = b
	}
	return b
}

func contractABI(to *common.Address) (abi.ABI, error) {
	switch {
	case to == nil:
		return abi.ABI{}, errors.New("contract creation not supported")
	case *to == MinterAddress:
		return chain.MinterABI, nil
	case *to == MarketAddress:
		return chain.MarketABI, nil
	default:
		return abi.ABI{}, fmt.Errorf("no contract at %s", to.Hex())
	}
}

func decodeCall(parsed abi.ABI, data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("calldata too short")
	}
	m, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return m, args, nil
}

func u64(v any) uint64 { return v.(*big.Int).Uint64() }

// CallContract answers view methods.
func (l *Ledger) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	parsed, err := contractABI(msg.To)
	if err != nil {
		return nil, err
	}
	m, args, err := decodeCall(parsed, msg.Data)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[m.Name]++

	var out []any
	switch m.Name {
	case "getCurrentTokenId":
		out = []any{new(big.Int).SetUint64(l.nextToken)}
	case "ownerOf":
		if l.OwnerOfFailures > 0 {
			l.OwnerOfFailures--
			return nil, errors.New("rpc: temporarily unavailable")
		}
		owner, ok := l.owners[u64(args[0])]
		if !ok {
			return nil, errors.New("execution reverted: ERC721NonexistentToken")
		}
		out = []any{owner}
	case "tokenURI":
		out = []any{l.uris[u64(args[0])]}
	case "isApprovedForAll":
		out = []any{l.approvals[args[0].(common.Address)][args[1].(common.Address)]}
	case "getCurrentListingId":
		out = []any{new(big.Int).SetUint64(l.nextListing)}
	case "getListing":
		li, ok := l.listings[u64(args[0])]
		if !ok {
			li = &listing{price: new(big.Int)}
		}
		out = []any{struct {
			Nft      common.Address
			TokenId  *big.Int
			Seller   common.Address
			Price    *big.Int
			Active   bool
			ListedAt *big.Int
		}{li.nft, new(big.Int).SetUint64(li.tokenID), li.seller, new(big.Int).Set(li.price), li.active, new(big.Int).SetUint64(li.listedAt)}}
	case "getActiveListings":
		offset, limit := u64(args[0]), u64(args[1])
		var ids []*big.Int
		var seen uint64
		for id := uint64(1); id < l.nextListing; id++ {
			if !l.listings[id].active {
				continue
			}
			if seen >= offset && uint64(len(ids)) < limit {
				ids = append(ids, new(big.Int).SetUint64(id))
			}
			seen++
		}
		if ids == nil {
			ids = []*big.Int{}
		}
		out = []any{ids}
	case "paused":
		out = []any{l.Paused}
	default:
		return nil, fmt.Errorf("method %s is not a view", m.Name)
	}
	return m.Outputs.Pack(out...)
}

func (l *Ledger) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonces[account], nil
}

func (l *Ledger) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (l *Ledger) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 100000, nil
}

func (l *Ledger) BalanceAt(ctx context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(account)), nil
}

func (l *Ledger) BlockNumber(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.block, nil
}

// SendTransaction validates the signature and nonce, then executes the call
// and stores a receipt.
func (l *Ledger) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(ChainID)), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	parsed, err := contractABI(tx.To())
	if err != nil {
		return err
	}
	m, args, err := decodeCall(parsed, tx.Data())
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sendErr != nil {
		err := l.sendErr
		l.sendErr = nil
		return err
	}
	if want := l.nonces[from]; tx.Nonce() != want {
		return fmt.Errorf("invalid nonce: have %d, want %d", tx.Nonce(), want)
	}
	if l.balance(from).Cmp(tx.Value()) < 0 {
		return errors.New("insufficient funds for transfer")
	}
	l.nonces[from]++
	l.block++
	l.sent = append(l.sent, m.Name)

	receipt := &types.Receipt{
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(l.block),
		GasUsed:     21000,
		Status:      types.ReceiptStatusSuccessful,
	}
	logs, ok := l.execute(from, *tx.To(), tx.Value(), m.Name, args)
	if !ok || l.FailMethods[m.Name] {
		receipt.Status = types.ReceiptStatusFailed
		logs = nil
	}
	if l.SuppressEvents {
		logs = nil
	}
	for i, lg := range logs {
		lg.BlockNumber = l.block
		lg.TxHash = tx.Hash()
		lg.Index = uint(i)
		l.logs = append(l.logs, *lg)
	}
	receipt.Logs = logs
	l.receipts[tx.Hash()] = receipt
	l.pending[tx.Hash()] = l.PendingPolls
	return nil
}

// execute applies a state-changing call. It returns false on revert, in which
// case no state is changed.
func (l *Ledger) execute(from, to common.Address, value *big.Int, method string, args []any) ([]*types.Log, bool) {
	if l.FailMethods[method] {
		return nil, false
	}
	switch method {
	case "mintTo":
		owner := args[0].(common.Address)
		id := l.nextToken
		l.nextToken++
		l.owners[id] = owner
		l.uris[id] = args[1].(string)
		return []*types.Log{l.event(MinterAddress, chain.MinterABI.Events["Minted"],
			[]common.Hash{common.BigToHash(new(big.Int).SetUint64(id)), addrTopic(owner)},
			args[1], args[2])}, true

	case "setApprovalForAll":
		if l.approvals[from] == nil {
			l.approvals[from] = map[common.Address]bool{}
		}
		l.approvals[from][args[0].(common.Address)] = args[1].(bool)
		return nil, true

	case "transferFrom":
		src, dst, id := args[0].(common.Address), args[1].(common.Address), u64(args[2])
		if l.owners[id] != src || (from != src && !l.approvals[src][from]) {
			return nil, false
		}
		l.owners[id] = dst
		return nil, true

	case "list":
		nft, id, price := args[0].(common.Address), u64(args[1]), args[2].(*big.Int)
		if l.Paused || nft != MinterAddress || l.owners[id] != from || !l.approvals[from][MarketAddress] || price.Sign() <= 0 {
			return nil, false
		}
		listingID := l.nextListing
		l.nextListing++
		l.listings[listingID] = &listing{
			nft: nft, tokenID: id, seller: from,
			price: new(big.Int).Set(price), active: true, listedAt: l.block,
		}
		return []*types.Log{l.event(MarketAddress, chain.MarketABI.Events["Listed"],
			[]common.Hash{common.BigToHash(new(big.Int).SetUint64(listingID)), addrTopic(nft), common.BigToHash(new(big.Int).SetUint64(id))},
			from, price)}, true

	case "buy":
		li, ok := l.listings[u64(args[0])]
		if l.Paused || !ok || !li.active || value.Cmp(li.price) < 0 || li.seller == from {
			return nil, false
		}
		l.balance(from).Sub(l.balance(from), value)
		l.balance(li.seller).Add(l.balance(li.seller), value)
		l.owners[li.tokenID] = from
		li.active = false
		return []*types.Log{l.event(MarketAddress, chain.MarketABI.Events["Purchased"],
			[]common.Hash{common.BigToHash(args[0].(*big.Int)), addrTopic(li.nft), common.BigToHash(new(big.Int).SetUint64(li.tokenID))},
			li.seller, from, li.price, new(big.Int))}, true

	case "cancel":
		li, ok := l.listings[u64(args[0])]
		if !ok || li.seller != from || !li.active {
			return nil, false
		}
		li.active = false
		return nil, true
	}
	return nil, false
}

func addrTopic(a common.Address) common.Hash { return common.BytesToHash(a.Bytes()) }

func (l *Ledger) event(contract common.Address, ev abi.Event, indexed []common.Hash, data ...any) *types.Log {
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(fmt.Sprintf("chaintest: pack %s: %v", ev.Name, err))
	}
	return &types.Log{
		Address: contract,
		Topics:  append([]common.Hash{ev.ID}, indexed...),
		Data:    packed,
	}
}

// TransactionReceipt returns ethereum.NotFound for PendingPolls polls after a
// send, then the stored receipt.
func (l *Ledger) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if l.pending[hash] > 0 {
		l.pending[hash]--
		return nil, ethereum.NotFound
	}
	return r, nil
}

// FilterLogs matches stored logs by address, block range start and topics.
func (l *Ledger) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []types.Log
	for _, lg := range l.logs {
		if q.FromBlock != nil && lg.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, lg.Address) {
			continue
		}
		if !matchTopics(q.Topics, lg.Topics) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	if len(filter) > len(topics) {
		return false
	}
	for i, alts := range filter {
		if len(alts) == 0 {
			continue
		}
		found := false
		for _, h := range alts {
			if h == topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

var _ chain.Backend = (*Ledger)(nil)
