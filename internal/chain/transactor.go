package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/retry"
)

// ErrReceiptTimeout is returned when a transaction is not mined in time.
var ErrReceiptTimeout = errors.New("timed out waiting for receipt")

var errNotMined = errors.New("transaction not mined yet")

// TxRequest describes one contract transaction.
type TxRequest struct {
	Method   string // contract method, for logs and sent hooks
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64 // 0 uses the node estimate plus 20%
}

// TransactorConfig tunes receipt waiting.
type TransactorConfig struct {
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
	Sleeper        retry.Sleeper
}

// Transactor signs and submits transactions from a single key. Submission is
// serialized so nonces are consumed in order.
type Transactor struct {
	backend Backend
	signer  *Signer
	nonces  *NonceSequencer
	cfg     TransactorConfig
	logger  *slog.Logger

	mu sync.Mutex
}

// NewTransactor wires a signer to a backend.
func NewTransactor(backend Backend, signer *Signer, cfg TransactorConfig) *Transactor {
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = 2 * time.Second
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = retry.RealSleeper
	}
	return &Transactor{
		backend: backend,
		signer:  signer,
		nonces:  NewNonceSequencer(backend, signer.Address()),
		cfg:     cfg,
		logger:  logging.Component("chain"),
	}
}

// From is the sending account.
func (t *Transactor) From() common.Address { return t.signer.Address() }

// Backend exposes the underlying RPC backend for read-only queries.
func (t *Transactor) Backend() Backend { return t.backend }

// Close stops the nonce sequencer.
func (t *Transactor) Close() { t.nonces.Close() }

// Send signs and submits req without waiting for it to be mined.
func (t *Transactor) Send(ctx context.Context, req TxRequest) (*types.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	gas := req.GasLimit
	if gas == 0 {
		to := req.To
		est, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  t.signer.Address(),
			To:    &to,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		gas = est + est/5
	}

	nonce, err := t.nonces.Next(ctx)
	if err != nil {
		return nil, err
	}

	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := t.signer.Sign(tx)
	if err != nil {
		t.resetNonce(ctx)
		return nil, err
	}

	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		t.resetNonce(ctx)
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	t.logger.Debug("transaction sent",
		"tx_hash", signed.Hash().Hex(),
		"to", to.Hex(),
		"nonce", nonce,
		"gas", gas,
	)
	return signed, nil
}

func (t *Transactor) resetNonce(ctx context.Context) {
	if err := t.nonces.Reset(context.WithoutCancel(ctx)); err != nil {
		t.logger.Warn("nonce reset failed", "error", err)
	}
}

// WaitMined polls for the receipt of hash until it appears or the receipt
// timeout passes.
func (t *Transactor) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.ReceiptTimeout)
	defer cancel()

	attempts := int(t.cfg.ReceiptTimeout/t.cfg.ReceiptPoll) + 1
	policy := retry.Fixed(attempts, t.cfg.ReceiptPoll)

	var receipt *types.Receipt
	_, err := retry.Do(ctx, policy, t.cfg.Sleeper, func(attempt int) error {
		r, err := t.backend.TransactionReceipt(ctx, hash)
		switch {
		case errors.Is(err, ethereum.NotFound), err == nil && r == nil:
			return errNotMined
		case err != nil:
			t.logger.Debug("receipt poll failed", "tx_hash", hash.Hex(), "attempt", attempt, "error", err)
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
		}
		return nil, err
	}
	return receipt, nil
}

// Transact sends req and waits for its receipt. The receipt status is left to
// the caller. Once the node accepts the transaction, any hook installed with
// WithSentHook is called; a failed wait after that returns *PendingTxError.
func (t *Transactor) Transact(ctx context.Context, req TxRequest) (*types.Receipt, error) {
	tx, err := t.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	hash := tx.Hash()
	if fn := sentHook(ctx); fn != nil {
		fn(SentTx{Method: req.Method, Hash: hash.Hex()})
	}

	receipt, err := t.WaitMined(ctx, hash)
	if err != nil {
		return nil, &PendingTxError{Method: req.Method, Hash: hash.Hex(), Err: err}
	}
	return receipt, nil
}

// Call executes a read-only contract method from the operator account.
func (t *Transactor) Call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := t.backend.CallContract(ctx, ethereum.CallMsg{
		From: t.signer.Address(),
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}
