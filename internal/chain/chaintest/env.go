package chaintest

import (
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/retry"
)

// Env bundles a ledger with bound contracts signed by a fresh operator key.
type Env struct {
	Ledger  *Ledger
	Signer  *chain.Signer
	Tx      *chain.Transactor
	Minter  *chain.MinterContract
	Market  *chain.MarketContract
	Sleeper *retry.Recorder
}

// NewEnv builds an Env whose receipt polling never blocks.
func NewEnv(t testing.TB) *Env {
	t.Helper()

	ledger := NewLedger()
	signer := chain.NewSignerFromKey(NewKey(), ChainID)
	sleeper := &retry.Recorder{}
	tx := chain.NewTransactor(ledger, signer, chain.TransactorConfig{
		ReceiptTimeout: 10 * time.Second,
		ReceiptPoll:    time.Second,
		Sleeper:        sleeper,
	})
	t.Cleanup(tx.Close)

	return &Env{
		Ledger:  ledger,
		Signer:  signer,
		Tx:      tx,
		Minter:  chain.NewMinterContract(MinterAddress, tx),
		Market:  chain.NewMarketContract(MarketAddress, tx),
		Sleeper: sleeper,
	}
}
