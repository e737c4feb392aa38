package minter

import "fmt"

// InvalidAddressError is returned before any transaction is built.
type InvalidAddressError struct {
	Address string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid destination address %q", e.Address)
}

// MintTransactionFailedError reports a mined mint whose receipt status is not 1.
type MintTransactionFailedError struct {
	TxHash string
	Status uint64
}

func (e *MintTransactionFailedError) Error() string {
	return fmt.Sprintf("mint transaction %s failed with status %d", e.TxHash, e.Status)
}

// TokenIdUnresolvedError means the mint succeeded but neither the event nor the
// counter yielded a token id.
type TokenIdUnresolvedError struct {
	TxHash string
	Err    error
}

func (e *TokenIdUnresolvedError) Error() string {
	return fmt.Sprintf("token id unresolved for mint %s: %v", e.TxHash, e.Err)
}

func (e *TokenIdUnresolvedError) Unwrap() error { return e.Err }
