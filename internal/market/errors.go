package market

import (
	"errors"
	"fmt"
)

var (
	ErrListingInactive     = errors.New("listing is not active")
	ErrOwnListing          = errors.New("cannot buy your own listing")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMarketPaused        = errors.New("marketplace is paused")
	ErrListingNotFound     = errors.New("no active listing found")
)

// NotOwnerError means the seller does not own the token, or ownership could not
// be read.
type NotOwnerError struct {
	TokenID uint64
	Caller  string
	Owner   string // empty when the read failed
	Err     error
}

func (e *NotOwnerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot confirm %s owns token %d: %v", e.Caller, e.TokenID, e.Err)
	}
	return fmt.Sprintf("token %d is owned by %s, not %s", e.TokenID, e.Owner, e.Caller)
}

func (e *NotOwnerError) Unwrap() error { return e.Err }

// InvalidPriceError rejects a price before any network call.
type InvalidPriceError struct {
	Price  string
	Reason string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %q: %s", e.Price, e.Reason)
}

// ListingTransactionFailedError reports a mined marketplace transaction (or
// its approval) whose receipt status is not 1.
type ListingTransactionFailedError struct {
	Method string // "setApprovalForAll" | "list" | "buy" | "transferFrom"
	TxHash string
	Status uint64
}

func (e *ListingTransactionFailedError) Error() string {
	return fmt.Sprintf("%s transaction %s failed with status %d", e.Method, e.TxHash, e.Status)
}

// ListingIdUnresolvedError means the listing was mined but neither the Listed
// event nor the counter yielded its id.
type ListingIdUnresolvedError struct {
	TxHash string
	Err    error
}

func (e *ListingIdUnresolvedError) Error() string {
	return fmt.Sprintf("listing id unresolved for %s: %v", e.TxHash, e.Err)
}

func (e *ListingIdUnresolvedError) Unwrap() error { return e.Err }
