package chain

import (
	"context"
	"errors"
	"fmt"
)

// SentTx identifies a transaction the node has accepted.
type SentTx struct {
	Method string
	Hash   string
}

type sentHookKey struct{}

// WithSentHook returns a context whose transactions call fn after the node
// accepts them and before their receipt is awaited. fn runs on the sending
// goroutine.
func WithSentHook(ctx context.Context, fn func(SentTx)) context.Context {
	return context.WithValue(ctx, sentHookKey{}, fn)
}

func sentHook(ctx context.Context) func(SentTx) {
	fn, _ := ctx.Value(sentHookKey{}).(func(SentTx))
	return fn
}

// PendingTxError reports a transaction that was sent but whose receipt was
// not obtained, because the wait timed out or was cancelled. The transaction
// may still be mined.
type PendingTxError struct {
	Method string
	Hash   string
	Err    error
}

func (e *PendingTxError) Error() string {
	return fmt.Sprintf("%s transaction %s sent but not confirmed: %v", e.Method, e.Hash, e.Err)
}

func (e *PendingTxError) Unwrap() error { return e.Err }

// PendingTxHash returns the hash carried by a *PendingTxError anywhere in
// err's chain.
func PendingTxHash(err error) (string, bool) {
	var pending *PendingTxError
	if errors.As(err, &pending) {
		return pending.Hash, true
	}
	return "", false
}
