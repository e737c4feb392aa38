// Package verify confirms token ownership after a mint, tolerating read lag.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/metrics"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/retry"
)

// OwnerReader reads the current owner of a token.
type OwnerReader interface {
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
}

// OwnershipVerificationError means ownership could not be confirmed within the
// attempt budget. The token may still be owned as expected; the state is
// unknown, not negative.
type OwnershipVerificationError struct {
	TokenID       uint64
	ExpectedOwner string
	ActualOwner   string // last observed owner, empty if every read failed
	Attempts      int
	Err           error // last read error, if any
}

func (e *OwnershipVerificationError) Error() string {
	msg := fmt.Sprintf("ownership of token %d not confirmed for %s after %d attempts", e.TokenID, e.ExpectedOwner, e.Attempts)
	if e.ActualOwner != "" {
		msg += " (owner " + e.ActualOwner + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OwnershipVerificationError) Unwrap() error { return e.Err }

var errOwnerMismatch = errors.New("owner mismatch")

// Verifier polls ownerOf under a retry policy.
type Verifier struct {
	reader  OwnerReader
	policy  retry.Policy
	sleeper retry.Sleeper
	logger  *slog.Logger
}

// New returns a verifier. A nil sleeper uses the wall clock.
func New(reader OwnerReader, policy retry.Policy, sleeper retry.Sleeper) *Verifier {
	if sleeper == nil {
		sleeper = retry.RealSleeper
	}
	return &Verifier{
		reader:  reader,
		policy:  policy,
		sleeper: sleeper,
		logger:  logging.Component("verify"),
	}
}

// VerifyOwnership returns nil as soon as ownerOf(tokenID) equals expectedOwner,
// compared case-insensitively. It makes at most policy.MaxAttempts reads and
// sleeps only between them. Read errors count as failed attempts.
func (v *Verifier) VerifyOwnership(ctx context.Context, tokenID uint64, expectedOwner string) error {
	if _, ok := chain.ParseAddress(expectedOwner); !ok {
		return fmt.Errorf("invalid expected owner %q", expectedOwner)
	}

	var (
		actual  string
		readErr error
	)
	id := new(big.Int).SetUint64(tokenID)
	attempts, err := retry.Do(ctx, v.policy, v.sleeper, func(attempt int) error {
		owner, err := v.reader.OwnerOf(ctx, id)
		if err != nil {
			readErr = err
			v.logger.Debug("ownerOf read failed", "token_id", tokenID, "attempt", attempt, "error", err)
			return err
		}
		readErr = nil
		actual = owner.Hex()
		if strings.EqualFold(actual, expectedOwner) {
			return nil
		}
		v.logger.Debug("owner mismatch", "token_id", tokenID, "attempt", attempt, "owner", actual)
		if attempt > 1 {
			if m := metrics.Get(); m != nil {
				m.IncRetryAttempts("verify")
			}
		}
		return errOwnerMismatch
	})

	if m := metrics.Get(); m != nil {
		m.ObserveVerifyAttempts(float64(attempts))
	}

	switch {
	case err == nil:
		v.logger.Info("ownership verified", "token_id", tokenID, "owner", actual, "attempts", attempts)
		return nil
	case errors.Is(err, retry.ErrExhausted):
		return &OwnershipVerificationError{
			TokenID:       tokenID,
			ExpectedOwner: expectedOwner,
			ActualOwner:   actual,
			Attempts:      attempts,
			Err:           readErr,
		}
	default:
		return fmt.Errorf("verify ownership of token %d: %w", tokenID, err)
	}
}
