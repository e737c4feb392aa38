// Package retry provides bounded retry policies and a cancellable sleeper.
//
// Polling stages (ownership verification, receipt waiting) take a Policy so the
// delay schedule is configuration rather than a hard-coded sleep.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned by Do when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Kind selects the delay schedule.
type Kind string

const (
	KindFixed       Kind = "fixed"
	KindExponential Kind = "exponential"
)

// Policy describes a bounded retry schedule.
type Policy struct {
	Kind        Kind
	MaxAttempts int           // total attempts, including the first one
	Delay       time.Duration // fixed delay, or the initial interval for exponential
	MaxDelay    time.Duration // cap for exponential growth
	Multiplier  float64       // exponential growth factor
	Jitter      float64       // randomization factor in [0,1) for exponential
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{Kind: KindFixed, MaxAttempts: attempts, Delay: delay}
}

// Exponential returns a jittered exponential policy.
func Exponential(attempts int, initial, max time.Duration) Policy {
	return Policy{
		Kind:        KindExponential,
		MaxAttempts: attempts,
		Delay:       initial,
		MaxDelay:    max,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.Delay < 0 {
		return fmt.Errorf("delay must be >= 0, got %s", p.Delay)
	}
	switch p.Kind {
	case KindFixed, KindExponential, "":
		return nil
	default:
		return fmt.Errorf("unknown backoff kind %q", p.Kind)
	}
}

// NewBackOff builds a fresh backoff.BackOff for one retry sequence.
// The attempt bound is enforced by Do, not by the returned value.
func (p Policy) NewBackOff() backoff.BackOff {
	if p.Kind != KindExponential {
		return backoff.NewConstantBackOff(p.Delay)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Sleeper pauses for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// RealSleeper sleeps on the wall clock.
var RealSleeper Sleeper = SleeperFunc(Sleep)

// Sleep waits for d, returning ctx.Err() if the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, the policy runs out of attempts, or ctx ends.
// fn receives the 1-based attempt number. The sleeper is only called between
// attempts, never before the first or after the last.
func Do(ctx context.Context, p Policy, s Sleeper, fn func(attempt int) error) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if s == nil {
		s = RealSleeper
	}

	b := p.NewBackOff()
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return attempt, perm.Err
		}

		if attempt == p.MaxAttempts {
			break
		}
		d := b.NextBackOff()
		if d == backoff.Stop {
			break
		}
		if err := s.Sleep(ctx, d); err != nil {
			return attempt, err
		}
	}

	return p.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}

// PermanentError stops Do without further attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
