package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrSequencerClosed is returned by a NonceSequencer after Close.
var ErrSequencerClosed = errors.New("nonce sequencer closed")

// NonceSource reads the next nonce the network expects.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

type nonceRequest struct {
	ctx   context.Context
	reset bool
	reply chan nonceReply
}

type nonceReply struct {
	nonce uint64
	err   error
}

// NonceSequencer hands out strictly increasing nonces for one account. A single
// goroutine owns the counter; callers talk to it over a channel.
type NonceSequencer struct {
	source  NonceSource
	account common.Address

	requests chan nonceRequest
	done     chan struct{}
	once     sync.Once
}

// NewNonceSequencer starts the sequencer goroutine. The first Next reads the
// pending nonce from source.
func NewNonceSequencer(source NonceSource, account common.Address) *NonceSequencer {
	s := &NonceSequencer{
		source:   source,
		account:  account,
		requests: make(chan nonceRequest),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *NonceSequencer) loop() {
	var (
		next  uint64
		known bool
	)
	for {
		select {
		case <-s.done:
			return
		case req := <-s.requests:
			if req.reset {
				known = false
				req.reply <- nonceReply{}
				continue
			}
			if !known {
				n, err := s.source.PendingNonceAt(req.ctx, s.account)
				if err != nil {
					req.reply <- nonceReply{err: fmt.Errorf("read pending nonce: %w", err)}
					continue
				}
				next, known = n, true
			}
			req.reply <- nonceReply{nonce: next}
			next++
		}
	}
}

func (s *NonceSequencer) do(ctx context.Context, reset bool) (uint64, error) {
	select {
	case <-s.done:
		return 0, ErrSequencerClosed
	default:
	}

	req := nonceRequest{ctx: ctx, reset: reset, reply: make(chan nonceReply, 1)}
	select {
	case <-s.done:
		return 0, ErrSequencerClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	case s.requests <- req:
	}
	select {
	case <-s.done:
		return 0, ErrSequencerClosed
	case r := <-req.reply:
		return r.nonce, r.err
	}
}

// Next returns the nonce for the next transaction.
func (s *NonceSequencer) Next(ctx context.Context) (uint64, error) {
	return s.do(ctx, false)
}

// Reset forgets the local counter so the next call re-reads the pending nonce.
// Call it after a send fails, since the reserved nonce was never used.
func (s *NonceSequencer) Reset(ctx context.Context) error {
	_, err := s.do(ctx, true)
	return err
}

// Close stops the sequencer goroutine. It is safe to call more than once.
func (s *NonceSequencer) Close() {
	s.once.Do(func() { close(s.done) })
}
