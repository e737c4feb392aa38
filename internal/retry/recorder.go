package retry

import (
	"context"
	"sync"
	"time"
)

// Recorder is a Sleeper that never blocks and records every requested delay.
// It stands in for the wall clock in tests and dry runs.
type Recorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

// Sleep records d and returns immediately unless ctx is already done.
func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return nil
}

// Sleeps returns a copy of the recorded delays.
func (r *Recorder) Sleeps() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.sleeps))
	copy(out, r.sleeps)
	return out
}

// Total returns the summed recorded delay.
func (r *Recorder) Total() time.Duration {
	var total time.Duration
	for _, d := range r.Sleeps() {
		total += d
	}
	return total
}
