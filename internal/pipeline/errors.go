package pipeline

import (
	"errors"
	"fmt"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

// ErrManualResolution marks runs whose state cannot be advanced without
// risking a duplicate transaction, such as a mint that was sent but never
// confirmed.
var ErrManualResolution = errors.New("run needs manual resolution")

// StageError records which stage failed.
type StageError struct {
	Stage run.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
