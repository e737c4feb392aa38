package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/run"
)

// progress renders stage updates as a single bar with one step per stage.
type progress struct {
	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	done map[int]int // stages finished per asset
}

func newProgress(w io.Writer, assets int) *progress {
	bar := progressbar.NewOptions(assets*len(run.Stages),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
	return &progress{bar: bar, done: make(map[int]int)}
}

func (p *progress) update(idx int, stage run.Stage, status run.StageStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.bar.Describe(fmt.Sprintf("asset %d: %s %s", idx+1, stage, status))
	switch status {
	case run.StatusSuccess, run.StatusSkipped:
		p.done[idx]++
		_ = p.bar.Add(1)
	}
}

// finish completes the bar and ends the line.
func (p *progress) finish(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
	fmt.Fprintln(w)
}

func (p *progress) finished(idx int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done[idx]
}
