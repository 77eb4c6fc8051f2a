package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// progressReporter renders one progress bar per conversion unit.
type progressReporter struct {
	mu   sync.Mutex
	w    io.Writer
	bars map[string]*progressbar.ProgressBar
	done map[string]bool
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{
		w:    w,
		bars: map[string]*progressbar.ProgressBar{},
		done: map[string]bool{},
	}
}

func (r *progressReporter) update(unit string, processed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bar, ok := r.bars[unit]
	if !ok {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(r.w),
			progressbar.OptionSetDescription(unit),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(20),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(r.w)
			}),
		)
		r.bars[unit] = bar
	}
	_ = bar.Set(processed)
	if processed >= total {
		r.done[unit] = true
	}
}

// close finishes bars of units that stopped early.
func (r *progressReporter) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for unit, bar := range r.bars {
		if !r.done[unit] {
			_ = bar.Exit()
			r.done[unit] = true
		}
	}
}
