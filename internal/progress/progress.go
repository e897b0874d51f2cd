// Package progress prints a periodic run summary to a terminal, plus
// immediate lines for notable scheduling events (wave launches, replay
// event dispatch), without coupling to the aggregator's completion-record
// storage.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Progress ticks once a second printing running totals, and prints
// immediate lines for wave launches and (throttled) replay event
// dispatch. Safe for concurrent use: completions, launches, and dispatch
// events may all be reported from different worker goroutines.
type Progress struct {
	startTime time.Time
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex

	total, success, failure atomic.Int64
	dispatched              atomic.Int64
}

// NewProgress builds a Progress reporter. quiet suppresses all output.
func NewProgress(quiet bool) *Progress {
	return &Progress{quiet: quiet, output: os.Stderr}
}

// SetOutput redirects output, for tests.
func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// Start begins the once-a-second ticker. A no-op in quiet mode.
func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(1 * time.Second)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	total := p.total.Load()
	failures := p.failure.Load()
	elapsed := time.Since(p.startTime).Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	rps := 0.0
	if elapsed > 0 {
		rps = float64(total) / elapsed.Seconds()
	}
	errorRate := 0.0
	if total > 0 {
		errorRate = float64(failures) / float64(total) * 100
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K[%02d:%02d] Completions: %d | RPS: %.1f | Errors: %d (%.1f%%)",
		mins, secs, total, rps, failures, errorRate)
	p.mu.Unlock()
}

// Stop halts the ticker and clears the progress line. Safe to call more
// than once.
func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

// RecordCompletion folds one journey or replay-event completion into the
// running totals the ticker prints.
func (p *Progress) RecordCompletion(success bool) {
	p.total.Add(1)
	if success {
		p.success.Add(1)
	} else {
		p.failure.Add(1)
	}
}

// WaveLaunched prints an immediate line announcing a wave launch.
func (p *Progress) WaveLaunched(wave, rps int) {
	p.Printf("wave %d launched (%d virtual users)", wave, rps)
}

// EventDispatched records a replay event dispatch, printing a throttled
// progress line every 1000 events rather than one line per event.
func (p *Progress) EventDispatched(index int) {
	n := p.dispatched.Add(1)
	if n%1000 == 0 {
		p.Printf("dispatched %d events (last index %d)", n, index)
	}
}

// Print writes a single message, clearing any in-progress ticker line
// first. A no-op in quiet mode.
func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

// Printf is Print with fmt.Sprintf-style formatting.
func (p *Progress) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
