package scheduler

import (
	"bufio"
	"context"
	"io"
	"time"

	"crossword-loadgen/internal/core"
)

// StreamingReplayConfig controls a trace replay run whose events are read
// line by line rather than buffered into a []TraceEvent up front.
type StreamingReplayConfig struct {
	Speed           float64
	PoolSizeFactor  int
	PoolSizeCeiling int
}

func (c *StreamingReplayConfig) applyDefaults() {
	if c.Speed <= 0 {
		c.Speed = 1
	}
	if c.PoolSizeFactor <= 0 {
		// The original pre-scan uses a larger multiplier here than the
		// batch replay source since it must size the pool without ever
		// holding the full event list to sanity-check against.
		c.PoolSizeFactor = 10
	}
	if c.PoolSizeCeiling <= 0 {
		c.PoolSizeCeiling = 500
	}
}

// StreamingReplayRunner replays traces too large to buffer in memory.
type StreamingReplayRunner struct {
	cfg        StreamingReplayConfig
	dispatcher *ReplayDispatcher
	clock      core.Clock
	emit       func(ReplayCompletion)
}

func NewStreamingReplayRunner(cfg StreamingReplayConfig, dispatcher *ReplayDispatcher, clock core.Clock, emit func(ReplayCompletion)) *StreamingReplayRunner {
	cfg.applyDefaults()
	if clock == nil {
		clock = core.RealClock{}
	}
	return &StreamingReplayRunner{cfg: cfg, dispatcher: dispatcher, clock: clock, emit: emit}
}

// PreScan reads a trace once end to end, bucketing scaled dispatch times
// into 100ms windows, and returns the worker pool size the busiest window
// implies. Callers reopen the trace for the actual Run pass.
func (r *StreamingReplayRunner) PreScan(reader io.Reader) (int, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	buckets := map[int64]int{}
	var cumulative int64
	index := 0
	for scanner.Scan() {
		ev, ok := parseTraceLine(scanner.Bytes(), index)
		if !ok {
			continue
		}
		cumulative += ev.DelayMs
		scaledMs := int64(float64(cumulative) / r.cfg.Speed)
		buckets[scaledMs/100]++
		index++
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return computePoolSize(buckets, r.cfg.PoolSizeFactor, r.cfg.PoolSizeCeiling), nil
}

// Run streams events from reader, scheduling each as it is parsed. Because
// inter-event delays are cumulative and non-decreasing, dispatch order is
// preserved without needing to see the whole trace up front. poolSize
// should come from a prior PreScan pass over the same trace.
func (r *StreamingReplayRunner) Run(ctx context.Context, reader io.Reader, poolSize int) bool {
	pool := NewWorkerPool(poolSize)
	latch := &CompletionLatch{}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	start := r.clock.Now()
	var cumulativeDelayMs int64
	var lastScaledMs int64
	index := 0

	for scanner.Scan() {
		ev, ok := parseTraceLine(scanner.Bytes(), index)
		if !ok {
			continue
		}
		index++

		cumulativeDelayMs += ev.DelayMs
		scaledMs := int64(float64(cumulativeDelayMs) / r.cfg.Speed)
		lastScaledMs = scaledMs

		if !sleepUntil(ctx, r.clock, start, scaledMs) {
			pool.Close()
			return false
		}

		latch.Add(1)
		dispatchTraceEvent(ctx, pool, latch, r.dispatcher, r.clock, r.emit, ev, scaledMs, start)
	}
	if err := scanner.Err(); err != nil {
		r.emit(ReplayCompletion{Index: index, Error: err.Error()})
	}

	const safetyMargin = 2 * time.Minute
	expected := time.Duration(lastScaledMs)*time.Millisecond + safetyMargin
	completed := latch.Await(expected)
	pool.Close()
	return completed
}
