package scheduler

import (
	"context"
	"fmt"
	"time"

	"crossword-loadgen/internal/core"
	"crossword-loadgen/internal/journey"
)

// WaveConfig is the synthetic-load shape: RPS virtual users launched every
// second for Duration seconds, all sharing one worker pool.
type WaveConfig struct {
	RPS      int
	Duration int
}

// WaveRunner is the timer wheel for wave mode: a single goroutine that
// never blocks on network I/O, only on the wall clock between wave
// launches, handing each wave's journeys off to a worker pool immediately.
type WaveRunner struct {
	cfg      WaveConfig
	journey  *journey.Journey
	users    *core.UserSource
	clock    core.Clock
	onLaunch func(wave int)
	emit     func(WaveCompletion)
}

func NewWaveRunner(cfg WaveConfig, j *journey.Journey, users *core.UserSource, clock core.Clock, emit func(WaveCompletion)) *WaveRunner {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &WaveRunner{cfg: cfg, journey: j, users: users, clock: clock, emit: emit}
}

// OnLaunch registers a callback invoked with the wave number each time a
// wave is launched, for progress reporting.
func (r *WaveRunner) OnLaunch(fn func(wave int)) { r.onLaunch = fn }

// Run launches every wave in order, sleeping until each wave's absolute
// fire time regardless of how long prior waves take to complete, then
// blocks until all dispatched journeys finish or the safety margin
// elapses. It reports whether every journey completed in time.
func (r *WaveRunner) Run(ctx context.Context) bool {
	poolSize := r.cfg.RPS * 8
	if poolSize < 8 {
		poolSize = 8
	}
	pool := NewWorkerPool(poolSize)
	latch := &CompletionLatch{}

	overallStart := r.clock.Now()

	for wave := 1; wave <= r.cfg.Duration; wave++ {
		target := overallStart.Add(time.Duration(wave-1) * time.Second)
		if d := target.Sub(r.clock.Now()); d > 0 {
			select {
			case <-ctx.Done():
				pool.Close()
				return false
			case <-time.After(d):
			}
		}
		if ctx.Err() != nil {
			pool.Close()
			return false
		}
		r.launchWave(ctx, wave, pool, latch)
	}

	const safetyMargin = 2 * time.Minute
	expected := time.Duration(r.cfg.Duration)*time.Second + safetyMargin
	completed := latch.Await(expected)
	pool.Close()
	return completed
}

func (r *WaveRunner) launchWave(ctx context.Context, wave int, pool *WorkerPool, latch *CompletionLatch) {
	if r.onLaunch != nil {
		r.onLaunch(wave)
	}
	launchMs := r.clock.Now().UnixMilli()

	for thread := 0; thread < r.cfg.RPS; thread++ {
		thread := thread
		uid := r.users.Next()
		latch.Add(1)

		pool.Submit(func() {
			defer latch.Done()
			result := r.journey.Run(ctx, uid, thread)
			r.emit(WaveCompletion{
				Wave:                  wave,
				Thread:                thread,
				LaunchWallClockMs:     launchMs,
				CompletionWallClockMs: r.clock.Now().UnixMilli(),
				Result:                result,
			})
		}, func(recovered any) {
			r.emit(WaveCompletion{
				Wave:                  wave,
				Thread:                thread,
				LaunchWallClockMs:     launchMs,
				CompletionWallClockMs: r.clock.Now().UnixMilli(),
				Crash:                 fmt.Sprintf("panic: %v", recovered),
			})
		})
	}
}
