package scheduler

import "crossword-loadgen/internal/journey"

// WaveCompletion is the unit a wave run hands off to the aggregator: one
// journey invocation's outcome plus the wave/thread coordinates it was
// launched under.
type WaveCompletion struct {
	Wave                  int
	Thread                int
	LaunchWallClockMs     int64
	CompletionWallClockMs int64
	Result                journey.Result
	Crash                 string
}

// ReplayCompletion is the unit a replay run hands off to the aggregator,
// shaped so an external CSV/HTML renderer can consume it directly:
// index, scheduledMs, actualMs, latencyMs, success, endpoint, userId, error.
type ReplayCompletion struct {
	Index       int
	ScheduledMs int64
	ActualMs    int64
	LatencyMs   int64
	Success     bool
	Endpoint    string
	UserID      string
	Error       string
}
