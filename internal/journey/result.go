// Package journey implements the scripted four-step user journey against
// the crossword target: load the date picker, post picker status, load
// the puzzle, and post ten plays simulating progress through it.
package journey

// StepResult is the outcome of one journey step.
type StepResult struct {
	StartTimestamp int64 // unix millis
	EndTimestamp   int64
	LatencyMs      float64
	Success        bool
	Error          string
	UID            string      // set on step 1, the acting user
	CDNResults     []CDNResult // set on steps 1/3 in the with-static-assets variant
	Iterations     []IterationResult
}

// IterationResult is one of step 4's ten play-post iterations.
type IterationResult struct {
	Iteration int
	PlayState int
	LatencyMs float64
}

// CDNResult is the outcome of one static-asset fetch layered onto steps 1
// and 3 by the with-static-assets variant. Static-asset failures are
// recorded here but never fail the journey.
type CDNResult struct {
	URL        string
	StatusCode int
	LatencyMs  float64
	Success    bool
	Error      string
}

// Result aggregates the four step results plus an overall outcome. A
// journey succeeds iff every step succeeds; on failure, Steps beyond the
// failing one are left zero-valued.
type Result struct {
	UID     string
	Steps   [4]StepResult
	Success bool
	Error   string
}

// TotalLatencyMs sums step 1-3 latency plus every step-4 iteration's
// latency, matching the aggregator's definition of a journey's total
// latency.
func (r Result) TotalLatencyMs() float64 {
	total := r.Steps[0].LatencyMs + r.Steps[1].LatencyMs + r.Steps[2].LatencyMs
	for _, it := range r.Steps[3].Iterations {
		total += it.LatencyMs
	}
	return total
}
