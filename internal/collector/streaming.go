package collector

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// StreamingAggregator aggregates a replay run too large to hold in memory:
// exact running counters, an HdrHistogram for approximate latency
// percentiles, and a reservoir-sampled subset of per-event records for
// detail. Aggregate counters are exact; per-event detail is approximate.
type StreamingAggregator struct {
	mu sync.Mutex

	count, success, failure int
	sum                     time.Duration
	hist                    *hdrhistogram.Histogram

	rawSamples []time.Duration // capped at 10000, reservoir-sampled beyond
	rawSeen    int

	sampledRecords []ReplayRecord // capped at 500, reservoir-sampled beyond
	recordsSeen    int

	rng *rand.Rand
}

const (
	streamingRawSampleCap = 10000
	streamingRecordCap    = 500
)

// NewStreamingAggregator builds an aggregator with a 1µs-10min, 3
// significant-figure histogram, matching the precision the classic
// aggregator's exact sort would otherwise provide at unaffordable memory
// cost for very large traces.
func NewStreamingAggregator() *StreamingAggregator {
	return &StreamingAggregator{
		hist: hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Record folds one replay completion into the running aggregate.
func (a *StreamingAggregator) Record(rec ReplayRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	if rec.Success {
		a.success++
	} else {
		a.failure++
	}

	d := time.Duration(rec.LatencyMs) * time.Millisecond
	a.sum += d
	_ = a.hist.RecordValue(d.Microseconds())

	a.rawSeen++
	if len(a.rawSamples) < streamingRawSampleCap {
		a.rawSamples = append(a.rawSamples, d)
	} else if j := a.rng.Intn(a.rawSeen); j < streamingRawSampleCap {
		a.rawSamples[j] = d
	}

	a.recordsSeen++
	if len(a.sampledRecords) < streamingRecordCap {
		a.sampledRecords = append(a.sampledRecords, rec)
	} else if j := a.rng.Intn(a.recordsSeen); j < streamingRecordCap {
		a.sampledRecords[j] = rec
	}
}

// StreamingSnapshot is a point-in-time read of a StreamingAggregator's
// state.
type StreamingSnapshot struct {
	Count, Success, Failure int
	Mean                    time.Duration
	P50, P90, P95, P99      time.Duration
	SampledRecords          []ReplayRecord
}

// Snapshot reads the aggregator's current state without resetting it.
func (a *StreamingAggregator) Snapshot() StreamingSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	var mean time.Duration
	if a.count > 0 {
		mean = a.sum / time.Duration(a.count)
	}
	return StreamingSnapshot{
		Count: a.count, Success: a.success, Failure: a.failure, Mean: mean,
		P50: time.Duration(a.hist.ValueAtQuantile(50)) * time.Microsecond,
		P90: time.Duration(a.hist.ValueAtQuantile(90)) * time.Microsecond,
		P95: time.Duration(a.hist.ValueAtQuantile(95)) * time.Microsecond,
		P99: time.Duration(a.hist.ValueAtQuantile(99)) * time.Microsecond,
		SampledRecords: append([]ReplayRecord(nil), a.sampledRecords...),
	}
}

// StreamingResults is the results tree for a streaming replay run. It has
// the same shape as ReplayResults, except Results holds only a
// reservoir-sampled subset of events rather than every one, and Overall's
// Min/Max/StdDev are left zero since the histogram backing it tracks
// quantiles, not extremes.
type StreamingResults struct {
	Title       string            `json:"title"`
	Timestamp   string            `json:"timestamp"`
	Overall     ReplayOverallStat `json:"overall"`
	Results     []ReplayRecord    `json:"results"`
	SampleNote  string            `json:"sample_note"`
	TotalTimeMs float64           `json:"total_time_ms"`
}

// ComputeStreamingResults builds the finalized results tree from a
// streaming aggregator's snapshot.
func ComputeStreamingResults(title string, snap StreamingSnapshot, totalTimeMs float64, timestamp time.Time) *StreamingResults {
	var successRate float64
	if snap.Count > 0 {
		successRate = float64(snap.Success) / float64(snap.Count) * 100
	}
	return &StreamingResults{
		Title:     title,
		Timestamp: timestamp.Format(time.RFC3339),
		Overall: ReplayOverallStat{
			Total: snap.Count, Success: snap.Success, Failure: snap.Failure, SuccessRate: successRate,
			Latency: DurationMetrics{Mean: snap.Mean, P50: snap.P50, P90: snap.P90, P95: snap.P95, P99: snap.P99},
		},
		Results:     snap.SampledRecords,
		SampleNote:  fmt.Sprintf("showing %d reservoir-sampled events out of %d total", len(snap.SampledRecords), snap.Count),
		TotalTimeMs: totalTimeMs,
	}
}
