// Package collector turns a stream of completion records into per-wave
// and global latency statistics, and renders them as text or JSON.
package collector

import "crossword-loadgen/internal/scheduler"

// StepRecord is one journey step's contribution to a wave completion
// record, per the results structure the report renderer consumes.
type StepRecord struct {
	StartTimestamp int64   `json:"start_timestamp"`
	EndTimestamp   int64   `json:"end_timestamp"`
	LatencyMs      float64 `json:"latency_ms"`
	UID            string  `json:"uid,omitempty"`
}

// IterationRecord is one of step 4's play-post iterations.
type IterationRecord struct {
	Iteration int     `json:"iteration"`
	PlayState int     `json:"play_state"`
	LatencyMs float64 `json:"latency_ms"`
}

// WaveRecord is the completion record shape for synthetic-load mode.
type WaveRecord struct {
	Wave           int               `json:"wave"`
	Thread         int               `json:"thread"`
	UID            string            `json:"uid"`
	Success        bool              `json:"success"`
	Error          string            `json:"error,omitempty"`
	TotalLatencyMs float64           `json:"total_latency_ms"`
	Steps          []StepRecord      `json:"steps"`
	Iterations     []IterationRecord `json:"iterations,omitempty"`
}

// FromWaveCompletion converts a scheduler wave completion into the
// aggregator's record shape. A worker-pool crash is reported as a failed
// record with no step detail, since the journey never finished.
func FromWaveCompletion(wc scheduler.WaveCompletion) WaveRecord {
	rec := WaveRecord{Wave: wc.Wave, Thread: wc.Thread, UID: wc.Result.UID}
	if wc.Crash != "" {
		rec.Error = wc.Crash
		return rec
	}
	rec.Success = wc.Result.Success
	rec.Error = wc.Result.Error
	rec.TotalLatencyMs = wc.Result.TotalLatencyMs()
	for _, step := range wc.Result.Steps[:3] {
		rec.Steps = append(rec.Steps, StepRecord{
			StartTimestamp: step.StartTimestamp,
			EndTimestamp:   step.EndTimestamp,
			LatencyMs:      step.LatencyMs,
			UID:            step.UID,
		})
	}
	step4 := wc.Result.Steps[3]
	rec.Steps = append(rec.Steps, StepRecord{
		StartTimestamp: step4.StartTimestamp,
		EndTimestamp:   step4.EndTimestamp,
		LatencyMs:      step4.LatencyMs,
	})
	for _, it := range step4.Iterations {
		rec.Iterations = append(rec.Iterations, IterationRecord{
			Iteration: it.Iteration, PlayState: it.PlayState, LatencyMs: it.LatencyMs,
		})
	}
	return rec
}

// ReplayRecord is the completion record shape for trace-replay mode,
// preserving the field set the original CSV row carried so an external
// renderer can consume it directly.
type ReplayRecord struct {
	Index       int    `json:"index"`
	ScheduledMs int64  `json:"scheduledMs"`
	ActualMs    int64  `json:"actualMs"`
	LatencyMs   int64  `json:"latencyMs"`
	Success     bool   `json:"success"`
	Endpoint    string `json:"endpoint"`
	UserID      string `json:"userId"`
	Error       string `json:"error,omitempty"`
}

// FromReplayCompletion converts a scheduler replay completion into the
// aggregator's record shape.
func FromReplayCompletion(rc scheduler.ReplayCompletion) ReplayRecord {
	return ReplayRecord{
		Index: rc.Index, ScheduledMs: rc.ScheduledMs, ActualMs: rc.ActualMs,
		LatencyMs: rc.LatencyMs, Success: rc.Success, Endpoint: rc.Endpoint,
		UserID: rc.UserID, Error: rc.Error,
	}
}
