package collector

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestStreamingAggregator_ExactCounters(t *testing.T) {
	a := NewStreamingAggregator()
	for i := 0; i < 20000; i++ {
		success := i%10 != 0
		a.Record(ReplayRecord{Index: i, Success: success, LatencyMs: 10})
	}

	snap := a.Snapshot()
	if snap.Count != 20000 {
		t.Errorf("expected exact count of 20000, got %d", snap.Count)
	}
	if snap.Success != 18000 || snap.Failure != 2000 {
		t.Errorf("expected exact success=18000 failure=2000, got success=%d failure=%d", snap.Success, snap.Failure)
	}
}

func TestStreamingAggregator_ReservoirCapsNeverExceeded(t *testing.T) {
	a := NewStreamingAggregator()
	for i := 0; i < 50000; i++ {
		a.Record(ReplayRecord{Index: i, Success: true, LatencyMs: int64(i % 100)})
	}

	if len(a.rawSamples) > streamingRawSampleCap {
		t.Errorf("expected raw samples never to exceed %d, got %d", streamingRawSampleCap, len(a.rawSamples))
	}
	snap := a.Snapshot()
	if len(snap.SampledRecords) > streamingRecordCap {
		t.Errorf("expected sampled records never to exceed %d, got %d", streamingRecordCap, len(snap.SampledRecords))
	}
}

func TestStreamingAggregator_ReservoirFillsBeforeCapReached(t *testing.T) {
	a := NewStreamingAggregator()
	for i := 0; i < 100; i++ {
		a.Record(ReplayRecord{Index: i, Success: true, LatencyMs: 5})
	}
	snap := a.Snapshot()
	if len(snap.SampledRecords) != 100 {
		t.Errorf("expected all 100 records retained below the cap, got %d", len(snap.SampledRecords))
	}
}

func TestStreamingAggregator_PercentilesAreOrdered(t *testing.T) {
	a := NewStreamingAggregator()
	for i := 1; i <= 1000; i++ {
		a.Record(ReplayRecord{Index: i, Success: true, LatencyMs: int64(i)})
	}

	snap := a.Snapshot()
	if !(snap.P50 <= snap.P90 && snap.P90 <= snap.P95 && snap.P95 <= snap.P99) {
		t.Errorf("expected ordered percentiles, got p50=%v p90=%v p95=%v p99=%v", snap.P50, snap.P90, snap.P95, snap.P99)
	}
	if snap.P50 < 400*time.Millisecond || snap.P50 > 600*time.Millisecond {
		t.Errorf("expected p50 roughly near the 500ms midpoint of a 1..1000ms uniform distribution, got %v", snap.P50)
	}
}

func TestStreamingAggregator_ThreadSafety(t *testing.T) {
	a := NewStreamingAggregator()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			a.Record(ReplayRecord{Index: idx, Success: true, LatencyMs: 1})
		}(i)
	}
	wg.Wait()

	if snap := a.Snapshot(); snap.Count != 100 {
		t.Errorf("expected all 100 concurrent records counted, got %d", snap.Count)
	}
}

func TestComputeStreamingResults_SuccessRateAndSampleNote(t *testing.T) {
	a := NewStreamingAggregator()
	for i := 0; i < 10; i++ {
		a.Record(ReplayRecord{Index: i, Success: i%2 == 0, LatencyMs: 15})
	}

	results := ComputeStreamingResults("streaming smoke", a.Snapshot(), 500, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if results.Overall.Total != 10 || results.Overall.Success != 5 || results.Overall.Failure != 5 {
		t.Errorf("expected total=10 success=5 failure=5, got %+v", results.Overall)
	}
	if results.Overall.SuccessRate != 50 {
		t.Errorf("expected success rate 50, got %v", results.Overall.SuccessRate)
	}
	if !strings.Contains(results.SampleNote, "10") {
		t.Errorf("expected sample note to mention the sample size, got %q", results.SampleNote)
	}
}

func TestFormatStreamingText_EmptyResultsPrintsPlaceholder(t *testing.T) {
	var buf bytes.Buffer
	FormatStreamingText(&buf, &StreamingResults{}, nil)
	if !strings.Contains(buf.String(), "No completions collected") {
		t.Errorf("expected empty-results placeholder, got %q", buf.String())
	}
}

func TestFormatStreamingText_IncludesApproximateLatencyBlock(t *testing.T) {
	a := NewStreamingAggregator()
	a.Record(ReplayRecord{Index: 0, Success: true, LatencyMs: 25})
	results := ComputeStreamingResults("streaming smoke", a.Snapshot(), 100, time.Now())

	var buf bytes.Buffer
	FormatStreamingText(&buf, results, nil)
	out := buf.String()
	if !strings.Contains(out, "streaming smoke") || !strings.Contains(out, "approximate") {
		t.Errorf("expected title and approximate-latency caveat in output, got %q", out)
	}
}

func TestFormatStreamingJSON_FlattensToTopLevel(t *testing.T) {
	a := NewStreamingAggregator()
	a.Record(ReplayRecord{Index: 0, Success: true, LatencyMs: 25})
	results := ComputeStreamingResults("streaming smoke", a.Snapshot(), 100, time.Now())

	var buf bytes.Buffer
	FormatStreamingJSON(&buf, results, nil)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v", err)
	}
	if _, ok := decoded["title"]; !ok {
		t.Errorf("expected top-level 'title' field")
	}
	if _, ok := decoded["sample_note"]; !ok {
		t.Errorf("expected top-level 'sample_note' field")
	}
}
