package collector

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func sampleWaveResults() *WaveResults {
	records := []WaveRecord{waveRecord(1, 0, true, 50), waveRecord(1, 1, false, 0)}
	cfg := Config{RPS: 5, Duration: 1, PuzzleID: "d4725144"}
	return ComputeWaveResults("smoke test", cfg, records, 1200, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func sampleReplayResults() *ReplayResults {
	records := []ReplayRecord{{Index: 0, Success: true, LatencyMs: 20}, {Index: 1, Success: false, Error: "timeout"}}
	return ComputeReplayResults("replay smoke", records, 900, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestFormatWaveText_EmptyResultsPrintsPlaceholder(t *testing.T) {
	var buf bytes.Buffer
	FormatWaveText(&buf, &WaveResults{}, nil)
	if !strings.Contains(buf.String(), "No completions collected") {
		t.Errorf("expected empty-results placeholder, got %q", buf.String())
	}
}

func TestFormatWaveText_IncludesTitleAndSuccessRate(t *testing.T) {
	var buf bytes.Buffer
	FormatWaveText(&buf, sampleWaveResults(), nil)
	out := buf.String()
	if !strings.Contains(out, "smoke test") {
		t.Errorf("expected title in output, got %q", out)
	}
	if !strings.Contains(out, "Success Rate:") {
		t.Errorf("expected success rate line, got %q", out)
	}
}

func TestFormatWaveText_RendersThresholdsWhenPresent(t *testing.T) {
	var buf bytes.Buffer
	thresholds := &ThresholdResults{Passed: false, Results: []ThresholdResult{
		{Name: "latency.p95", Passed: false, Threshold: "50ms", Actual: "100ms"},
	}}
	FormatWaveText(&buf, sampleWaveResults(), thresholds)
	if !strings.Contains(buf.String(), "latency.p95") {
		t.Errorf("expected threshold line in output, got %q", buf.String())
	}
}

func TestFormatWaveText_OmitsThresholdsSectionWhenNil(t *testing.T) {
	var buf bytes.Buffer
	FormatWaveText(&buf, sampleWaveResults(), nil)
	if strings.Contains(buf.String(), "Thresholds:") {
		t.Error("expected no thresholds section when none were checked")
	}
}

func TestFormatWaveJSON_FlattensResultsAndThresholds(t *testing.T) {
	var buf bytes.Buffer
	thresholds := &ThresholdResults{Passed: true}
	FormatWaveJSON(&buf, sampleWaveResults(), thresholds)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v", err)
	}
	if _, ok := decoded["title"]; !ok {
		t.Errorf("expected top-level 'title' field from flattened WaveResults, got keys %v", keys(decoded))
	}
	if _, ok := decoded["thresholds"]; !ok {
		t.Errorf("expected top-level 'thresholds' field, got keys %v", keys(decoded))
	}
}

func TestFormatWaveJSON_OmitsThresholdsWhenNil(t *testing.T) {
	var buf bytes.Buffer
	FormatWaveJSON(&buf, sampleWaveResults(), nil)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v", err)
	}
	if _, ok := decoded["thresholds"]; ok {
		t.Error("expected 'thresholds' to be omitted when nil")
	}
}

func TestFormatReplayText_EmptyResultsPrintsPlaceholder(t *testing.T) {
	var buf bytes.Buffer
	FormatReplayText(&buf, &ReplayResults{}, nil)
	if !strings.Contains(buf.String(), "No completions collected") {
		t.Errorf("expected empty-results placeholder, got %q", buf.String())
	}
}

func TestFormatReplayJSON_FlattensToTopLevel(t *testing.T) {
	var buf bytes.Buffer
	FormatReplayJSON(&buf, sampleReplayResults(), nil)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v", err)
	}
	if _, ok := decoded["title"]; !ok {
		t.Errorf("expected top-level 'title' field, got keys %v", keys(decoded))
	}
}

func keys(m map[string]any) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}
