package collector

import (
	"testing"
	"time"
)

func TestThresholds_NilShortCircuitsToPassed(t *testing.T) {
	var thresholds *Thresholds
	result := thresholds.CheckWave(OverallStat{})
	if !result.Passed {
		t.Error("expected a nil Thresholds to always pass")
	}
	if len(result.Results) != 0 {
		t.Errorf("expected no results for a nil Thresholds, got %d", len(result.Results))
	}
}

func TestThresholds_LatencyPass(t *testing.T) {
	thresholds := &Thresholds{Latency: &DurationThresholds{P95: 200 * time.Millisecond}}
	overall := OverallStat{Latency: DurationMetrics{P95: 100 * time.Millisecond}}

	result := thresholds.CheckWave(overall)
	if !result.Passed {
		t.Errorf("expected latency check to pass, got %+v", result)
	}
	if len(result.Results) != 1 || result.Results[0].Name != "latency.p95" {
		t.Errorf("expected a single latency.p95 result, got %+v", result.Results)
	}
}

func TestThresholds_LatencyFail(t *testing.T) {
	thresholds := &Thresholds{Latency: &DurationThresholds{P95: 50 * time.Millisecond}}
	overall := OverallStat{Latency: DurationMetrics{P95: 100 * time.Millisecond}}

	result := thresholds.CheckWave(overall)
	if result.Passed {
		t.Error("expected latency check to fail")
	}
	if len(result.Violations()) != 1 {
		t.Errorf("expected 1 violation, got %d", len(result.Violations()))
	}
}

func TestThresholds_ZeroThresholdSkipsCheck(t *testing.T) {
	thresholds := &Thresholds{Latency: &DurationThresholds{P50: 100 * time.Millisecond}}
	overall := OverallStat{Latency: DurationMetrics{P95: 99999 * time.Millisecond}}

	result := thresholds.CheckWave(overall)
	if !result.Passed {
		t.Errorf("expected unset (zero) thresholds to be skipped, got %+v", result)
	}
	if len(result.Results) != 1 {
		t.Errorf("expected only the p50 check to run, got %d results", len(result.Results))
	}
}

func TestThresholds_FailureRatePass(t *testing.T) {
	thresholds := &Thresholds{FailureRate: &FailureThresholds{Rate: "5%"}}
	overall := OverallStat{SuccessRate: 99.0}

	result := thresholds.CheckWave(overall)
	if !result.Passed {
		t.Errorf("expected failure rate check to pass, got %+v", result)
	}
}

func TestThresholds_FailureRateFail(t *testing.T) {
	thresholds := &Thresholds{FailureRate: &FailureThresholds{Rate: "1%"}}
	overall := OverallStat{SuccessRate: 90.0}

	result := thresholds.CheckWave(overall)
	if result.Passed {
		t.Error("expected failure rate check to fail at 10% actual failure vs 1% threshold")
	}
}

func TestThresholds_MalformedRateIsIgnored(t *testing.T) {
	thresholds := &Thresholds{FailureRate: &FailureThresholds{Rate: "not-a-percentage"}}
	overall := OverallStat{SuccessRate: 0.0}

	result := thresholds.CheckWave(overall)
	if !result.Passed || len(result.Results) != 0 {
		t.Errorf("expected a malformed rate to be silently skipped, got %+v", result)
	}
}

func TestThresholds_CheckReplayUsesReplayOverallStat(t *testing.T) {
	thresholds := &Thresholds{Latency: &DurationThresholds{Avg: 10 * time.Millisecond}}
	overall := ReplayOverallStat{Latency: DurationMetrics{Mean: 20 * time.Millisecond}}

	result := thresholds.CheckReplay(overall)
	if result.Passed {
		t.Error("expected replay latency check to fail")
	}
}

func TestFormatDuration_ScalesUnits(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Microsecond, "500µs"},
		{45 * time.Millisecond, "45ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.d); got != c.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestParsePercentage_RejectsMissingSuffix(t *testing.T) {
	if _, err := parsePercentage("50"); err == nil {
		t.Error("expected an error for a percentage string without a % suffix")
	}
}

func TestParsePercentage_ParsesValidInput(t *testing.T) {
	v, err := parsePercentage("2.5%")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 2.5 {
		t.Errorf("expected 2.5, got %v", v)
	}
}
