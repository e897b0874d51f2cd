package collector

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Thresholds defines pass/fail criteria for a run, checked against
// whichever overall latency distribution and success rate the run
// produced.
type Thresholds struct {
	Latency     *DurationThresholds `yaml:"latency"`
	FailureRate *FailureThresholds  `yaml:"failure_rate"`
}

// DurationThresholds defines latency limits, one per statistic.
type DurationThresholds struct {
	Avg time.Duration `yaml:"avg"`
	P50 time.Duration `yaml:"p50"`
	P90 time.Duration `yaml:"p90"`
	P95 time.Duration `yaml:"p95"`
	P99 time.Duration `yaml:"p99"`
}

// FailureThresholds defines an error-rate limit, expressed as a
// percentage string like "1%".
type FailureThresholds struct {
	Rate string `yaml:"rate"`
}

// ThresholdResult is the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults holds every threshold check's outcome for a run.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// CheckWave evaluates thresholds against a wave run's overall statistics.
func (t *Thresholds) CheckWave(o OverallStat) *ThresholdResults {
	return t.check(o.Latency, o.SuccessRate)
}

// CheckReplay evaluates thresholds against a replay run's overall
// statistics.
func (t *Thresholds) CheckReplay(o ReplayOverallStat) *ThresholdResults {
	return t.check(o.Latency, o.SuccessRate)
}

func (t *Thresholds) check(latency DurationMetrics, successRate float64) *ThresholdResults {
	if t == nil {
		return &ThresholdResults{Passed: true}
	}

	results := &ThresholdResults{Passed: true}

	if t.Latency != nil {
		results.checkDurationThresholds(t.Latency, latency)
	}
	if t.FailureRate != nil && t.FailureRate.Rate != "" {
		results.checkFailureRate(t.FailureRate, successRate)
	}
	return results
}

func (r *ThresholdResults) checkDurationThresholds(thresholds *DurationThresholds, actual DurationMetrics) {
	checks := []struct {
		name      string
		threshold time.Duration
		actual    time.Duration
	}{
		{"latency.avg", thresholds.Avg, actual.Mean},
		{"latency.p50", thresholds.P50, actual.P50},
		{"latency.p90", thresholds.P90, actual.P90},
		{"latency.p95", thresholds.P95, actual.P95},
		{"latency.p99", thresholds.P99, actual.P99},
	}

	for _, check := range checks {
		if check.threshold == 0 {
			continue
		}
		passed := check.actual < check.threshold
		if !passed {
			r.Passed = false
		}
		r.Results = append(r.Results, ThresholdResult{
			Name: check.name, Passed: passed,
			Threshold: FormatDuration(check.threshold), Actual: FormatDuration(check.actual),
		})
	}
}

func (r *ThresholdResults) checkFailureRate(thresholds *FailureThresholds, successRate float64) {
	thresholdRate, err := parsePercentage(thresholds.Rate)
	if err != nil {
		return
	}
	actualRate := 100.0 - successRate
	passed := actualRate < thresholdRate
	if !passed {
		r.Passed = false
	}
	r.Results = append(r.Results, ThresholdResult{
		Name: "failure_rate.rate", Passed: passed,
		Threshold: thresholds.Rate, Actual: fmt.Sprintf("%.2f%%", actualRate),
	})
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	return strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
}

// FormatDuration formats a duration for display, scaling units to keep the
// output short.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	violations := make([]ThresholdResult, 0)
	for _, result := range r.Results {
		if !result.Passed {
			violations = append(violations, result)
		}
	}
	return violations
}
