package collector

import (
	"encoding/json"
	"fmt"
	"io"
)

// FormatWaveText writes a wave run's results in human-readable form.
func FormatWaveText(w io.Writer, r *WaveResults, thresholds *ThresholdResults) {
	if len(r.Results) == 0 {
		fmt.Fprintln(w, "No completions collected")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%s\n", r.Title)
	fmt.Fprintln(w, "==============================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:       %.0fms\n", r.TotalTimeMs)
	fmt.Fprintf(w, "Total Threads:  %s\n", formatNumber(r.Overall.TotalThreads))
	fmt.Fprintf(w, "Success Rate:   %.1f%% (%s / %s)\n",
		r.Overall.SuccessRate, formatNumber(r.Overall.Success), formatNumber(r.Overall.TotalThreads))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Total Latency:")
	printDurationMetrics(w, r.Overall.Latency)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Wave:")
	for _, ws := range r.Waves {
		fmt.Fprintf(w, "  wave %-4d threads=%-4d success=%-4d failure=%-4d p95=%s outliers=%d\n",
			ws.Wave, ws.Threads, ws.Success, ws.Failure, FormatDuration(ws.Latency.P95), ws.Outliers)
	}

	printThresholds(w, thresholds)
}

// FormatWaveJSON writes a wave run's results as indented JSON.
func FormatWaveJSON(w io.Writer, r *WaveResults, thresholds *ThresholdResults) {
	output := struct {
		*WaveResults
		Thresholds *ThresholdResults `json:"thresholds,omitempty"`
	}{WaveResults: r, Thresholds: thresholds}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output) // stdout errors are unrecoverable
}

// FormatReplayText writes a replay run's results in human-readable form.
func FormatReplayText(w io.Writer, r *ReplayResults, thresholds *ThresholdResults) {
	if len(r.Results) == 0 {
		fmt.Fprintln(w, "No completions collected")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%s\n", r.Title)
	fmt.Fprintln(w, "==============================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:       %.0fms\n", r.TotalTimeMs)
	fmt.Fprintf(w, "Total Events:   %s\n", formatNumber(r.Overall.Total))
	fmt.Fprintf(w, "Success Rate:   %.1f%% (%s / %s)\n",
		r.Overall.SuccessRate, formatNumber(r.Overall.Success), formatNumber(r.Overall.Total))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Latency:")
	printDurationMetrics(w, r.Overall.Latency)

	printThresholds(w, thresholds)
}

// FormatReplayJSON writes a replay run's results as indented JSON.
func FormatReplayJSON(w io.Writer, r *ReplayResults, thresholds *ThresholdResults) {
	output := struct {
		*ReplayResults
		Thresholds *ThresholdResults `json:"thresholds,omitempty"`
	}{ReplayResults: r, Thresholds: thresholds}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output)
}

// FormatStreamingText writes a streaming replay run's results in
// human-readable form. Latency percentiles are histogram-approximate
// rather than exact, and Min/Max/StdDev are omitted since the aggregator
// behind it never held every latency at once.
func FormatStreamingText(w io.Writer, r *StreamingResults, thresholds *ThresholdResults) {
	if r.Overall.Total == 0 {
		fmt.Fprintln(w, "No completions collected")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%s\n", r.Title)
	fmt.Fprintln(w, "==============================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:       %.0fms\n", r.TotalTimeMs)
	fmt.Fprintf(w, "Total Events:   %s\n", formatNumber(r.Overall.Total))
	fmt.Fprintf(w, "Success Rate:   %.1f%% (%s / %s)\n",
		r.Overall.SuccessRate, formatNumber(r.Overall.Success), formatNumber(r.Overall.Total))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Latency (approximate, histogram-backed):")
	fmt.Fprintf(w, "  Mean:   %s\n", FormatDuration(r.Overall.Latency.Mean))
	fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(r.Overall.Latency.P50))
	fmt.Fprintf(w, "  P90:    %s\n", FormatDuration(r.Overall.Latency.P90))
	fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(r.Overall.Latency.P95))
	fmt.Fprintf(w, "  P99:    %s\n", FormatDuration(r.Overall.Latency.P99))
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%s\n", r.SampleNote)

	printThresholds(w, thresholds)
}

// FormatStreamingJSON writes a streaming replay run's results as indented
// JSON.
func FormatStreamingJSON(w io.Writer, r *StreamingResults, thresholds *ThresholdResults) {
	output := struct {
		*StreamingResults
		Thresholds *ThresholdResults `json:"thresholds,omitempty"`
	}{StreamingResults: r, Thresholds: thresholds}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output)
}

func printDurationMetrics(w io.Writer, d DurationMetrics) {
	fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(d.Min))
	fmt.Fprintf(w, "  Mean:   %s\n", FormatDuration(d.Mean))
	fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(d.P50))
	fmt.Fprintf(w, "  P90:    %s\n", FormatDuration(d.P90))
	fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(d.P95))
	fmt.Fprintf(w, "  P99:    %s\n", FormatDuration(d.P99))
	fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(d.Max))
	fmt.Fprintf(w, "  StdDev: %s\n", FormatDuration(d.StdDev))
}

func printThresholds(w io.Writer, thresholds *ThresholdResults) {
	if thresholds == nil || len(thresholds.Results) == 0 {
		return
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Thresholds:")
	for _, result := range thresholds.Results {
		symbol := "✓"
		if !result.Passed {
			symbol = "✗"
		}
		fmt.Fprintf(w, "  %s %s < %s (actual: %s)\n", symbol, result.Name, result.Threshold, result.Actual)
	}
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d,%03d", n/1000, n%1000)
}
