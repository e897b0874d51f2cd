package collector

import (
	"sort"
	"time"
)

// WaveStat is one wave's aggregate statistics: thread count, success and
// failure counts, per-step mean latency, and the total-latency
// distribution over the successful subset.
type WaveStat struct {
	Wave              int             `json:"wave"`
	Threads           int             `json:"threads"`
	Success           int             `json:"success"`
	Failure           int             `json:"failure"`
	StepMeanLatencyMs map[int]float64 `json:"step_mean_latency_ms"`
	Latency           DurationMetrics `json:"latency"`
	Outliers          int             `json:"outliers"`
}

func computeWaveStat(wave int, records []WaveRecord) WaveStat {
	stat := WaveStat{Wave: wave, Threads: len(records), StepMeanLatencyMs: map[int]float64{}}

	var successLatencies []time.Duration
	stepSums := map[int]float64{}
	stepCounts := map[int]int{}

	for _, r := range records {
		if !r.Success {
			stat.Failure++
			continue
		}
		stat.Success++
		successLatencies = append(successLatencies, time.Duration(r.TotalLatencyMs*float64(time.Millisecond)))
		for i, s := range r.Steps {
			step := i + 1
			stepSums[step] += s.LatencyMs
			stepCounts[step]++
		}
	}
	for step, sum := range stepSums {
		stat.StepMeanLatencyMs[step] = sum / float64(stepCounts[step])
	}
	stat.Latency = ComputeDurationMetrics(successLatencies)
	stat.Outliers = CountOutliers(successLatencies, stat.Latency.Mean, stat.Latency.StdDev)
	return stat
}

// ComputeWaveStats groups records by wave number and computes each wave's
// statistics, in ascending wave order.
func ComputeWaveStats(records []WaveRecord) []WaveStat {
	byWave := map[int][]WaveRecord{}
	var waveNums []int
	for _, r := range records {
		if _, ok := byWave[r.Wave]; !ok {
			waveNums = append(waveNums, r.Wave)
		}
		byWave[r.Wave] = append(byWave[r.Wave], r)
	}
	sort.Ints(waveNums)

	stats := make([]WaveStat, 0, len(waveNums))
	for _, w := range waveNums {
		stats = append(stats, computeWaveStat(w, byWave[w]))
	}
	return stats
}

// OverallStat is the run-wide summary: total threads, success/failure
// counts, success rate, and the total-latency distribution.
type OverallStat struct {
	TotalThreads int             `json:"total_threads"`
	Success      int             `json:"success"`
	Failure      int             `json:"failure"`
	SuccessRate  float64         `json:"success_rate"`
	Latency      DurationMetrics `json:"latency"`
}

// ComputeOverallStat summarizes every wave record regardless of wave
// number.
func ComputeOverallStat(records []WaveRecord) OverallStat {
	stat := OverallStat{TotalThreads: len(records)}
	var successLatencies []time.Duration
	for _, r := range records {
		if r.Success {
			stat.Success++
			successLatencies = append(successLatencies, time.Duration(r.TotalLatencyMs*float64(time.Millisecond)))
		} else {
			stat.Failure++
		}
	}
	if stat.TotalThreads > 0 {
		stat.SuccessRate = float64(stat.Success) / float64(stat.TotalThreads) * 100
	}
	stat.Latency = ComputeDurationMetrics(successLatencies)
	return stat
}

// Config mirrors the results tree's config block: the parameters the run
// was launched with.
type Config struct {
	RPS      int    `json:"rps"`
	Duration int    `json:"duration"`
	PuzzleID string `json:"puzzle_id"`
	StateLen int    `json:"state_len"`
	TrueRPS  bool   `json:"true_rps"`
}

// WaveResults is the results tree the report renderer consumes for
// synthetic-load runs.
type WaveResults struct {
	Title       string       `json:"title"`
	Timestamp   string       `json:"timestamp"`
	Config      Config       `json:"config"`
	Waves       []WaveStat   `json:"waves"`
	Overall     OverallStat  `json:"overall"`
	Results     []WaveRecord `json:"results"`
	TotalTimeMs float64      `json:"total_time_ms"`
}

// ComputeWaveResults builds the finalized results tree from every wave
// record collected during a run.
func ComputeWaveResults(title string, cfg Config, records []WaveRecord, totalTimeMs float64, timestamp time.Time) *WaveResults {
	return &WaveResults{
		Title:       title,
		Timestamp:   timestamp.Format(time.RFC3339),
		Config:      cfg,
		Waves:       ComputeWaveStats(records),
		Overall:     ComputeOverallStat(records),
		Results:     records,
		TotalTimeMs: totalTimeMs,
	}
}

// ReplayOverallStat is the run-wide summary for trace-replay mode.
type ReplayOverallStat struct {
	Total       int             `json:"total"`
	Success     int             `json:"success"`
	Failure     int             `json:"failure"`
	SuccessRate float64         `json:"success_rate"`
	Latency     DurationMetrics `json:"latency"`
}

// ComputeReplayOverallStat summarizes every replay record.
func ComputeReplayOverallStat(records []ReplayRecord) ReplayOverallStat {
	stat := ReplayOverallStat{Total: len(records)}
	var successLatencies []time.Duration
	for _, r := range records {
		if r.Success {
			stat.Success++
			successLatencies = append(successLatencies, time.Duration(r.LatencyMs)*time.Millisecond)
		} else {
			stat.Failure++
		}
	}
	if stat.Total > 0 {
		stat.SuccessRate = float64(stat.Success) / float64(stat.Total) * 100
	}
	stat.Latency = ComputeDurationMetrics(successLatencies)
	return stat
}

// ReplayResults is the results tree for trace-replay runs.
type ReplayResults struct {
	Title       string            `json:"title"`
	Timestamp   string            `json:"timestamp"`
	Overall     ReplayOverallStat `json:"overall"`
	Results     []ReplayRecord    `json:"results"`
	TotalTimeMs float64           `json:"total_time_ms"`
}

// ComputeReplayResults builds the finalized results tree from every replay
// record collected during a run.
func ComputeReplayResults(title string, records []ReplayRecord, totalTimeMs float64, timestamp time.Time) *ReplayResults {
	return &ReplayResults{
		Title:       title,
		Timestamp:   timestamp.Format(time.RFC3339),
		Overall:     ComputeReplayOverallStat(records),
		Results:     records,
		TotalTimeMs: totalTimeMs,
	}
}
