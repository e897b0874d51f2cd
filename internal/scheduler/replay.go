package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"crossword-loadgen/internal/core"
	"crossword-loadgen/internal/httpx"
	"crossword-loadgen/internal/session"
)

const replayBrowserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"

// ReplayDispatcher fires a single trace event against the target, reusing
// session state a prior pre-warm phase populated. It expresses the closed
// sum over the five known endpoint/method pairs the wire protocol defines,
// with a non-fatal fallback for anything else.
type ReplayDispatcher struct {
	client   httpx.Doer
	sessions *session.Store
	baseURL  string
	series   string
	puzzleID string
	dryRun   bool
	debug    *httpx.DebugLogger
}

func NewReplayDispatcher(client httpx.Doer, sessions *session.Store, baseURL, series, puzzleID string) *ReplayDispatcher {
	if len(baseURL) > 0 && baseURL[len(baseURL)-1] != '/' {
		baseURL += "/"
	}
	return &ReplayDispatcher{client: client, sessions: sessions, baseURL: baseURL, series: series, puzzleID: puzzleID}
}

// SetDryRun toggles dry-run mode: Dispatch still resolves the endpoint and
// validates that a session exists where one is required, but never issues
// the actual request, so a trace's timing behavior can be exercised
// against the target's rate limits without generating write traffic.
func (d *ReplayDispatcher) SetDryRun(dryRun bool) { d.dryRun = dryRun }

// SetDebug attaches a debug logger; every dispatched event is then
// recorded under its trace index as the virtual-user id.
func (d *ReplayDispatcher) SetDebug(debug *httpx.DebugLogger) { d.debug = debug }

func (d *ReplayDispatcher) resolve(path string) string { return d.baseURL + path }

func (d *ReplayDispatcher) seriesFor(ev TraceEvent) string {
	if ev.Series != "" {
		return ev.Series
	}
	return d.series
}

func (d *ReplayDispatcher) puzzleFor(ev TraceEvent) string {
	if ev.PuzzleID != "" {
		return ev.PuzzleID
	}
	return d.puzzleID
}

// Dispatch fires ev. An unrecognized endpoint/method pair is reported as an
// error but is never treated as a crash — the closed-sum dispatch's
// fallback branch, not a bug.
func (d *ReplayDispatcher) Dispatch(ctx context.Context, ev TraceEvent) error {
	if d.dryRun {
		return d.dispatchDryRun(ev)
	}
	switch fmt.Sprintf("%s %s", ev.Method, ev.Endpoint) {
	case "GET /date-picker":
		return d.fireDatePicker(ctx, ev)
	case "POST /postPickerStatus":
		return d.firePickerStatus(ctx, ev)
	case "GET /crossword":
		return d.fireCrossword(ctx, ev)
	case "POST /api/v1/plays":
		return d.firePlays(ctx, ev)
	case "GET /api/v1/puzzles":
		return d.firePuzzles(ctx, ev)
	default:
		return fmt.Errorf("unknown endpoint: %s %s", ev.Method, ev.Endpoint)
	}
}

// dispatchDryRun validates that a session-dependent event has a session to
// use, without ever issuing the request itself.
func (d *ReplayDispatcher) dispatchDryRun(ev TraceEvent) error {
	switch fmt.Sprintf("%s %s", ev.Method, ev.Endpoint) {
	case "GET /date-picker", "GET /crossword", "GET /api/v1/puzzles":
		return nil
	case "POST /postPickerStatus", "POST /api/v1/plays":
		if _, ok := d.sessions.Peek(ev.UserID, d.puzzleFor(ev)); !ok {
			return fmt.Errorf("no session for %s (user %s)", ev.Endpoint, ev.UserID)
		}
		return nil
	default:
		return fmt.Errorf("unknown endpoint: %s %s", ev.Method, ev.Endpoint)
	}
}

func (d *ReplayDispatcher) fireDatePicker(ctx context.Context, ev TraceEvent) error {
	u := d.resolve(fmt.Sprintf("date-picker?set=%s&uid=%s", url.QueryEscape(d.seriesFor(ev)), url.QueryEscape(ev.UserID)))
	_, _, err := httpx.GetLogged(ctx, d.client, u, d.debug, ev.Index, "date-picker")
	return err
}

func (d *ReplayDispatcher) firePickerStatus(ctx context.Context, ev TraceEvent) error {
	tokens, ok := d.sessions.Peek(ev.UserID, d.puzzleFor(ev))
	if !ok || !tokens.Valid() {
		return fmt.Errorf("no session for postPickerStatus (user %s)", ev.UserID)
	}
	body, _ := json.Marshal(map[string]any{
		"loadToken": tokens.LoadToken, "isVerified": true, "adDuration": 0,
		"reason": "displaying puzzle picker",
	})
	_, _, err := httpx.PostJSONLogged(ctx, d.client, d.resolve("postPickerStatus"), body, d.debug, ev.Index, "postPickerStatus")
	return err
}

func (d *ReplayDispatcher) fireCrossword(ctx context.Context, ev TraceEvent) error {
	tokens, _ := d.sessions.Peek(ev.UserID, d.puzzleFor(ev))
	series := d.seriesFor(ev)
	puzzle := d.puzzleFor(ev)
	src := d.resolve(fmt.Sprintf("date-picker?set=%s&uid=%s", url.QueryEscape(series), url.QueryEscape(ev.UserID)))
	u := d.resolve(fmt.Sprintf(
		"crossword?id=%s&set=%s&picker=date-picker&src=%s&uid=%s&loadToken=%s",
		url.QueryEscape(puzzle), url.QueryEscape(series), url.QueryEscape(src),
		url.QueryEscape(ev.UserID), url.QueryEscape(tokens.LoadToken)))
	_, _, err := httpx.GetLogged(ctx, d.client, u, d.debug, ev.Index, "crossword")
	return err
}

func (d *ReplayDispatcher) firePlays(ctx context.Context, ev TraceEvent) error {
	tokens, ok := d.sessions.Peek(ev.UserID, d.puzzleFor(ev))
	if !ok || !tokens.Valid() {
		return fmt.Errorf("no session for plays (user %s)", ev.UserID)
	}
	payload := map[string]any{
		"loadToken": tokens.LoadToken, "updatePlayTable": true, "updateLoadTable": false,
		"series": d.seriesFor(ev), "id": d.puzzleFor(ev), "playId": tokens.PlayID, "userId": ev.UserID,
		"browser": replayBrowserUA, "streakLength": 0, "getProgressFromBackend": true,
		"fromPicker": "date-picker", "inContestMode": false,
		"timestamp": ev.Timestamp, "updatedTimestamp": ev.Timestamp,
		"playState": 2, "timeTaken": 10, "score": 0, "timeOnPage": 5000,
		"nPrints": 0, "nPrintsEmpty": 0, "nPrintsFilled": 0, "nPrintsSol": 0,
		"nClearClicks": 0, "nSettingsClicks": 0, "nHelpClicks": 0, "nResizes": 0, "nExceptions": 0,
		"postScoreReason": "AUTOSAVE",
	}
	body, _ := json.Marshal(payload)
	_, _, err := httpx.PostJSONLogged(ctx, d.client, d.resolve("api/v1/plays"), body, d.debug, ev.Index, "plays")
	return err
}

func (d *ReplayDispatcher) firePuzzles(ctx context.Context, ev TraceEvent) error {
	u := d.resolve(fmt.Sprintf("api/v1/puzzles?id=%s&set=%s", url.QueryEscape(d.puzzleFor(ev)), url.QueryEscape(d.seriesFor(ev))))
	_, _, err := httpx.GetLogged(ctx, d.client, u, d.debug, ev.Index, "puzzles")
	return err
}

// ReplayConfig controls a batch trace replay run, where the whole event
// list is held in memory ahead of scheduling.
type ReplayConfig struct {
	Speed           float64
	PoolSizeFactor  int // K in max(20, peak*K)
	PoolSizeCeiling int
}

func (c *ReplayConfig) applyDefaults() {
	if c.Speed <= 0 {
		c.Speed = 1
	}
	if c.PoolSizeFactor <= 0 {
		c.PoolSizeFactor = 4
	}
	if c.PoolSizeCeiling <= 0 {
		c.PoolSizeCeiling = 500
	}
}

// ReplayRunner is the timer wheel for replay mode.
type ReplayRunner struct {
	cfg        ReplayConfig
	dispatcher *ReplayDispatcher
	clock      core.Clock
	emit       func(ReplayCompletion)
}

func NewReplayRunner(cfg ReplayConfig, dispatcher *ReplayDispatcher, clock core.Clock, emit func(ReplayCompletion)) *ReplayRunner {
	cfg.applyDefaults()
	if clock == nil {
		clock = core.RealClock{}
	}
	return &ReplayRunner{cfg: cfg, dispatcher: dispatcher, clock: clock, emit: emit}
}

// computePoolSize derives a worker pool size from a 100ms-bucketed event
// histogram: max(20, peak*factor), capped at ceiling.
func computePoolSize(buckets map[int64]int, factor, ceiling int) int {
	peak := 0
	for _, c := range buckets {
		if c > peak {
			peak = c
		}
	}
	size := peak * factor
	if size < 20 {
		size = 20
	}
	if size > ceiling {
		size = ceiling
	}
	return size
}

func (r *ReplayRunner) poolSize(events []TraceEvent) int {
	buckets := make(map[int64]int, len(events))
	var cumulative int64
	for _, ev := range events {
		cumulative += ev.DelayMs
		scaledMs := int64(float64(cumulative) / r.cfg.Speed)
		buckets[scaledMs/100]++
	}
	return computePoolSize(buckets, r.cfg.PoolSizeFactor, r.cfg.PoolSizeCeiling)
}

// Run schedules every event at its cumulative-delay offset (scaled by the
// configured speed factor, measured from the first event — Open Question
// (a), resolved in favor of cumulative delayMs) and blocks until all have
// fired and completed, or the safety margin elapses.
func (r *ReplayRunner) Run(ctx context.Context, events []TraceEvent) bool {
	pool := NewWorkerPool(r.poolSize(events))
	latch := &CompletionLatch{}

	start := r.clock.Now()
	var cumulativeDelayMs int64
	var lastScaledMs int64

	for _, ev := range events {
		cumulativeDelayMs += ev.DelayMs
		scaledMs := int64(float64(cumulativeDelayMs) / r.cfg.Speed)
		lastScaledMs = scaledMs

		if !sleepUntil(ctx, r.clock, start, scaledMs) {
			pool.Close()
			return false
		}

		latch.Add(1)
		dispatchTraceEvent(ctx, pool, latch, r.dispatcher, r.clock, r.emit, ev, scaledMs, start)
	}

	const safetyMargin = 2 * time.Minute
	expected := time.Duration(lastScaledMs)*time.Millisecond + safetyMargin
	completed := latch.Await(expected)
	pool.Close()
	return completed
}

// sleepUntil blocks the calling (timer-wheel) goroutine until start+offset,
// returning false if ctx is canceled first.
func sleepUntil(ctx context.Context, clock core.Clock, start time.Time, offsetMs int64) bool {
	target := start.Add(time.Duration(offsetMs) * time.Millisecond)
	d := target.Sub(clock.Now())
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return ctx.Err() == nil
	}
}

// dispatchTraceEvent hands ev off to the worker pool, timing the dispatch
// and translating its outcome into a ReplayCompletion.
func dispatchTraceEvent(ctx context.Context, pool *WorkerPool, latch *CompletionLatch, dispatcher *ReplayDispatcher, clock core.Clock, emit func(ReplayCompletion), ev TraceEvent, scaledMs int64, start time.Time) {
	pool.Submit(func() {
		defer latch.Done()
		actualMs := clock.Since(start).Milliseconds()
		reqStart := clock.Now()
		err := dispatcher.Dispatch(ctx, ev)
		latencyMs := clock.Since(reqStart).Milliseconds()

		rec := ReplayCompletion{
			Index: ev.Index, ScheduledMs: scaledMs, ActualMs: actualMs, LatencyMs: latencyMs,
			Success: err == nil, Endpoint: ev.Endpoint, UserID: ev.UserID,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		emit(rec)
	}, func(recovered any) {
		emit(ReplayCompletion{
			Index: ev.Index, ScheduledMs: scaledMs, Endpoint: ev.Endpoint, UserID: ev.UserID,
			Error: fmt.Sprintf("panic: %v", recovered),
		})
	})
}
