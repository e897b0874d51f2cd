package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crossword-loadgen/internal/collector"
	"crossword-loadgen/internal/config"
	"crossword-loadgen/internal/core"
	"crossword-loadgen/internal/httpx"
	"crossword-loadgen/internal/journey"
	"crossword-loadgen/internal/progress"
	"crossword-loadgen/internal/ratelimit"
	"crossword-loadgen/internal/scheduler"
	"crossword-loadgen/internal/session"
)

const (
	ExitSuccess         = 0
	ExitThresholdFailed = 1
	ExitError           = 2
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (required)")
	rps := flag.Int("rps", 0, "wave mode: virtual users launched per second (overrides a single-phase config)")
	duration := flag.Int("duration", 0, "wave mode: run length in seconds (overrides config)")
	parallel := flag.Int("parallel", 20, "worker pool size for the bulk session pre-warm phase")
	prewarmRate := flag.Int("prewarm-rate", 0, "cap the bulk session pre-warm phase at this many requests/sec (0 = unlimited)")
	title := flag.String("title", "crossword-loadgen run", "report title")
	output := flag.String("output", "text", "output format: text, json")
	replayFile := flag.String("replay", "", "replay a recorded trace file instead of running wave mode")
	speed := flag.Float64("speed", 0, "replay mode: playback speed multiplier (overrides config)")
	dryRun := flag.Bool("dry-run", false, "replay mode: validate sessions and timing without sending requests")
	saveSessions := flag.String("save-sessions", "", "write derived sessions to this file after the run")
	loadSessions := flag.String("load-sessions", "", "load derived sessions from this file before the run")
	uid := flag.String("uid", "", "fixed virtual user id (overrides config users.fixed)")
	randomUID := flag.Bool("random-uid", false, "generate a random virtual user id per journey (overrides config)")
	uidPoolSize := flag.Int("uid-pool-size", 0, "draw virtual user ids at random from a fixed-size pool (overrides config)")
	quiet := flag.Bool("quiet", false, "suppress progress output during the run")
	verbose := flag.Bool("v", false, "log every request/response pair to stderr")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "error: --config is required")
		flag.Usage()
		os.Exit(ExitError)
	}
	if *output != "text" && *output != "json" {
		fmt.Fprintf(os.Stderr, "error: --output must be 'text' or 'json', got %q\n", *output)
		os.Exit(ExitError)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(ExitError)
	}
	applyCLIOverrides(cfg, *uid, *randomUID, *uidPoolSize)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	interrupted := false
	go func() {
		<-sigCh
		interrupted = true
		if !*quiet {
			fmt.Fprintln(os.Stderr, "\nreceived interrupt signal, shutting down...")
		}
		cancel()
	}()

	client, err := buildClient(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(ExitError)
	}

	var debug *httpx.DebugLogger
	if *verbose || cfg.Verbose {
		debug = httpx.NewDebugLogger(os.Stderr)
	}

	sessions := session.New(client, cfg.Target.BaseURL, cfg.Target.Series)
	prog := progress.NewProgress(*quiet)

	configuredTracePath := ""
	if cfg.Replay != nil {
		configuredTracePath = cfg.Replay.TracePath
	}
	if *replayFile != "" || configuredTracePath != "" {
		runReplay(ctx, cfg, client, sessions, prog, debug, replayOptions{
			path:         firstNonEmpty(*replayFile, configuredTracePath),
			speed:        *speed,
			dryRun:       *dryRun,
			saveSessions: *saveSessions,
			loadSessions: *loadSessions,
			title:        *title,
			output:       *output,
			prewarmRate:  *prewarmRate,
			parallel:     *parallel,
		})
		return
	}

	runWave(ctx, cfg, client, sessions, prog, debug, waveOptions{
		rps:          *rps,
		duration:     *duration,
		parallel:     *parallel,
		saveSessions: *saveSessions,
		loadSessions: *loadSessions,
		title:        *title,
		output:       *output,
		interrupted:  &interrupted,
		prewarmRate:  *prewarmRate,
	})
}

func applyCLIOverrides(cfg *config.Config, uid string, randomUID bool, poolSize int) {
	switch {
	case randomUID:
		cfg.Users.Mode = core.UserModeRandom
	case poolSize > 0:
		cfg.Users.Mode = core.UserModePool
		cfg.Users.PoolSize = poolSize
	case uid != "":
		cfg.Users.Mode = core.UserModeFixed
		cfg.Users.Fixed = uid
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// buildClient assembles the shared HTTP dispatcher, wrapping it in an
// AuthDecorator when the config names an authenticated tenant.
func buildClient(ctx context.Context, cfg *config.Config) (httpx.Doer, error) {
	base := httpx.New(httpx.Config{
		RequestTimeout:     cfg.Target.RequestTimeout,
		InsecureSkipVerify: cfg.Target.InsecureSkipVerify,
	})
	if cfg.Auth == nil {
		return base, nil
	}
	decorator, err := httpx.NewAuthDecorator(ctx, base, httpx.AuthConfig{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		TokenURL:     cfg.Auth.TokenURL,
	})
	if err != nil {
		return nil, fmt.Errorf("building auth decorator: %w", err)
	}
	return decorator, nil
}

type waveOptions struct {
	rps          int
	duration     int
	parallel     int
	saveSessions string
	loadSessions string
	title        string
	output       string
	interrupted  *bool
	prewarmRate  int
}

func runWave(ctx context.Context, cfg *config.Config, client httpx.Doer, sessions *session.Store, prog *progress.Progress, debug *httpx.DebugLogger, opts waveOptions) {
	if opts.loadSessions != "" {
		if found, err := sessions.LoadFromFile(opts.loadSessions, cfg.Target.PuzzleID); err != nil {
			fmt.Fprintf(os.Stderr, "error: loading sessions: %v\n", err)
			os.Exit(ExitError)
		} else if found {
			prog.Printf("loaded sessions from %s", opts.loadSessions)
		}
	}

	users := cfg.Users.Source()
	j := journey.New(journey.Config{
		BaseURL:  cfg.Target.BaseURL,
		Series:   cfg.Target.Series,
		PuzzleID: cfg.Target.PuzzleID,
		StateLen: cfg.Target.StateLen,
		Variant:  cfg.Target.JourneyVariant(),
	}, client, sessions, nil)
	j.SetDebug(debug)

	coll := collector.NewWaveCollector()
	prog.Start()

	limiter := ratelimit.NewRateLimiter(opts.prewarmRate)
	prewarmUsers := make([]session.Key, 0, opts.parallel)
	for i := 0; i < opts.parallel; i++ {
		prewarmUsers = append(prewarmUsers, session.Key{User: users.Next(), Puzzle: cfg.Target.PuzzleID})
	}
	sessions.BulkWarm(ctx, prewarmUsers, opts.parallel, limiter, func(done, total int) {
		prog.Printf("pre-warm: %d/%d sessions ready", done, total)
	})

	waveRunner := func(rps, duration int) bool {
		runner := scheduler.NewWaveRunner(scheduler.WaveConfig{RPS: rps, Duration: duration}, j, users, core.RealClock{}, func(wc scheduler.WaveCompletion) {
			prog.RecordCompletion(wc.Crash == "" && wc.Result.Success)
			coll.Report(wc)
		})
		runner.OnLaunch(func(wave int) { prog.WaveLaunched(wave, rps) })
		return runner.Run(ctx)
	}

	completed := true
	if opts.rps > 0 && opts.duration > 0 {
		completed = waveRunner(opts.rps, opts.duration)
	} else if cfg.LoadProfile != nil {
		completed = runLoadProfile(ctx, cfg.LoadProfile, waveRunner)
	} else {
		fmt.Fprintln(os.Stderr, "error: no rate/duration given: pass --rps/--duration or configure loadProfile")
		os.Exit(ExitError)
	}
	prog.Stop()
	coll.Close()

	if opts.saveSessions != "" {
		if err := sessions.SaveToFile(opts.saveSessions); err != nil {
			fmt.Fprintf(os.Stderr, "error: saving sessions: %v\n", err)
		}
	}

	if *opts.interrupted {
		os.Exit(ExitSuccess)
	}
	if !completed {
		fmt.Fprintln(os.Stderr, "warning: run did not complete within its safety margin")
	}

	results := collector.ComputeWaveResults(opts.title, collector.Config{
		RPS: opts.rps, Duration: opts.duration, PuzzleID: cfg.Target.PuzzleID, StateLen: cfg.Target.StateLen,
	}, coll.Records(), float64(coll.Duration().Milliseconds()), time.Now())

	var thresholds *collector.ThresholdResults
	if cfg.Thresholds != nil {
		thresholds = cfg.Thresholds.CheckWave(results.Overall)
	}
	if opts.output == "json" {
		collector.FormatWaveJSON(os.Stdout, results, thresholds)
	} else {
		collector.FormatWaveText(os.Stdout, results, thresholds)
	}
	exitOnThresholds(thresholds, opts.output)
}

// runLoadProfile sequences a config's ramp/steady phases into consecutive
// one-second wave runs, since WaveRunner itself only ever runs a single
// constant rate. A PhaseManager tracks which phase real elapsed time falls
// into and interpolates its target rate, so a ramp phase's rate changes
// smoothly second by second rather than jumping once at the phase boundary
// and the phase-index bookkeeping doesn't have to be duplicated here.
func runLoadProfile(ctx context.Context, profile *config.LoadProfile, waveRunner func(rps, duration int) bool) bool {
	pm := ratelimit.NewPhaseManager(profile.Phases)
	for !pm.IsComplete() {
		if ctx.Err() != nil {
			return false
		}
		rps := pm.TargetVirtualUsers()
		if rps <= 0 {
			time.Sleep(time.Second)
			continue
		}
		if !waveRunner(rps, 1) {
			return false
		}
	}
	return true
}

type replayOptions struct {
	path                       string
	speed                      float64
	dryRun                     bool
	saveSessions, loadSessions string
	title, output              string
	prewarmRate                int
	parallel                   int
}

func runReplay(ctx context.Context, cfg *config.Config, client httpx.Doer, sessions *session.Store, prog *progress.Progress, debug *httpx.DebugLogger, opts replayOptions) {
	streaming := cfg.Replay != nil && cfg.Replay.Streaming

	dispatcher := scheduler.NewReplayDispatcher(client, sessions, cfg.Target.BaseURL, cfg.Target.Series, cfg.Target.PuzzleID)
	dispatcher.SetDebug(debug)
	dryRun := opts.dryRun || (cfg.Replay != nil && cfg.Replay.DryRun)
	dispatcher.SetDryRun(dryRun)

	if opts.loadSessions != "" {
		if found, err := sessions.LoadFromFile(opts.loadSessions, cfg.Target.PuzzleID); err != nil {
			fmt.Fprintf(os.Stderr, "error: loading sessions: %v\n", err)
			os.Exit(ExitError)
		} else if found {
			prog.Printf("loaded sessions from %s", opts.loadSessions)
		}
	} else {
		users, err := traceUsers(opts.path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: scanning trace for pre-warm: %v\n", err)
			os.Exit(ExitError)
		}
		keys := make([]session.Key, 0, len(users))
		for _, u := range users {
			keys = append(keys, session.Key{User: u, Puzzle: cfg.Target.PuzzleID})
		}
		limiter := ratelimit.NewRateLimiter(opts.prewarmRate)
		sessions.BulkWarm(ctx, keys, opts.parallel, limiter, func(done, total int) {
			prog.Printf("pre-warm: %d/%d sessions ready", done, total)
		})
	}

	speed := opts.speed
	if speed <= 0 && cfg.Replay != nil {
		speed = cfg.Replay.Speed
	}
	factor, ceiling := 0, 0
	if cfg.Replay != nil {
		factor, ceiling = cfg.Replay.PoolSizeFactor, cfg.Replay.PoolSizeCeiling
	}

	prog.Start()
	startedAt := time.Now()

	if streaming {
		agg := collector.NewStreamingAggregator()
		emit := func(rc scheduler.ReplayCompletion) {
			prog.RecordCompletion(rc.Success)
			prog.EventDispatched(rc.Index)
			agg.Record(collector.ReplayRecord{
				Index: rc.Index, ScheduledMs: rc.ScheduledMs, ActualMs: rc.ActualMs,
				LatencyMs: rc.LatencyMs, Success: rc.Success, Endpoint: rc.Endpoint,
				UserID: rc.UserID, Error: rc.Error,
			})
		}
		completed := runStreamingReplay(ctx, opts.path, scheduler.StreamingReplayConfig{
			Speed: speed, PoolSizeFactor: factor, PoolSizeCeiling: ceiling,
		}, dispatcher, emit, prog)
		prog.Stop()

		if opts.saveSessions != "" {
			if err := sessions.SaveToFile(opts.saveSessions); err != nil {
				fmt.Fprintf(os.Stderr, "error: saving sessions: %v\n", err)
			}
		}
		if !completed {
			fmt.Fprintln(os.Stderr, "warning: replay did not complete within its safety margin")
		}

		results := collector.ComputeStreamingResults(opts.title, agg.Snapshot(), float64(time.Since(startedAt).Milliseconds()), time.Now())
		var thresholds *collector.ThresholdResults
		if cfg.Thresholds != nil {
			thresholds = cfg.Thresholds.CheckReplay(results.Overall)
		}
		if opts.output == "json" {
			collector.FormatStreamingJSON(os.Stdout, results, thresholds)
		} else {
			collector.FormatStreamingText(os.Stdout, results, thresholds)
		}
		exitOnThresholds(thresholds, opts.output)
		return
	}

	coll := collector.NewReplayCollector()
	emit := func(rc scheduler.ReplayCompletion) {
		prog.RecordCompletion(rc.Success)
		prog.EventDispatched(rc.Index)
		coll.Report(rc)
	}

	events, err := readTraceFile(opts.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: reading trace: %v\n", err)
		os.Exit(ExitError)
	}
	runner := scheduler.NewReplayRunner(scheduler.ReplayConfig{
		Speed: speed, PoolSizeFactor: factor, PoolSizeCeiling: ceiling,
	}, dispatcher, core.RealClock{}, emit)
	completed := runner.Run(ctx, events)
	prog.Stop()
	coll.Close()

	if opts.saveSessions != "" {
		if err := sessions.SaveToFile(opts.saveSessions); err != nil {
			fmt.Fprintf(os.Stderr, "error: saving sessions: %v\n", err)
		}
	}
	if !completed {
		fmt.Fprintln(os.Stderr, "warning: replay did not complete within its safety margin")
	}

	results := collector.ComputeReplayResults(opts.title, coll.Records(), float64(coll.Duration().Milliseconds()), time.Now())
	var thresholds *collector.ThresholdResults
	if cfg.Thresholds != nil {
		thresholds = cfg.Thresholds.CheckReplay(results.Overall)
	}
	if opts.output == "json" {
		collector.FormatReplayJSON(os.Stdout, results, thresholds)
	} else {
		collector.FormatReplayText(os.Stdout, results, thresholds)
	}
	exitOnThresholds(thresholds, opts.output)
}

// readTraceFile opens path and reads its full event list, for batch
// replay mode.
func readTraceFile(path string) ([]scheduler.TraceEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return scheduler.ReadTrace(f)
}

// traceUsers returns every distinct user id a trace mentions, in
// first-seen order, for sizing the pre-warm phase ahead of a replay.
func traceUsers(path string) ([]string, error) {
	events, err := readTraceFile(path)
	if err != nil {
		return nil, err
	}
	return scheduler.UniqueUsers(events), nil
}

// runStreamingReplay drives StreamingReplayRunner's two-pass design: a
// PreScan over the trace to size the worker pool, then a second pass that
// streams events one line at a time rather than holding the whole trace
// in memory, for traces too large to buffer up front.
func runStreamingReplay(ctx context.Context, path string, cfg scheduler.StreamingReplayConfig, dispatcher *scheduler.ReplayDispatcher, emit func(scheduler.ReplayCompletion), prog *progress.Progress) bool {
	runner := scheduler.NewStreamingReplayRunner(cfg, dispatcher, core.RealClock{}, emit)

	scanFile, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening trace for pre-scan: %v\n", err)
		os.Exit(ExitError)
	}
	poolSize, err := runner.PreScan(scanFile)
	scanFile.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: pre-scanning trace: %v\n", err)
		os.Exit(ExitError)
	}
	prog.Printf("streaming replay: sized worker pool at %d", poolSize)

	runFile, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: reopening trace: %v\n", err)
		os.Exit(ExitError)
	}
	defer runFile.Close()
	return runner.Run(ctx, runFile, poolSize)
}

func exitOnThresholds(thresholds *collector.ThresholdResults, output string) {
	if thresholds != nil && !thresholds.Passed {
		if output == "text" {
			fmt.Fprintln(os.Stderr, "\nthreshold check failed")
		}
		os.Exit(ExitThresholdFailed)
	}
	os.Exit(ExitSuccess)
}
