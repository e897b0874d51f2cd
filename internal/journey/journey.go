package journey

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

// Variant selects which journey shape to run.
type Variant int

const (
	// Standard runs the bare four-step journey.
	Standard Variant = iota
	// WithStaticAssets additionally fetches the tenant CDN and font
	// resources a real browser would load alongside steps 1 and 3.
	WithStaticAssets
)

const (
	stateLength     = 185
	initialFillRate = 0.1
	browserUA       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"
)

// Config carries the immutable settings a Journey needs to run against a
// target puzzle.
type Config struct {
	BaseURL   string
	Series    string
	PuzzleID  string
	StateLen  int
	Variant   Variant
}

// Journey executes the scripted multi-step user journey against the
// target using a single logical session per invocation.
type Journey struct {
	cfg      Config
	client   httpx.Doer
	sessions *session.Store
	clock    core.Clock
	debug    *httpx.DebugLogger
}

// New builds a Journey. client is the shared HTTP dispatcher — a plain
// *httpx.Client or an *httpx.AuthDecorator wrapping one — and sessions
// supplies (load token, play id) pairs.
func New(cfg Config, client httpx.Doer, sessions *session.Store, clock core.Clock) *Journey {
	if cfg.StateLen <= 0 {
		cfg.StateLen = stateLength
	}
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Journey{cfg: cfg, client: client, sessions: sessions, clock: clock}
}

// SetDebug attaches a debug logger; every step's request/response pair is
// then recorded under the virtual-user id passed to Run. A nil logger
// (the zero value) disables logging, same as never calling SetDebug.
func (j *Journey) SetDebug(debug *httpx.DebugLogger) { j.debug = debug }

func (j *Journey) resolve(path string) string {
	base := j.cfg.BaseURL
	if len(base) > 0 && base[len(base)-1] != '/' {
		base += "/"
	}
	return base + path
}

// decodedPlay mirrors the score/timeOnPage/timeTaken fields the crossword
// step's rawp blob may carry forward into the play-post payloads.
type decodedPlay struct {
	Score      int
	TimeOnPage int
	TimeTaken  int
}

// Run executes all four steps in order for uid, stopping at the first
// failing step. Completed steps' latencies are still reported. vu
// identifies the calling worker for debug logging; wave mode passes its
// thread index, replay-derived callers may pass 0.
func (j *Journey) Run(ctx context.Context, uid string, vu int) Result {
	result := Result{UID: uid}

	step1 := j.runStep1(ctx, uid, vu)
	result.Steps[0] = step1
	if !step1.Success {
		result.Error = step1.Error
		return result
	}

	tokens := j.sessions.GetOrCreate(ctx, uid, j.cfg.PuzzleID)
	if !tokens.Valid() {
		result.Error = fmt.Sprintf("session unavailable: %s", tokens.Error)
		return result
	}

	step2 := j.runStep2(ctx, tokens.LoadToken, vu)
	result.Steps[1] = step2
	if !step2.Success {
		result.Error = step2.Error
		return result
	}

	step3, play := j.runStep3(ctx, uid, tokens.LoadToken, vu)
	result.Steps[2] = step3
	if !step3.Success {
		result.Error = step3.Error
		return result
	}
	if step3PlayID := play.playID; step3PlayID != "" {
		tokens.PlayID = step3PlayID
	}

	step4 := j.runStep4(ctx, uid, tokens, play.metadata, vu)
	result.Steps[3] = step4
	if !step4.Success {
		result.Error = step4.Error
		return result
	}

	result.Success = true
	return result
}

func (j *Journey) runStep1(ctx context.Context, uid string, vu int) StepResult {
	start := j.clock.Now()
	startMs := start.UnixMilli()

	u := j.resolve(fmt.Sprintf("date-picker?set=%s&uid=%s", url.QueryEscape(j.cfg.Series), url.QueryEscape(uid)))
	resp, body, err := httpx.GetLogged(ctx, j.client, u, j.debug, vu, "date-picker")
	latencyMs := msSince(j.clock, start)

	if err != nil {
		return StepResult{StartTimestamp: startMs, EndTimestamp: j.clock.Now().UnixMilli(), LatencyMs: latencyMs, Error: err.Error()}
	}
	_ = resp

	params, err := httpx.ExtractParams(body)
	if err != nil {
		return failStep(startMs, j.clock.Now().UnixMilli(), latencyMs, err)
	}
	decoded, err := httpx.DecodeBase64JSON(params.Get("rawsps").String())
	if err != nil {
		return failStep(startMs, j.clock.Now().UnixMilli(), latencyMs, err)
	}
	if decoded.Get("loadToken").String() == "" {
		return failStep(startMs, j.clock.Now().UnixMilli(), latencyMs, fmt.Errorf("journey: date-picker response missing loadToken"))
	}

	var cdnResults []CDNResult
	if j.cfg.Variant == WithStaticAssets {
		var cdnLatency float64
		cdnResults, cdnLatency = j.fetchCDNResources(ctx, step1CDNResources)
		latencyMs += cdnLatency
	}

	return StepResult{
		StartTimestamp: startMs,
		EndTimestamp:   j.clock.Now().UnixMilli(),
		LatencyMs:      latencyMs,
		Success:        true,
		UID:            uid,
		CDNResults:     cdnResults,
	}
}

func (j *Journey) runStep2(ctx context.Context, loadToken string, vu int) StepResult {
	start := j.clock.Now()
	startMs := start.UnixMilli()

	payload := map[string]any{
		"loadToken":  loadToken,
		"isVerified": true,
		"adDuration": 0,
		"reason":     "displaying puzzle picker",
	}
	body, _ := json.Marshal(payload)

	_, respBody, err := httpx.PostJSONLogged(ctx, j.client, j.resolve("postPickerStatus"), body, j.debug, vu, "postPickerStatus")
	latencyMs := msSince(j.clock, start)
	if err != nil {
		return failStep(startMs, j.clock.Now().UnixMilli(), latencyMs, err)
	}

	status := gjsonGetInt(respBody, "status")
	if status != 0 {
		return failStep(startMs, j.clock.Now().UnixMilli(), latencyMs,
			fmt.Errorf("journey: postPickerStatus returned status %d", status))
	}

	return StepResult{StartTimestamp: startMs, EndTimestamp: j.clock.Now().UnixMilli(), LatencyMs: latencyMs, Success: true}
}

type step3Play struct {
	playID   string
	metadata decodedPlay
}

func (j *Journey) runStep3(ctx context.Context, uid, loadToken string, vu int) (StepResult, step3Play) {
	start := j.clock.Now()
	startMs := start.UnixMilli()

	src := j.resolve(fmt.Sprintf("date-picker?set=%s&uid=%s", url.QueryEscape(j.cfg.Series), url.QueryEscape(uid)))
	u := j.resolve(fmt.Sprintf(
		"crossword?id=%s&set=%s&picker=date-picker&src=%s&uid=%s&loadToken=%s",
		url.QueryEscape(j.cfg.PuzzleID), url.QueryEscape(j.cfg.Series), url.QueryEscape(src),
		url.QueryEscape(uid), url.QueryEscape(loadToken)))

	resp, body, err := httpx.GetLogged(ctx, j.client, u, j.debug, vu, "crossword")
	latencyMs := msSince(j.clock, start)
	if err != nil {
		return failStep(startMs, j.clock.Now().UnixMilli(), latencyMs, err), step3Play{}
	}
	_ = resp

	params, err := httpx.ExtractParams(body)
	if err != nil {
		return failStep(startMs, j.clock.Now().UnixMilli(), latencyMs, err), step3Play{}
	}

	var play step3Play
	if rawp := params.Get("rawp").String(); rawp != "" {
		decoded, decErr := httpx.DecodeBase64JSON(rawp)
		if decErr == nil {
			play.playID = decoded.Get("playId").String()
			play.metadata = decodedPlay{
				Score:      int(decoded.Get("score").Int()),
				TimeOnPage: int(decoded.Get("timeOnPage").Int()),
				TimeTaken:  int(decoded.Get("timeTaken").Int()),
			}
		}
	}

	var cdnResults []CDNResult
	if j.cfg.Variant == WithStaticAssets {
		var cdnLatency float64
		cdnResults, cdnLatency = j.fetchCDNResources(ctx, step3CDNResources)
		latencyMs += cdnLatency
	}

	return StepResult{
		StartTimestamp: startMs,
		EndTimestamp:   j.clock.Now().UnixMilli(),
		LatencyMs:      latencyMs,
		Success:        true,
		CDNResults:     cdnResults,
	}, play
}

func (j *Journey) runStep4(ctx context.Context, uid string, tokens session.Tokens, play decodedPlay, vu int) StepResult {
	startMs := j.clock.Now().UnixMilli()

	if play.TimeOnPage == 0 {
		play.TimeOnPage = 5000
	}
	if play.TimeTaken == 0 {
		play.TimeTaken = 5
	}

	primary, secondary := generateState(j.cfg.StateLen, initialFillRate)
	iterations := make([]IterationResult, 0, 10)
	var stepLatencyMs float64

	for i := 0; i < 10; i++ {
		iterStart := j.clock.Now()

		var playState int
		var currPrimary, currSecondary string
		switch i {
		case 0:
			playState = 1
		case 9:
			playState = 4
			currPrimary, currSecondary = completeState(j.cfg.StateLen)
		default:
			playState = 2
			primary, secondary = mutateState(primary, secondary)
			currPrimary, currSecondary = primary, secondary
		}

		payload := newPlayPostPayload(playPostFields{
			LoadToken:     tokens.LoadToken,
			Series:        j.cfg.Series,
			PuzzleID:      j.cfg.PuzzleID,
			PlayID:        tokens.PlayID,
			UserID:        uid,
			PlayState:     playState,
			Score:         play.Score,
			TimeOnPage:    play.TimeOnPage,
			TimeTaken:     play.TimeTaken,
			Timestamp:     j.clock.Now().UnixMilli(),
			PrimaryState:  currPrimary,
			SecondaryState: currSecondary,
			PostScoreReason: postScoreReason(i),
		})
		body, _ := json.Marshal(payload)

		_, respBody, err := httpx.PostJSONLogged(ctx, j.client, j.resolve("api/v1/plays"), body, j.debug, vu, fmt.Sprintf("plays[%d]", i+1))
		latencyMs := msSince(j.clock, iterStart)
		if err != nil {
			return StepResult{
				StartTimestamp: startMs, EndTimestamp: j.clock.Now().UnixMilli(),
				Error: fmt.Errorf("journey: plays iteration %d: %w", i+1, err).Error(),
				Iterations: iterations,
			}
		}
		if status := gjsonGetInt(respBody, "status"); status != 0 {
			return StepResult{
				StartTimestamp: startMs, EndTimestamp: j.clock.Now().UnixMilli(),
				Error: fmt.Sprintf("journey: plays iteration %d returned status %d", i+1, status),
				Iterations: iterations,
			}
		}

		iterations = append(iterations, IterationResult{Iteration: i + 1, PlayState: playState, LatencyMs: latencyMs})
		stepLatencyMs += latencyMs
	}

	return StepResult{
		StartTimestamp: startMs,
		EndTimestamp:   j.clock.Now().UnixMilli(),
		LatencyMs:      stepLatencyMs,
		Success:        true,
		Iterations:     iterations,
	}
}

// postScoreReason returns BLUR for every iteration, the value the
// original client always sends.
func postScoreReason(_ int) string {
	return "BLUR"
}

func failStep(startMs, endMs int64, latencyMs float64, err error) StepResult {
	return StepResult{StartTimestamp: startMs, EndTimestamp: endMs, LatencyMs: latencyMs, Error: err.Error()}
}

func msSince(clock core.Clock, start time.Time) float64 {
	return float64(clock.Since(start).Microseconds()) / 1000.0
}
