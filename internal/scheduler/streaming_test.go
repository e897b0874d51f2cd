package scheduler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crossword-loadgen/internal/httpx"
	"crossword-loadgen/internal/session"
)

const streamingTraceFixture = `{"ts":0,"endpoint":"/date-picker","userId":"alice","delayMs":0}
{"ts":100,"endpoint":"/date-picker","userId":"bob","delayMs":100}
{"ts":150,"endpoint":"/date-picker","userId":"carol","delayMs":50}
{"ts":800,"endpoint":"/date-picker","userId":"dave","delayMs":650}
`

func TestStreamingReplayRunner_PreScanMatchesBatchPoolSizeCalculation(t *testing.T) {
	var hits sync.Map
	server := newReplayTestTarget(t, &hits)
	defer server.Close()

	client := httpx.New(httpx.Config{})
	sessions := session.New(client, server.URL, "abc")
	dispatcher := NewReplayDispatcher(client, sessions, server.URL, "abc", "d4725144")

	streaming := NewStreamingReplayRunner(StreamingReplayConfig{}, dispatcher, nil, func(ReplayCompletion) {})
	size, err := streaming.PreScan(strings.NewReader(streamingTraceFixture))
	if err != nil {
		t.Fatalf("PreScan: %v", err)
	}
	// Sparse trace (never more than 2 events in any 100ms window): expect
	// the floor of 20.
	if size != 20 {
		t.Errorf("expected pre-scanned pool size of 20 for a sparse trace, got %d", size)
	}
}

func TestStreamingReplayRunner_RunDispatchesAllEventsFromReader(t *testing.T) {
	var hits sync.Map
	server := newReplayTestTarget(t, &hits)
	defer server.Close()

	client := httpx.New(httpx.Config{})
	sessions := session.New(client, server.URL, "abc")
	dispatcher := NewReplayDispatcher(client, sessions, server.URL, "abc", "d4725144")

	var mu sync.Mutex
	var completions []ReplayCompletion
	streaming := NewStreamingReplayRunner(StreamingReplayConfig{Speed: 4}, dispatcher, nil, func(c ReplayCompletion) {
		mu.Lock()
		completions = append(completions, c)
		mu.Unlock()
	})

	completed := streaming.Run(context.Background(), strings.NewReader(streamingTraceFixture), 20)
	if !completed {
		t.Fatal("expected streaming run to complete")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(completions) != 4 {
		t.Fatalf("expected 4 completions, got %d", len(completions))
	}
	for _, c := range completions {
		if !c.Success {
			t.Errorf("expected event %d to succeed, got error: %s", c.Index, c.Error)
		}
	}

	v, ok := hits.Load("date-picker")
	if !ok || v.(*atomic.Int64).Load() != 4 {
		t.Errorf("expected date-picker hit 4 times, got %v", v)
	}
}

func TestStreamingReplayRunner_CancellationStopsStreaming(t *testing.T) {
	var hits sync.Map
	server := newReplayTestTarget(t, &hits)
	defer server.Close()

	client := httpx.New(httpx.Config{})
	sessions := session.New(client, server.URL, "abc")
	dispatcher := NewReplayDispatcher(client, sessions, server.URL, "abc", "d4725144")

	trace := `{"ts":0,"endpoint":"/date-picker","userId":"alice","delayMs":0}
{"ts":10000,"endpoint":"/date-picker","userId":"bob","delayMs":10000}
`
	streaming := NewStreamingReplayRunner(StreamingReplayConfig{}, dispatcher, nil, func(ReplayCompletion) {})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if streaming.Run(ctx, strings.NewReader(trace), 20) {
		t.Error("expected cancellation to prevent full completion")
	}
}

func TestStreamingReplayRunner_SurfacesScannerErrorAsCompletion(t *testing.T) {
	// A line exceeding the scanner's buffer surfaces as a scanner error,
	// which Run reports through emit rather than silently dropping.
	huge := strings.Repeat("a", 2<<20)
	trace := `{"ts":0,"endpoint":"/date-picker","userId":"alice","delayMs":0}` + "\n" + huge

	client := httpx.New(httpx.Config{})
	sessions := session.New(client, "http://example.invalid", "abc")
	dispatcher := NewReplayDispatcher(client, sessions, "http://example.invalid", "abc", "d4725144")

	var mu sync.Mutex
	var sawError bool
	streaming := NewStreamingReplayRunner(StreamingReplayConfig{}, dispatcher, nil, func(c ReplayCompletion) {
		mu.Lock()
		if c.Error != "" && c.Endpoint == "" {
			sawError = true
		}
		mu.Unlock()
	})

	streaming.Run(context.Background(), strings.NewReader(trace), 20)

	mu.Lock()
	defer mu.Unlock()
	if !sawError {
		t.Error("expected an oversized line to surface as a scanner-error completion")
	}
}
