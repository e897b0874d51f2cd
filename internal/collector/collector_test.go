package collector

import (
	"sync"
	"testing"
	"time"

	"crossword-loadgen/internal/journey"
	"crossword-loadgen/internal/scheduler"
)

func TestWaveCollector_CollectsRecords(t *testing.T) {
	c := NewWaveCollector()
	c.Report(scheduler.WaveCompletion{Wave: 1, Thread: 0, Result: journey.Result{Success: true}})
	c.Report(scheduler.WaveCompletion{Wave: 1, Thread: 1, Result: journey.Result{Success: false, Error: "boom"}})
	c.Close()

	records := c.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestWaveCollector_CrashProducesFailedRecordWithoutSteps(t *testing.T) {
	c := NewWaveCollector()
	c.Report(scheduler.WaveCompletion{Wave: 1, Thread: 0, Crash: "panic: boom"})
	c.Close()

	records := c.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Success {
		t.Error("expected a crash to be recorded as a failure")
	}
	if records[0].Error != "panic: boom" {
		t.Errorf("expected crash error to be preserved, got %s", records[0].Error)
	}
	if len(records[0].Steps) != 0 {
		t.Errorf("expected no step detail for a crashed journey, got %d", len(records[0].Steps))
	}
}

func TestWaveCollector_ThreadSafety(t *testing.T) {
	c := NewWaveCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(thread int) {
			defer wg.Done()
			c.Report(scheduler.WaveCompletion{Wave: 1, Thread: thread, Result: journey.Result{Success: true}})
		}(i)
	}
	wg.Wait()
	c.Close()

	if len(c.Records()) == 0 {
		t.Error("expected records to be collected under concurrent reporting")
	}
}

func TestWaveCollector_DurationTracksCloseTime(t *testing.T) {
	c := NewWaveCollector()
	time.Sleep(5 * time.Millisecond)
	c.Close()

	if c.Duration() <= 0 {
		t.Error("expected a positive duration after close")
	}
}

func TestReplayCollector_CollectsRecords(t *testing.T) {
	c := NewReplayCollector()
	c.Report(scheduler.ReplayCompletion{Index: 0, Success: true, Endpoint: "/date-picker"})
	c.Report(scheduler.ReplayCompletion{Index: 1, Success: false, Error: "timeout"})
	c.Close()

	records := c.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].Error != "timeout" {
		t.Errorf("expected error to round-trip, got %s", records[1].Error)
	}
}
