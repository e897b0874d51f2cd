package scheduler

import (
	"sync"
	"time"
)

// CompletionLatch is the idiomatic Go substitute for Java's
// CountDownLatch.await(timeout): a WaitGroup raced against a timer.
type CompletionLatch struct {
	wg sync.WaitGroup
}

func (l *CompletionLatch) Add(n int) { l.wg.Add(n) }
func (l *CompletionLatch) Done()     { l.wg.Done() }

// Await blocks until every added unit calls Done or timeout elapses,
// reporting which happened first.
func (l *CompletionLatch) Await(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
