// Package session derives and memoizes the (load token, play identifier)
// pair every journey needs, fetching lazily against the target and
// ensuring at most one fetch is ever in flight per (user, puzzle) key.
package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"crossword-loadgen/internal/httpx"
)

// Tokens holds the derived session for a (user, puzzle) pair. A session is
// valid iff LoadToken is non-empty; Error explains an invalid session.
type Tokens struct {
	LoadToken string
	PlayID    string
	Error     string
}

// Valid reports whether the session can be used in dependent steps.
func (t Tokens) Valid() bool {
	return t.LoadToken != ""
}

// entry is either resolved (tokens set, done closed) or pending (done open,
// other goroutines wait on it).
type entry struct {
	done   chan struct{}
	tokens Tokens
}

// Store is a process-wide memoization table from "user|puzzle" to derived
// session tokens. It is safe for concurrent use; for any key at most one
// fetch is ever in flight, and every concurrent caller for that key
// observes the same result.
type Store struct {
	client  httpx.Doer
	baseURL string
	series  string

	mu      sync.Mutex
	entries map[string]*entry
}

// New builds a Store that derives sessions against client using the given
// target base URL and tenant series identifier (the "set" query parameter).
// client is anything satisfying httpx.Doer, so an *httpx.AuthDecorator can
// be handed in wherever a plain *httpx.Client would go.
func New(client httpx.Doer, baseURL, series string) *Store {
	if len(baseURL) > 0 && baseURL[len(baseURL)-1] != '/' {
		baseURL += "/"
	}
	return &Store{
		client:  client,
		baseURL: baseURL,
		series:  series,
		entries: make(map[string]*entry),
	}
}

func (s *Store) resolve(path string) string {
	return s.baseURL + path
}

func key(user, puzzle string) string {
	return user + "|" + puzzle
}

// GetOrCreate returns the session for (user, puzzle), fetching it from the
// target if this is the first request for the key. Concurrent callers for
// the same key share one fetch.
func (s *Store) GetOrCreate(ctx context.Context, user, puzzle string) Tokens {
	k := key(user, puzzle)

	s.mu.Lock()
	e, exists := s.entries[k]
	if !exists {
		e = &entry{done: make(chan struct{})}
		s.entries[k] = e
	}
	s.mu.Unlock()

	if exists {
		<-e.done
		return e.tokens
	}

	e.tokens = s.fetch(ctx, user, puzzle)
	close(e.done)
	return e.tokens
}

// Peek returns the session for (user, puzzle) without triggering a fetch,
// and whether one was already resolved.
func (s *Store) Peek(user, puzzle string) (Tokens, bool) {
	s.mu.Lock()
	e, ok := s.entries[key(user, puzzle)]
	s.mu.Unlock()
	if !ok {
		return Tokens{}, false
	}
	select {
	case <-e.done:
		return e.tokens, true
	default:
		return Tokens{}, false
	}
}

func (s *Store) fetch(ctx context.Context, user, puzzle string) Tokens {
	loadToken, err := s.fetchLoadToken(ctx, user)
	if err != nil {
		return Tokens{Error: err.Error()}
	}

	playID, err := s.fetchPlayID(ctx, user, puzzle, loadToken)
	if err != nil {
		// A load token without a play id is still a usable, if degraded,
		// session: step 3 stashes playId itself when it succeeds.
		return Tokens{LoadToken: loadToken, Error: err.Error()}
	}

	return Tokens{LoadToken: loadToken, PlayID: playID}
}

func (s *Store) fetchLoadToken(ctx context.Context, user string) (string, error) {
	u := fmt.Sprintf("%s?set=%s&uid=%s", "date-picker", url.QueryEscape(s.series), url.QueryEscape(user))
	_, body, err := httpx.Get(ctx, s.client, s.resolve(u))
	if err != nil {
		return "", fmt.Errorf("session: fetch date-picker: %w", err)
	}

	params, err := httpx.ExtractParams(body)
	if err != nil {
		return "", fmt.Errorf("session: date-picker params: %w", err)
	}

	rawsps := params.Get("rawsps").String()
	decoded, err := httpx.DecodeBase64JSON(rawsps)
	if err != nil {
		return "", fmt.Errorf("session: decode rawsps: %w", err)
	}

	loadToken := decoded.Get("loadToken").String()
	if loadToken == "" {
		return "", fmt.Errorf("session: date-picker response missing loadToken")
	}
	return loadToken, nil
}

func (s *Store) fetchPlayID(ctx context.Context, user, puzzle, loadToken string) (string, error) {
	src := fmt.Sprintf("%s?set=%s&uid=%s", "date-picker", url.QueryEscape(s.series), url.QueryEscape(user))
	u := fmt.Sprintf("crossword?id=%s&set=%s&picker=date-picker&src=%s&uid=%s&loadToken=%s",
		url.QueryEscape(puzzle), url.QueryEscape(s.series), url.QueryEscape(src),
		url.QueryEscape(user), url.QueryEscape(loadToken))

	_, body, err := httpx.Get(ctx, s.client, s.resolve(u))
	if err != nil {
		return "", fmt.Errorf("session: fetch crossword: %w", err)
	}

	params, err := httpx.ExtractParams(body)
	if err != nil {
		return "", fmt.Errorf("session: crossword params: %w", err)
	}

	rawp := params.Get("rawp").String()
	if rawp == "" {
		return "", nil
	}
	decoded, err := httpx.DecodeBase64JSON(rawp)
	if err != nil {
		return "", fmt.Errorf("session: decode rawp: %w", err)
	}
	return decoded.Get("playId").String(), nil
}

// Key identifies a (user, puzzle) pair to warm in bulk.
type Key struct {
	User   string
	Puzzle string
}

// Limiter paces BulkWarm's fetch rate. golang.org/x/time/rate.Limiter and
// ratelimit.RateLimiter both satisfy it structurally; the interface lives
// here rather than in ratelimit so this package doesn't have to import
// ratelimit (which imports config, which imports journey, which imports
// session).
type Limiter interface {
	Wait(ctx context.Context) error
}

// BulkWarm runs GetOrCreate for every key on a worker pool bounded by
// parallelism, calling progress every 50 completions and once more at the
// end. It never returns an error: individual fetch failures are recorded
// in the resulting Tokens, not propagated. limiter, if non-nil, paces the
// fetch rate so a large pre-warm phase doesn't itself hammer the target
// faster than the run it's warming up for.
func (s *Store) BulkWarm(ctx context.Context, keys []Key, parallelism int, limiter Limiter, progress func(done, total int)) {
	if len(keys) == 0 {
		return
	}
	if parallelism <= 0 {
		parallelism = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	var mu sync.Mutex
	completed := 0
	report := func() {
		mu.Lock()
		completed++
		n := completed
		mu.Unlock()
		if progress != nil && (n%50 == 0 || n == len(keys)) {
			progress(n, len(keys))
		}
	}

	for _, k := range keys {
		k := k
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			s.GetOrCreate(ctx, k.User, k.Puzzle)
			report()
			return nil
		})
	}
	_ = g.Wait()
}
