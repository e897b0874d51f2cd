// Package core provides primitives shared by every other package: a mockable
// clock, virtual-user identity selection, and small test doubles.
package core

import (
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// UserMode controls how a virtual user identity is chosen for a journey invocation.
type UserMode string

const (
	// UserModeFixed always returns the same configured id.
	UserModeFixed UserMode = "fixed"
	// UserModeRandom generates a fresh id for every invocation.
	UserModeRandom UserMode = "random"
	// UserModePool draws uniformly from a pre-generated pool of ids.
	UserModePool UserMode = "pool"
)

// UserSource selects a virtual user identity per journey invocation.
type UserSource struct {
	mode  UserMode
	fixed string
	pool  []string
	mu    sync.Mutex
	rng   *rand.Rand
}

// NewFixedUserSource always yields the given id.
func NewFixedUserSource(id string) *UserSource {
	return &UserSource{mode: UserModeFixed, fixed: id}
}

// NewRandomUserSource generates a fresh UUID-derived id on every call to Next.
func NewRandomUserSource() *UserSource {
	return &UserSource{mode: UserModeRandom}
}

// NewPoolUserSource pre-generates n random ids and draws uniformly from them.
// n must be >= 1.
func NewPoolUserSource(n int) *UserSource {
	pool := make([]string, n)
	for i := range pool {
		pool[i] = freshID()
	}
	return &UserSource{
		mode: UserModePool,
		pool: pool,
		rng:  rand.New(rand.NewSource(rand.Int63())),
	}
}

// Next returns the virtual user identity for the next journey invocation.
func (s *UserSource) Next() string {
	switch s.mode {
	case UserModeRandom:
		return freshID()
	case UserModePool:
		s.mu.Lock()
		idx := s.rng.Intn(len(s.pool))
		s.mu.Unlock()
		return s.pool[idx]
	default:
		return s.fixed
	}
}

// freshID returns a short opaque string derived from a random UUID.
// The full UUID is unnecessarily long for a query-string uid; the target
// only needs an opaque, collision-resistant token.
func freshID() string {
	return "u-" + uuid.New().String()[:12]
}
