// Package config handles YAML configuration parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"crossword-loadgen/internal/collector"
	"crossword-loadgen/internal/core"
	"crossword-loadgen/internal/journey"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for a run.
type Config struct {
	Target      TargetConfig          `yaml:"target"`
	Users       UsersConfig           `yaml:"users,omitempty"`
	LoadProfile *LoadProfile          `yaml:"loadProfile,omitempty"`
	Replay      *ReplayConfig         `yaml:"replay,omitempty"`
	Thresholds  *collector.Thresholds `yaml:"thresholds,omitempty"`
	Auth        *AuthConfig           `yaml:"auth,omitempty"`
	Verbose     bool                  `yaml:"verbose,omitempty"`
}

// TargetConfig identifies the crossword service under test and the
// journey it should run.
type TargetConfig struct {
	BaseURL            string        `yaml:"baseUrl"`
	Series             string        `yaml:"series"`
	PuzzleID           string        `yaml:"puzzleId"`
	StateLen           int           `yaml:"stateLen,omitempty"`
	RequestTimeout     time.Duration `yaml:"requestTimeout,omitempty"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify,omitempty"`
	Variant            string        `yaml:"variant,omitempty"` // "standard" | "standard-plus-static-assets"
}

// JourneyVariant resolves the configured variant name to a journey.Variant,
// defaulting to the bare four-step journey for an empty or unknown value.
func (t TargetConfig) JourneyVariant() journey.Variant {
	if t.Variant == "standard-plus-static-assets" {
		return journey.WithStaticAssets
	}
	return journey.Standard
}

// UsersConfig controls how a virtual user identity is chosen per journey
// invocation.
type UsersConfig struct {
	Mode     core.UserMode `yaml:"mode,omitempty"` // "fixed" | "random" | "pool", default "fixed"
	Fixed    string        `yaml:"fixed,omitempty"`
	PoolSize int           `yaml:"poolSize,omitempty"`
}

// Source builds the core.UserSource this configuration describes.
func (u UsersConfig) Source() *core.UserSource {
	switch u.Mode {
	case core.UserModeRandom:
		return core.NewRandomUserSource()
	case core.UserModePool:
		n := u.PoolSize
		if n <= 0 {
			n = 1
		}
		return core.NewPoolUserSource(n)
	default:
		return core.NewFixedUserSource(u.Fixed)
	}
}

// AuthConfig holds OAuth2 client-credentials settings for an
// authenticated tenant.
type AuthConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	TokenURL     string `yaml:"tokenUrl"`
}

// LoadProfile defines the wave-mode load pattern for a run as a sequence
// of phases, generalizing the teacher's actor-count phases to virtual-user
// counts.
type LoadProfile struct {
	Phases []Phase `yaml:"phases"`
}

// TotalDuration returns the sum of all phase durations.
func (lp *LoadProfile) TotalDuration() time.Duration {
	var total time.Duration
	for _, p := range lp.Phases {
		total += p.Duration
	}
	return total
}

// Phase represents one segment of a wave-mode load profile. A phase with
// only VirtualUsers set runs a constant rate; StartVirtualUsers/
// EndVirtualUsers describe a ramp, resolved to a per-second rate schedule
// by the caller.
type Phase struct {
	Name              string        `yaml:"name"`
	Duration          time.Duration `yaml:"duration"`
	VirtualUsers      int           `yaml:"virtualUsers,omitempty"`
	StartVirtualUsers int           `yaml:"startVirtualUsers,omitempty"`
	EndVirtualUsers   int           `yaml:"endVirtualUsers,omitempty"`
	RPS               int           `yaml:"rps"`
}

// RateAt returns the wave rate a linear ramp phase should run at the
// given elapsed duration into the phase. Constant-rate phases (no ramp
// endpoints set) ignore elapsed and always return VirtualUsers.
func (p Phase) RateAt(elapsed time.Duration) int {
	if p.StartVirtualUsers == 0 && p.EndVirtualUsers == 0 {
		return p.VirtualUsers
	}
	if p.Duration <= 0 {
		return p.EndVirtualUsers
	}
	frac := float64(elapsed) / float64(p.Duration)
	if frac > 1 {
		frac = 1
	}
	return p.StartVirtualUsers + int(frac*float64(p.EndVirtualUsers-p.StartVirtualUsers))
}

// ReplayConfig controls trace-replay mode.
type ReplayConfig struct {
	TracePath        string  `yaml:"tracePath"`
	Speed            float64 `yaml:"speed,omitempty"`
	PoolSizeFactor   int     `yaml:"poolSizeFactor,omitempty"`
	PoolSizeCeiling  int     `yaml:"poolSizeCeiling,omitempty"`
	Streaming        bool    `yaml:"streaming,omitempty"`
	SaveSessionsTo   string  `yaml:"saveSessionsTo,omitempty"`
	LoadSessionsFrom string  `yaml:"loadSessionsFrom,omitempty"`
	DryRun           bool    `yaml:"dryRun,omitempty"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Target.StateLen <= 0 {
		cfg.Target.StateLen = 185
	}
	return &cfg, nil
}
