// Package inactivity decides, from an absolute last-activity instant, whether
// a console session is active, about to expire, or expired.
//
// The decision is recomputed from wall-clock deltas on every tick instead of
// chaining relative timers, so a context whose timers were throttled in the
// background still computes the right state when it resumes.
package inactivity

import (
	"fmt"
	"math"
	"time"

	"handyhub-admin-console/src/internal/models"
)

type State int

const (
	StateActive State = iota
	StateWarning
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateWarning:
		return "WARNING"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

type Config struct {
	IdleTimeout     time.Duration
	WarningWindow   time.Duration
	TickInterval    time.Duration
	FreshnessWindow time.Duration
}

func (c Config) Validate() error {
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idle timeout must be positive", models.ErrInvalidGuardConfig)
	}
	if c.WarningWindow <= 0 || c.WarningWindow >= c.IdleTimeout {
		return fmt.Errorf("%w: warning window must be positive and shorter than the idle timeout", models.ErrInvalidGuardConfig)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive", models.ErrInvalidGuardConfig)
	}
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("%w: freshness window must be positive", models.ErrInvalidGuardConfig)
	}
	return nil
}

// WarningThreshold is the idle time after which the warning is shown.
func (c Config) WarningThreshold() time.Duration {
	return c.IdleTimeout - c.WarningWindow
}

type Snapshot struct {
	State            State
	Elapsed          time.Duration
	Remaining        time.Duration
	RemainingSeconds int
}

// Evaluate applies the transition rules to one instant. Remaining time is
// always measured to expiry; RemainingSeconds rounds up so the countdown
// reads the full warning window at the moment the warning starts. Elapsed
// time is wall-clock time: the monotonic clock does not advance while the
// host is suspended, and the idle timeout must still fire after a resume.
func Evaluate(cfg Config, last, now time.Time) Snapshot {
	elapsed := now.Round(0).Sub(last.Round(0))
	if elapsed < 0 {
		elapsed = 0
	}

	if elapsed >= cfg.IdleTimeout {
		return Snapshot{State: StateExpired, Elapsed: elapsed}
	}

	remaining := cfg.IdleTimeout - elapsed
	state := StateActive
	if elapsed >= cfg.WarningThreshold() {
		state = StateWarning
	}

	return Snapshot{
		State:            state,
		Elapsed:          elapsed,
		Remaining:        remaining,
		RemainingSeconds: int(math.Ceil(remaining.Seconds())),
	}
}
