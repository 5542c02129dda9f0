// internal/escalation/config.go
package escalation

import (
	"math/rand"
	"time"
)

// Range is an inclusive duration interval sampled uniformly.
type Range struct {
	Min time.Duration `mapstructure:"min" yaml:"min"`
	Max time.Duration `mapstructure:"max" yaml:"max"`
}

// Sample draws a duration from the range. A reversed range is swapped.
func (r Range) Sample(rng *rand.Rand) time.Duration {
	lo, hi := r.Min, r.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	if hi == lo {
		return lo
	}
	return lo + time.Duration(rng.Int63n(int64(hi-lo)+1))
}

// IsZero reports whether the range was left unset.
func (r Range) IsZero() bool { return r.Min == 0 && r.Max == 0 }

// Config holds the executor's timing and retry budget.
type Config struct {
	StrategyBackoff Range `mapstructure:"strategy_backoff" yaml:"strategy_backoff"`

	VerifyTimeout time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
	VerifyPoll    time.Duration `mapstructure:"verify_poll" yaml:"verify_poll"`

	MaxAttempts        int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	PostReloadAttempts int           `mapstructure:"post_reload_attempts" yaml:"post_reload_attempts"`
	AttemptBackoffBase time.Duration `mapstructure:"attempt_backoff_base" yaml:"attempt_backoff_base"`
	AttemptBackoffStep time.Duration `mapstructure:"attempt_backoff_step" yaml:"attempt_backoff_step"`
	AttemptJitter      time.Duration `mapstructure:"attempt_jitter" yaml:"attempt_jitter"`

	SessionPacing   Range `mapstructure:"session_pacing" yaml:"session_pacing"`
	SubActionPacing Range `mapstructure:"sub_action_pacing" yaml:"sub_action_pacing"`

	PendingWait  time.Duration `mapstructure:"pending_wait" yaml:"pending_wait"`
	ReloadSettle time.Duration `mapstructure:"reload_settle" yaml:"reload_settle"`

	// OverlaySelectors match transient dialogs dismissed with Escape before each attempt.
	OverlaySelectors []string `mapstructure:"overlay_selectors" yaml:"overlay_selectors"`
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		StrategyBackoff:    Range{Min: 300 * time.Millisecond, Max: 800 * time.Millisecond},
		VerifyTimeout:      5 * time.Second,
		VerifyPoll:         250 * time.Millisecond,
		MaxAttempts:        5,
		PostReloadAttempts: 2,
		AttemptBackoffBase: time.Second,
		AttemptBackoffStep: time.Second,
		AttemptJitter:      500 * time.Millisecond,
		SessionPacing:      Range{Min: 8 * time.Second, Max: 15 * time.Second},
		SubActionPacing:    Range{Min: 1500 * time.Millisecond, Max: 4 * time.Second},
		PendingWait:        2 * time.Second,
		ReloadSettle:       3 * time.Second,
		OverlaySelectors:   []string{`[role="dialog"][aria-modal="true"]`, `[data-testid="sheetDialog"]`},
	}
}
