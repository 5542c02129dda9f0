// internal/session/config.go
package session

import (
	"time"

	"github.com/xkilldash9x/actuator/internal/humanoid"
)

// Names of the built-in motion profiles.
const (
	ProfileDefault  = "default"
	ProfileFatigued = "fatigued"
)

// Config holds session-wide settings.
type Config struct {
	// Deadline is the hard limit on a run when the plan does not set one.
	Deadline time.Duration `mapstructure:"deadline" yaml:"deadline"`
	// MaxActionsPerMinute caps click and toggle steps. Zero disables the cap.
	MaxActionsPerMinute float64 `mapstructure:"max_actions_per_minute" yaml:"max_actions_per_minute"`
	ActionBurst         int     `mapstructure:"action_burst" yaml:"action_burst"`
	// Seed makes a run reproducible. Zero seeds from the wall clock.
	Seed          int64 `mapstructure:"seed" yaml:"seed"`
	StopOnFailure bool  `mapstructure:"stop_on_failure" yaml:"stop_on_failure"`

	Profile  string                            `mapstructure:"profile" yaml:"profile"`
	Profiles map[string]humanoid.MotionProfile `mapstructure:"profiles" yaml:"profiles"`
}

// FatiguedProfile is the slower, less precise profile swapped in once fatigue sets in.
func FatiguedProfile() humanoid.MotionProfile {
	return humanoid.MotionProfile{
		HoverMin:   250 * time.Millisecond,
		HoverMax:   900 * time.Millisecond,
		Hesitation: 220 * time.Millisecond,
		MicroMove:  true,
	}
}

// DefaultConfig returns the session settings used unless configured otherwise.
func DefaultConfig() Config {
	return Config{
		Deadline:            30 * time.Minute,
		MaxActionsPerMinute: 6,
		ActionBurst:         2,
		Profile:             ProfileDefault,
		Profiles: map[string]humanoid.MotionProfile{
			ProfileDefault:  humanoid.DefaultProfile(),
			ProfileFatigued: FatiguedProfile(),
		},
	}
}
