// internal/humanoid/types.go
package humanoid

import (
	"errors"
	"time"
)

var (
	// ErrTargetNotFound means no bounding box was obtained during the stability wait.
	ErrTargetNotFound = errors.New("humanoid: target not found")
	// ErrTargetUnstable means a box was measured but never settled before the ceiling.
	ErrTargetUnstable = errors.New("humanoid: target unstable")
	// ErrTargetMoving means the box kept shifting away from the pointer during tracking.
	ErrTargetMoving = errors.New("humanoid: target kept moving")
)

// PointerState is the last known simulated pointer position. Coordinates are always finite.
type PointerState struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vector converts the state to a point.
func (p PointerState) Vector() Vector2D { return Vector2D{X: p.X, Y: p.Y} }

// MotionProfile tunes one click. It is immutable for the duration of the action.
type MotionProfile struct {
	HoverMin time.Duration `mapstructure:"hover_min" yaml:"hover_min"`
	HoverMax time.Duration `mapstructure:"hover_max" yaml:"hover_max"`
	// Hold overrides the sampled press duration when positive.
	Hold       time.Duration `mapstructure:"hold" yaml:"hold"`
	Hesitation time.Duration `mapstructure:"hesitation" yaml:"hesitation"`
	MicroMove  bool          `mapstructure:"micro_move" yaml:"micro_move"`
	// HighPrecision narrows the aim spread and widens the margin band.
	HighPrecision bool `mapstructure:"high_precision" yaml:"high_precision"`
}

// DefaultProfile is a relaxed, ordinary click.
func DefaultProfile() MotionProfile {
	return MotionProfile{
		HoverMin:   120 * time.Millisecond,
		HoverMax:   450 * time.Millisecond,
		Hesitation: 80 * time.Millisecond,
		MicroMove:  true,
	}
}

// ClickOptions adjusts a single Click call.
type ClickOptions struct {
	// StabilityTimeout is the ceiling of the stability wait. Zero means the configured default.
	StabilityTimeout time.Duration
	// MaxRetries bounds whole-click retries after errors. Nil means the configured default.
	MaxRetries *int
	// Fallback controls the raw forced click issued when the target is missing or every
	// retry failed. If nil, the fallback is enabled.
	Fallback *bool
}

func (o *ClickOptions) fallbackEnabled() bool {
	return o == nil || o.Fallback == nil || *o.Fallback
}

// ClickResult reports how a click went. X and Y are set only on success.
type ClickResult struct {
	Success      bool
	UsedFallback bool
	X, Y         *float64
	Attempts     int
}
