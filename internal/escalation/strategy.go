// internal/escalation/strategy.go
package escalation

import (
	"context"

	"github.com/xkilldash9x/actuator/internal/humanoid"
	"github.com/xkilldash9x/actuator/internal/surface"
)

// Strategy is one rung of an escalation ladder. Attempt succeeds when it executes
// without error; whether the action had an effect is checked separately.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, target surface.Handle) error
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context, target surface.Handle) error

type namedStrategy struct {
	name string
	fn   StrategyFunc
}

func (s namedStrategy) Name() string { return s.name }

func (s namedStrategy) Attempt(ctx context.Context, target surface.Handle) error {
	return s.fn(ctx, target)
}

// NewStrategy names fn as a ladder rung.
func NewStrategy(name string, fn StrategyFunc) Strategy {
	return namedStrategy{name: name, fn: fn}
}

// Canonical rung names.
const (
	StrategyHumanClick      = "human_click"
	StrategyRawClick        = "raw_click"
	StrategyForcedClick     = "forced_click"
	StrategyProgrammatic    = "programmatic_activation"
	StrategyPointerDispatch = "pointer_event_dispatch"
	StrategyFocusAndKey     = "focus_and_key"
)

// Clicker performs a simulated human click. *humanoid.Humanoid satisfies it.
type Clicker interface {
	Click(ctx context.Context, target surface.Handle, profile humanoid.MotionProfile, opts *humanoid.ClickOptions) (humanoid.ClickResult, error)
}

var _ Clicker = (*humanoid.Humanoid)(nil)

// DefaultLadder returns the canonical ladder: simulated human click, raw click, forced
// click, programmatic activation, synthetic pointer events, then focus plus Enter.
func DefaultLadder(h Clicker, kb surface.Keyboard, profile humanoid.MotionProfile) []Strategy {
	noFallback := false
	noRetries := 0
	return []Strategy{
		NewStrategy(StrategyHumanClick, func(ctx context.Context, t surface.Handle) error {
			// The ladder provides the fallbacks, so the click model must not force-click on its own.
			res, err := h.Click(ctx, t, profile, &humanoid.ClickOptions{MaxRetries: &noRetries, Fallback: &noFallback})
			if err != nil {
				return err
			}
			if !res.Success {
				return errHumanClickMissed
			}
			return nil
		}),
		NewStrategy(StrategyRawClick, func(ctx context.Context, t surface.Handle) error {
			return t.Click(ctx)
		}),
		NewStrategy(StrategyForcedClick, func(ctx context.Context, t surface.Handle) error {
			return t.ForceClick(ctx)
		}),
		NewStrategy(StrategyProgrammatic, func(ctx context.Context, t surface.Handle) error {
			return t.Activate(ctx)
		}),
		NewStrategy(StrategyPointerDispatch, func(ctx context.Context, t surface.Handle) error {
			return t.DispatchPointerEvents(ctx)
		}),
		NewStrategy(StrategyFocusAndKey, func(ctx context.Context, t surface.Handle) error {
			if err := t.Focus(ctx); err != nil {
				return err
			}
			return kb.Press(ctx, "Enter")
		}),
	}
}
