// internal/escalation/toggle.go
package escalation

import "context"

// ToggleSelectors describe a two-state control such as follow/unfollow.
type ToggleSelectors struct {
	// Target is the control that performs the change, tried in order.
	Target []string `mapstructure:"target" yaml:"target"`
	// Done is the opposite-state control that appears once the change took effect.
	Done []string `mapstructure:"done" yaml:"done"`
	// DoneText is status text on the target that reflects completion.
	DoneText []string `mapstructure:"done_text" yaml:"done_text"`
	// Pending marks an in-flight request that may still complete on its own.
	Pending []string `mapstructure:"pending" yaml:"pending"`
}

// ToggleAction builds the Action for a selector-described toggle. The done indicators
// double as verification signals.
func ToggleAction(kind string, sel ToggleSelectors) Action {
	a := Action{Kind: kind, Target: sel.Target}
	for _, s := range sel.Done {
		a.Done = append(a.Done, VisibleSignal{Selector: s})
	}
	for _, t := range sel.Target {
		for _, text := range sel.DoneText {
			a.Done = append(a.Done, TextSignal{Selector: t, Contains: text})
		}
	}
	for _, s := range sel.Pending {
		a.Pending = append(a.Pending, VisibleSignal{Selector: s})
	}
	return a
}

// Toggle runs a robust action for a selector-described toggle.
func (e *Executor) Toggle(ctx context.Context, kind string, sel ToggleSelectors, opts Options) Result {
	return e.RobustAction(ctx, ToggleAction(kind, sel), opts)
}
