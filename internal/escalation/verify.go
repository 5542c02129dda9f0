// internal/escalation/verify.go
package escalation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/surface"
)

// Signal is an independent effect check evaluated against the surface.
type Signal interface {
	Name() string
	Check(ctx context.Context, s surface.Surface) (bool, error)
}

// VisibleSignal is positive when the selector resolves to a visible element.
type VisibleSignal struct {
	Selector string
}

func (v VisibleSignal) Name() string { return "visible:" + v.Selector }

func (v VisibleSignal) Check(ctx context.Context, s surface.Surface) (bool, error) {
	h, err := s.Locate(ctx, v.Selector)
	if errors.Is(err, surface.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return h.Visible(ctx)
}

// GoneSignal is positive when the selector no longer resolves to a visible element.
type GoneSignal struct {
	Selector string
}

func (g GoneSignal) Name() string { return "gone:" + g.Selector }

func (g GoneSignal) Check(ctx context.Context, s surface.Surface) (bool, error) {
	visible, err := VisibleSignal(g).Check(ctx, s)
	if err != nil {
		return false, err
	}
	return !visible, nil
}

// TextSignal is positive when the element's text (or Attribute, when set) contains
// Contains, compared case-insensitively.
type TextSignal struct {
	Selector  string
	Attribute string
	Contains  string
}

func (t TextSignal) Name() string { return "text:" + t.Selector + "~" + t.Contains }

func (t TextSignal) Check(ctx context.Context, s surface.Surface) (bool, error) {
	h, err := s.Locate(ctx, t.Selector)
	if errors.Is(err, surface.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	got, err := h.TextOrAttribute(ctx, t.Attribute)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(got), strings.ToLower(t.Contains)), nil
}

// SignalFunc adapts a function to the Signal interface.
type SignalFunc func(ctx context.Context, s surface.Surface) (bool, error)

func (f SignalFunc) Name() string { return "func" }

func (f SignalFunc) Check(ctx context.Context, s surface.Surface) (bool, error) {
	return f(ctx, s)
}

// anySignal evaluates signals in order and returns the first positive one.
func (e *Executor) anySignal(ctx context.Context, signals []Signal) (Signal, bool) {
	for _, sig := range signals {
		ok, err := sig.Check(ctx, e.surface)
		if err != nil {
			e.logger.Debug("Signal check failed.", zap.String("signal", sig.Name()), zap.Error(err))
			continue
		}
		if ok {
			return sig, true
		}
	}
	return nil, false
}

// VerifyOutcome polls signals every poll until one is positive or timeout elapses.
// The first check happens immediately. A signal that errors counts as negative.
// With no signals there is nothing to disprove and the outcome is accepted.
// The error is non-nil only when ctx ends.
func (e *Executor) VerifyOutcome(ctx context.Context, signals []Signal, timeout, poll time.Duration) (bool, error) {
	if len(signals) == 0 {
		return true, nil
	}
	if timeout <= 0 {
		timeout = e.cfg.VerifyTimeout
	}
	if poll <= 0 {
		poll = e.cfg.VerifyPoll
	}
	deadline := e.clock.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if sig, ok := e.anySignal(ctx, signals); ok {
			e.logger.Debug("Outcome verified.", zap.String("signal", sig.Name()))
			return true, nil
		}
		remaining := deadline.Sub(e.clock.Now())
		if remaining <= 0 {
			return false, nil
		}
		if err := e.clock.Sleep(ctx, min(poll, remaining)); err != nil {
			return false, err
		}
	}
}
