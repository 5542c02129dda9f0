// internal/escalation/robust.go
package escalation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/monitor"
	"github.com/xkilldash9x/actuator/internal/surface"
)

// State is the phase a robust action ended in.
type State string

const (
	StatePrecheck   State = "PRECHECK"
	StateAttempting State = "ATTEMPTING"
	StateReloading  State = "RELOADING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
	StateFatal      State = "FATAL"
)

// Scope selects the pacing delay taken before the first attempt.
type Scope int

const (
	ScopeSession Scope = iota
	ScopeSubAction
)

// Action is a logical state-changing action.
type Action struct {
	Kind string
	// Target selectors are tried in order on every attempt.
	Target []string
	// Done signals report that the desired state already holds.
	Done []Signal
	// Pending signals report an in-flight state change that may resolve on its own.
	Pending []Signal
	// Verify signals confirm the effect after an escalation. Empty means Done.
	Verify []Signal
	// Ladder overrides the executor's ladder when set.
	Ladder []Strategy
}

// Options tune a single robust action. Zero values use the executor config.
type Options struct {
	Scope       Scope
	SkipPacing  bool
	MaxAttempts int
	// PostReloadAttempts below zero disables the reload escalation.
	PostReloadAttempts int
	// ReloadTarget is navigated to instead of reloading the current location.
	ReloadTarget  string
	VerifyTimeout time.Duration
	VerifyPoll    time.Duration
	Backoff       Range
}

// Result describes how a robust action ended. Callers must not retry a Fatal result.
type Result struct {
	Success  bool
	Attempts int
	Reason   Reason
	Fatal    bool
	Err      error
	State    State
	Reloaded bool
	Log      []ActionAttempt
}

type attemptOutcome int

const (
	attemptFailed attemptOutcome = iota
	attemptSucceeded
	attemptSatisfied
	attemptFatal
	attemptCancelled
)

// RobustAction runs the pre-check, pacing, attempt loop and a single reload escalation
// for a. Expected failures are reported in the Result rather than as errors.
func (e *Executor) RobustAction(ctx context.Context, a Action, opts Options) Result {
	log := e.logger.With(zap.String("kind", a.Kind))
	res := Result{State: StatePrecheck}

	if e.precheck(ctx, a) {
		log.Info("Target state already satisfied.")
		res.Success, res.Reason, res.State = true, ReasonAlreadySatisfied, StateSucceeded
		return res
	}
	if err := ctx.Err(); err != nil {
		return e.cancelled(res, err)
	}

	if !opts.SkipPacing {
		pacing := e.cfg.SessionPacing
		if opts.Scope == ScopeSubAction {
			pacing = e.cfg.SubActionPacing
		}
		if err := e.clock.Sleep(ctx, e.sample(pacing)); err != nil {
			return e.cancelled(res, err)
		}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.cfg.MaxAttempts
	}
	postReload := opts.PostReloadAttempts
	if postReload == 0 {
		postReload = e.cfg.PostReloadAttempts
	}

	res.State = StateAttempting
	budget := maxAttempts
	attempt := 0
	for {
		for attempt < budget {
			attempt++
			res.Attempts = attempt

			switch e.attempt(ctx, a, opts, &res) {
			case attemptSucceeded:
				log.Info("Action verified.", zap.Int("attempts", attempt), zap.Bool("reloaded", res.Reloaded))
				res.Success, res.Reason, res.State, res.Err = true, ReasonVerified, StateSucceeded, nil
				return res
			case attemptSatisfied:
				log.Info("Target state satisfied mid-loop.", zap.Int("attempt", attempt))
				res.Attempts = attempt - 1
				res.Success, res.Reason, res.State, res.Err = true, ReasonSatisfiedMidLoop, StateSucceeded, nil
				return res
			case attemptCancelled:
				return e.cancelled(res, res.Err)
			case attemptFatal:
				res.Fatal, res.State = true, StateFatal
				log.Error("Action aborted.", zap.String("reason", string(res.Reason)), zap.Error(res.Err))
				return res
			}

			log.Debug("Attempt failed.", zap.Int("attempt", attempt), zap.String("reason", string(res.Reason)), zap.Error(res.Err))
			if attempt < budget {
				if err := e.clock.Sleep(ctx, e.attemptBackoff(attempt)); err != nil {
					return e.cancelled(res, err)
				}
			}
		}

		if res.Reloaded || postReload <= 0 {
			break
		}

		res.State = StateReloading
		res.Reloaded = true
		log.Warn("Attempts exhausted, reloading surface.", zap.Int("attempts", attempt))
		if err := e.reload(ctx, opts.ReloadTarget); err != nil {
			if ctx.Err() != nil {
				return e.cancelled(res, ctx.Err())
			}
			res.Fatal, res.State, res.Reason = true, StateFatal, ReasonReloadFailed
			res.Err = fmt.Errorf("%w: %w", ErrReloadFailed, err)
			log.Error("Reload escalation failed.", zap.Error(err))
			return res
		}
		if err := e.clock.Sleep(ctx, e.cfg.ReloadSettle); err != nil {
			return e.cancelled(res, err)
		}
		res.State = StateAttempting
		budget += postReload
	}

	res.State = StateFailed
	if res.Reason == "" {
		res.Reason = ReasonAttemptsExhausted
	}
	log.Warn("Action failed.", zap.Int("attempts", res.Attempts), zap.String("reason", string(res.Reason)))
	return res
}

// attempt runs one iteration of the loop and records its reason in res.
func (e *Executor) attempt(ctx context.Context, a Action, opts Options, res *Result) attemptOutcome {
	e.dismissOverlays(ctx)

	if e.health != nil {
		if snap := e.health.CheckHealth(ctx); !snap.Healthy {
			res.Reason, res.Err = ReasonSessionUnhealthy, snap.Err()
			return attemptFatal
		}
		if _, err := e.health.CheckSoftError(ctx, opts.ReloadTarget); err != nil {
			if monitor.IsFatal(err) {
				res.Reason, res.Err = ReasonSoftErrorCeiling, err
				return attemptFatal
			}
			if ctx.Err() != nil {
				res.Err = ctx.Err()
				return attemptCancelled
			}
			e.logger.Debug("Soft error recovery failed.", zap.Error(err))
		}
	}

	if _, ok := e.anySignal(ctx, a.Done); ok {
		return attemptSatisfied
	}

	// Handles go stale across waits, so every attempt resolves a fresh one.
	target, err := surface.LocateFirst(ctx, e.surface, a.Target...)
	if err != nil {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return attemptCancelled
		}
		res.Reason, res.Err = ReasonTargetNotFound, err
		return attemptFailed
	}

	ladder := a.Ladder
	if ladder == nil {
		ladder = e.ladder
	}
	ok, log, err := e.escalate(ctx, target, ladder, opts.Backoff)
	res.Log = append(res.Log, log...)
	if err != nil {
		res.Err = err
		return attemptCancelled
	}
	if !ok {
		res.Reason, res.Err = ReasonExecutionFailed, failedLadderError(log)
		return attemptFailed
	}

	signals := a.Verify
	if len(signals) == 0 {
		signals = a.Done
	}
	verified, err := e.VerifyOutcome(ctx, signals, opts.VerifyTimeout, opts.VerifyPoll)
	if err != nil {
		res.Err = err
		return attemptCancelled
	}
	if !verified {
		res.Reason, res.Err = ReasonVerificationFailed, ErrVerificationTimeout
		return attemptFailed
	}
	return attemptSucceeded
}

// precheck reports whether the desired state already holds, giving a pending state
// one short wait to resolve.
func (e *Executor) precheck(ctx context.Context, a Action) bool {
	if _, ok := e.anySignal(ctx, a.Done); ok {
		return true
	}
	if _, pending := e.anySignal(ctx, a.Pending); !pending {
		return false
	}
	e.logger.Debug("Pending state observed, waiting for it to resolve.", zap.String("kind", a.Kind))
	if err := e.clock.Sleep(ctx, e.cfg.PendingWait); err != nil {
		return false
	}
	_, ok := e.anySignal(ctx, a.Done)
	return ok
}

// dismissOverlays presses Escape once when a transient dialog is visible.
func (e *Executor) dismissOverlays(ctx context.Context) {
	for _, sel := range e.cfg.OverlaySelectors {
		if visible, _ := (VisibleSignal{Selector: sel}).Check(ctx, e.surface); !visible {
			continue
		}
		if err := e.surface.Keyboard().Press(ctx, "Escape"); err != nil {
			e.logger.Debug("Overlay dismissal failed.", zap.String("selector", sel), zap.Error(err))
		}
		return
	}
}

func (e *Executor) attemptBackoff(attempt int) time.Duration {
	d := e.cfg.AttemptBackoffBase + time.Duration(attempt)*e.cfg.AttemptBackoffStep + e.jitter(e.cfg.AttemptJitter)
	return max(d, 0)
}

func (e *Executor) reload(ctx context.Context, target string) error {
	if target != "" {
		return e.surface.Navigate(ctx, target)
	}
	return e.surface.Reload(ctx)
}

func (e *Executor) cancelled(res Result, err error) Result {
	res.Reason, res.Err, res.State = ReasonCancelled, err, StateFailed
	e.logger.Debug("Action abandoned.", zap.String("state", string(res.State)), zap.Error(err))
	return res
}
