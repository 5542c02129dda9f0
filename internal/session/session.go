// internal/session/session.go
// Package session drives a scripted run over one surface. It binds the motion model,
// the escalating executor and the health monitor to a single cooperative stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/actuator/internal/clock"
	"github.com/xkilldash9x/actuator/internal/escalation"
	"github.com/xkilldash9x/actuator/internal/humanoid"
	"github.com/xkilldash9x/actuator/internal/monitor"
	"github.com/xkilldash9x/actuator/internal/surface"
)

var (
	// ErrDeadlineExceeded means the run hit its hard deadline. Work in flight is
	// abandoned without rollback.
	ErrDeadlineExceeded = errors.New("session: hard deadline exceeded")
	// ErrStepFailed stops a run configured with StopOnFailure.
	ErrStepFailed = errors.New("session: step failed")
)

// Step outcome codes not produced by the executor.
const (
	ReasonPaused           = "paused"
	ReasonNavigated        = "navigated"
	ReasonNavigationFailed = "navigation_failed"
	ReasonNoEligibleOption = "no_eligible_option"
)

// FatalError ends a run. Reason is the monitor or executor reason code.
type FatalError struct {
	Step   int
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("session: fatal at step %d (%s): %v", e.Step, e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// StepResult records how one executed step ended.
type StepResult struct {
	Index    int
	Kind     StepKind
	Name     string
	Success  bool
	Reason   string
	Attempts int
	Err      error
}

// Report summarizes a run.
type Report struct {
	SessionID  string
	Plan       string
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      []StepResult
	// Counters hold verified actions only, keyed by step name.
	Counters map[string]int
	Fatal    *FatalError
}

// Components are the engine parts a session drives.
type Components struct {
	Surface  surface.Surface
	Humanoid *humanoid.Humanoid
	Executor *escalation.Executor
	Monitor  *monitor.Monitor
}

// Session runs plans against one surface. Runs must not overlap.
type Session struct {
	id       string
	cfg      Config
	logger   *zap.Logger
	clock    clock.Clock
	surface  surface.Surface
	humanoid *humanoid.Humanoid
	executor *escalation.Executor
	monitor  *monitor.Monitor
	limiter  *rate.Limiter

	mu       sync.Mutex
	rng      *rand.Rand
	profile  string
	counters map[string]int
}

var _ monitor.ProfileSwitcher = (*Session)(nil)

// New binds already constructed components and registers the session as the
// monitor's profile switcher.
func New(cfg Config, logger *zap.Logger, clk clock.Clock, rng *rand.Rand, c Components) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	profiles := make(map[string]humanoid.MotionProfile, len(cfg.Profiles)+1)
	for name, p := range cfg.Profiles {
		profiles[name] = p
	}
	if len(profiles) == 0 {
		profiles = DefaultConfig().Profiles
	}
	if _, ok := profiles[ProfileDefault]; !ok {
		profiles[ProfileDefault] = humanoid.DefaultProfile()
	}
	cfg.Profiles = profiles
	if _, ok := cfg.Profiles[cfg.Profile]; !ok {
		cfg.Profile = ProfileDefault
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultConfig().Deadline
	}

	id := uuid.New().String()
	s := &Session{
		id:       id,
		cfg:      cfg,
		logger:   logger.Named("session").With(zap.String("session_id", id)),
		clock:    clk,
		surface:  c.Surface,
		humanoid: c.Humanoid,
		executor: c.Executor,
		monitor:  c.Monitor,
		rng:      rng,
		profile:  cfg.Profile,
		counters: make(map[string]int),
	}
	if cfg.MaxActionsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.MaxActionsPerMinute/60), max(cfg.ActionBurst, 1))
	}
	c.Monitor.SetProfileSwitcher(s)
	return s
}

// Assemble builds every component for s from its configuration. The components share
// clk and draw from generators derived from cfg.Seed.
func Assemble(cfg Config, hcfg humanoid.Config, ecfg escalation.Config, mcfg monitor.Config, logger *zap.Logger, clk clock.Clock, s surface.Surface) *Session {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	derive := func(n int64) *rand.Rand { return rand.New(rand.NewSource(seed + n)) }

	mon := monitor.New(mcfg, logger, clk, derive(1), s, nil)
	hum := humanoid.New(hcfg, logger, clk, derive(2), s.Pointer())
	exec := escalation.New(ecfg, logger, clk, derive(3), s, mon, nil)
	return New(cfg, logger, clk, derive(0), Components{Surface: s, Humanoid: hum, Executor: exec, Monitor: mon})
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Monitor returns the session's health monitor.
func (s *Session) Monitor() *monitor.Monitor { return s.monitor }

// SwitchProfile makes name the current motion profile.
func (s *Session) SwitchProfile(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cfg.Profiles[name]; !ok {
		return false
	}
	s.profile = name
	s.logger.Info("Motion profile switched.", zap.String("profile", name))
	return true
}

// Profile returns the current motion profile name.
func (s *Session) Profile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// motion resolves name, falling back to the current profile.
func (s *Session) motion(name string) humanoid.MotionProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.cfg.Profiles[name]; ok && name != "" {
		return p
	}
	return s.cfg.Profiles[s.profile]
}

// Counters copies the verified-action counters.
func (s *Session) Counters() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}

func (s *Session) count(name string) {
	s.mu.Lock()
	s.counters[name]++
	s.mu.Unlock()
}

// ActionOptions tune one click or toggle.
type ActionOptions struct {
	escalation.Options
	// Profile names the motion profile. Empty uses the session's current one.
	Profile string
}

// Click performs a verified click on the first matching target selector.
func (s *Session) Click(ctx context.Context, name string, target []string, verify []escalation.Signal, opts ActionOptions) escalation.Result {
	return s.act(ctx, escalation.Action{Kind: name, Target: target, Verify: verify}, opts)
}

// Toggle flips a two-state control unless it already shows the done state.
func (s *Session) Toggle(ctx context.Context, name string, sel escalation.ToggleSelectors, opts ActionOptions) escalation.Result {
	return s.act(ctx, escalation.ToggleAction(name, sel), opts)
}

func (s *Session) act(ctx context.Context, a escalation.Action, opts ActionOptions) escalation.Result {
	if err := s.throttle(ctx); err != nil {
		return escalation.Result{Reason: escalation.ReasonCancelled, State: escalation.StateFailed, Err: err}
	}
	a.Ladder = escalation.DefaultLadder(s.humanoid, s.surface.Keyboard(), s.motion(opts.Profile))
	res := s.executor.RobustAction(ctx, a, opts.Options)
	if res.Success && res.Reason == escalation.ReasonVerified {
		s.count(a.Kind)
	}
	return res
}

// throttle waits for the action rate limiter on the session clock.
func (s *Session) throttle(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	now := s.clock.Now()
	r := s.limiter.ReserveN(now, 1)
	d := r.DelayFrom(now)
	if d <= 0 {
		return nil
	}
	s.logger.Debug("Action rate cap reached, waiting.", zap.Duration("delay", d))
	if err := s.clock.Sleep(ctx, d); err != nil {
		r.CancelAt(s.clock.Now())
		return err
	}
	return nil
}

// Pause idles for a duration drawn from [lo, hi] with small hover drift.
func (s *Session) Pause(ctx context.Context, lo, hi time.Duration) error {
	d := lo
	if hi > lo {
		s.mu.Lock()
		d += time.Duration(s.rng.Int63n(int64(hi-lo) + 1))
		s.mu.Unlock()
	}
	return s.humanoid.Idle(ctx, d)
}

// Navigate loads url. A completed navigation counts as surface activity.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.surface.Navigate(ctx, url); err != nil {
		return err
	}
	s.monitor.Liveness().Touch(s.clock.Now())
	return nil
}

// touchLiveness stamps surface activity on the session clock.
func (s *Session) touchLiveness() {
	s.monitor.Liveness().Touch(s.clock.Now())
}

// Choose picks one option at random, weighted by the monitor's selection weights.
// It reports false when every adjusted weight is zero.
func (s *Session) Choose(options []Option) (Option, bool) {
	base := make(monitor.Weights, len(options))
	for _, o := range options {
		base[o.Step.label()] = o.Weight
	}
	weights := s.monitor.SelectionWeights(base)

	var total float64
	for _, o := range options {
		total += weights[o.Step.label()]
	}
	if total <= 0 {
		return Option{}, false
	}

	s.mu.Lock()
	x := s.rng.Float64() * total
	s.mu.Unlock()
	var last Option
	for _, o := range options {
		w := weights[o.Step.label()]
		if w <= 0 {
			continue
		}
		last = o
		if x < w {
			return o, true
		}
		x -= w
	}
	return last, true
}

// run is the state of one Run call.
type run struct {
	plan       *Plan
	report     *Report
	deadlineAt time.Time
	logger     *zap.Logger
}

// Run executes plan under a hard deadline (the plan's, else the configured one).
// Each step is gated on session health, soft-error recovery and the fatigue and burst
// state. Fatal conditions end the run with a *FatalError; a report is always returned.
func (s *Session) Run(ctx context.Context, plan *Plan) (*Report, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	deadline := plan.Deadline
	if deadline <= 0 {
		deadline = s.cfg.Deadline
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := s.clock.Now()
	s.monitor.SetSessionStart(start)
	s.monitor.Liveness().Touch(start)
	r := &run{
		plan:       plan,
		report:     &Report{SessionID: s.id, Plan: plan.Name, StartedAt: start},
		deadlineAt: start.Add(deadline),
		logger:     s.logger.With(zap.String("plan", plan.Name)),
	}
	r.logger.Info("Session run started.", zap.Int("steps", len(plan.Steps)), zap.Duration("deadline", deadline))

	g, gctx := errgroup.WithContext(runCtx)
	stepsCtx, stopListening := context.WithCancel(gctx)
	defer stopListening()
	if l, ok := s.surface.(surface.Listener); ok {
		g.Go(func() error {
			if err := l.Listen(stepsCtx, s.touchLiveness); err != nil && stepsCtx.Err() == nil {
				r.logger.Warn("Surface listener stopped.", zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		defer stopListening()
		return s.runPlan(stepsCtx, r)
	})
	err := g.Wait()

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w: %w", ErrDeadlineExceeded, err)
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		r.report.Fatal = fatal
	}
	r.report.FinishedAt = s.clock.Now()
	r.report.Counters = s.Counters()

	if err != nil {
		r.logger.Error("Session run ended early.", zap.Error(err), zap.Int("steps_run", len(r.report.Steps)))
		return r.report, err
	}
	r.logger.Info("Session run finished.", zap.Int("steps_run", len(r.report.Steps)), zap.Any("counters", r.report.Counters))
	return r.report, nil
}

func (s *Session) runPlan(ctx context.Context, r *run) error {
	if r.plan.StartURL != "" {
		if err := s.Navigate(ctx, r.plan.StartURL); err != nil {
			return fmt.Errorf("session: opening %s: %w", r.plan.StartURL, err)
		}
	}
	for i, step := range r.plan.Steps {
		rounds := 1
		if step.Kind == StepChoose && step.Rounds > 1 {
			rounds = step.Rounds
		}
		for round := 0; round < rounds; round++ {
			if err := s.checkpoint(ctx, r, i); err != nil {
				return err
			}
			res, err := s.runStep(ctx, r, i, step)
			r.report.Steps = append(r.report.Steps, res)
			if err != nil {
				return err
			}
			if !res.Success && s.cfg.StopOnFailure {
				return fmt.Errorf("%w: step %d (%s): %s", ErrStepFailed, i, res.Name, res.Reason)
			}
		}
	}
	return nil
}

// checkpoint runs the between-step gates.
func (s *Session) checkpoint(ctx context.Context, r *run, step int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.clock.Now()
	if !now.Before(r.deadlineAt) {
		return fmt.Errorf("%w: at step %d", ErrDeadlineExceeded, step)
	}

	if snap := s.monitor.CheckHealth(ctx); !snap.Healthy {
		return &FatalError{Step: step, Reason: snap.Reason, Err: snap.Err()}
	}
	if _, err := s.monitor.CheckSoftError(ctx, r.plan.ReloadTarget); err != nil {
		if monitor.IsFatal(err) {
			return &FatalError{Step: step, Reason: string(escalation.ReasonSoftErrorCeiling), Err: err}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("Soft error recovery failed.", zap.Error(err))
	}

	now = s.clock.Now()
	if s.monitor.CheckFatigue(now) {
		r.logger.Info("Fatigue set in.", zap.String("profile", s.Profile()))
	}
	s.humanoid.SetModifiers(s.monitor.FatigueModifiers())
	s.monitor.TickBurst(now)
	return nil
}

func (s *Session) runStep(ctx context.Context, r *run, i int, step Step) (StepResult, error) {
	if step.Kind != StepChoose {
		return s.execute(ctx, r, i, step)
	}
	opt, ok := s.Choose(step.Options)
	if !ok {
		r.logger.Debug("No eligible option.", zap.Int("step", i))
		return StepResult{Index: i, Kind: StepChoose, Name: step.label(), Success: true, Reason: ReasonNoEligibleOption}, nil
	}
	r.logger.Debug("Option chosen.", zap.Int("step", i), zap.String("option", opt.Step.label()))
	return s.execute(ctx, r, i, opt.Step)
}

// execute performs a single non-choose step.
func (s *Session) execute(ctx context.Context, r *run, i int, step Step) (StepResult, error) {
	out := StepResult{Index: i, Kind: step.Kind, Name: step.label()}
	opts := ActionOptions{
		Options: escalation.Options{Scope: step.scope(), ReloadTarget: r.plan.ReloadTarget},
		Profile: step.Profile,
	}

	switch step.Kind {
	case StepClick, StepToggle:
		var res escalation.Result
		if step.Kind == StepClick {
			res = s.Click(ctx, step.label(), step.Target, step.Verify.Signals(), opts)
		} else {
			res = s.Toggle(ctx, step.label(), *step.Toggle, opts)
		}
		out.Success, out.Reason, out.Attempts, out.Err = res.Success, string(res.Reason), res.Attempts, res.Err
		if res.Fatal {
			return out, &FatalError{Step: i, Reason: string(res.Reason), Err: res.Err}
		}
		if res.Reason == escalation.ReasonCancelled {
			return out, ctx.Err()
		}
		return out, nil

	case StepPause:
		if err := s.Pause(ctx, step.Min, step.Max); err != nil {
			out.Err = err
			return out, err
		}
		out.Success, out.Reason = true, ReasonPaused
		return out, nil

	case StepNavigate:
		if err := s.Navigate(ctx, step.URL); err != nil {
			out.Reason, out.Err = ReasonNavigationFailed, err
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			r.logger.Warn("Navigation failed.", zap.String("url", step.URL), zap.Error(err))
			return out, nil
		}
		out.Success, out.Reason = true, ReasonNavigated
		return out, nil
	}
	return out, fmt.Errorf("%w: unsupported step kind %q", ErrInvalidPlan, step.Kind)
}
