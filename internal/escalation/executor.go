// internal/escalation/executor.go
package escalation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/clock"
	"github.com/xkilldash9x/actuator/internal/monitor"
	"github.com/xkilldash9x/actuator/internal/surface"
)

// Outcome classifies a single strategy attempt.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeFailed   Outcome = "failed"
)

// ActionAttempt records one strategy invocation.
type ActionAttempt struct {
	StrategyIndex int
	Strategy      string
	Outcome       Outcome
	Err           error
}

// HealthGate is the slice of the session monitor consulted between attempts.
// *monitor.Monitor satisfies it.
type HealthGate interface {
	CheckHealth(ctx context.Context) monitor.HealthSnapshot
	CheckSoftError(ctx context.Context, reloadTarget string) (bool, error)
}

var _ HealthGate = (*monitor.Monitor)(nil)

// Executor turns logical actions into escalating strategy attempts with outcome
// verification. It is driven by a single caller at a time.
type Executor struct {
	mu      sync.Mutex // guards rng
	cfg     Config
	logger  *zap.Logger
	clock   clock.Clock
	rng     *rand.Rand
	surface surface.Surface
	health  HealthGate
	ladder  []Strategy
}

// New builds an executor. health may be nil, in which case the health and soft-error
// gates are skipped. ladder is used when an action does not carry its own.
func New(cfg Config, logger *zap.Logger, clk clock.Clock, rng *rand.Rand, s surface.Surface, health HealthGate, ladder []Strategy) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.StrategyBackoff.IsZero() {
		cfg.StrategyBackoff = def.StrategyBackoff
	}
	if cfg.VerifyPoll <= 0 {
		cfg.VerifyPoll = def.VerifyPoll
	}
	return &Executor{
		cfg:     cfg,
		logger:  logger.Named("escalation"),
		clock:   clk,
		rng:     rng,
		surface: s,
		health:  health,
		ladder:  ladder,
	}
}

// Config returns the effective configuration.
func (e *Executor) Config() Config { return e.cfg }

func (e *Executor) sample(r Range) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.Sample(e.rng)
}

func (e *Executor) jitter(spread time.Duration) time.Duration {
	if spread <= 0 {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(e.rng.Int63n(int64(2*spread)+1)) - spread
}

// ExecuteWithEscalation tries the ladder in order and stops at the first strategy that
// executes without error, waiting a random delay from backoff between strategies.
// It returns false when every strategy failed. The error is non-nil only when ctx ends.
func (e *Executor) ExecuteWithEscalation(ctx context.Context, target surface.Handle, ladder []Strategy, backoff Range) (bool, error) {
	ok, _, err := e.escalate(ctx, target, ladder, backoff)
	return ok, err
}

func (e *Executor) escalate(ctx context.Context, target surface.Handle, ladder []Strategy, backoff Range) (bool, []ActionAttempt, error) {
	if ladder == nil {
		ladder = e.ladder
	}
	if backoff.IsZero() {
		backoff = e.cfg.StrategyBackoff
	}
	attempts := make([]ActionAttempt, 0, len(ladder))

	for i, s := range ladder {
		if err := ctx.Err(); err != nil {
			return false, attempts, err
		}
		if i > 0 {
			if err := e.clock.Sleep(ctx, e.sample(backoff)); err != nil {
				return false, attempts, err
			}
		}

		err := s.Attempt(ctx, target)
		a := ActionAttempt{StrategyIndex: i, Strategy: s.Name(), Outcome: OutcomeExecuted, Err: err}
		if err != nil {
			a.Outcome = OutcomeFailed
		}
		attempts = append(attempts, a)

		if err == nil {
			e.logger.Debug("Strategy executed.", zap.String("strategy", s.Name()), zap.Int("index", i))
			return true, attempts, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, attempts, ctxErr
		}
		e.logger.Debug("Strategy failed, escalating.",
			zap.String("strategy", s.Name()),
			zap.Int("index", i),
			zap.Error(err))
	}
	return false, attempts, nil
}

// failedLadderError folds the attempt log into an ErrActionExecutionFailed.
func failedLadderError(attempts []ActionAttempt) error {
	errs := make([]error, 0, len(attempts))
	for _, a := range attempts {
		if a.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Strategy, a.Err))
		}
	}
	return fmt.Errorf("%w: %w", ErrActionExecutionFailed, errors.Join(errs...))
}
