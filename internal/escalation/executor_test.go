// internal/escalation/executor_test.go
package escalation

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/clock"
	"github.com/xkilldash9x/actuator/internal/humanoid"
	"github.com/xkilldash9x/actuator/internal/monitor"
	"github.com/xkilldash9x/actuator/internal/surface"
	"github.com/xkilldash9x/actuator/internal/surface/surfacetest"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var buttonBox = &surface.Rect{X: 200, Y: 300, Width: 90, Height: 32}

// stubHealth is a scriptable HealthGate.
type stubHealth struct {
	mu           sync.Mutex
	snapshot     monitor.HealthSnapshot
	softErr      error
	healthChecks int
	softTargets  []string
	// onCheck runs on every health check with its 1-based count.
	onCheck func(n int)
}

func newStubHealth() *stubHealth {
	return &stubHealth{snapshot: monitor.HealthSnapshot{Healthy: true}}
}

func (s *stubHealth) CheckHealth(ctx context.Context) monitor.HealthSnapshot {
	s.mu.Lock()
	s.healthChecks++
	n, hook, snap := s.healthChecks, s.onCheck, s.snapshot
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return snap
}

func (s *stubHealth) CheckSoftError(ctx context.Context, reloadTarget string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.softTargets = append(s.softTargets, reloadTarget)
	return false, s.softErr
}

// setupExecutor builds an Executor on virtual time with a deterministic RNG.
func setupExecutor(t *testing.T, ladder []Strategy) (*Executor, *surfacetest.Surface, *clock.Fake, *stubHealth) {
	t.Helper()
	clk := clock.NewFake(testEpoch)
	s := surfacetest.New()
	h := newStubHealth()
	e := New(DefaultConfig(), zap.NewNop(), clk, rand.New(rand.NewSource(42)), s, h, ladder)
	return e, s, clk, h
}

// scriptedLadder returns one strategy per result and the indices invoked, in order.
func scriptedLadder(results ...error) ([]Strategy, *[]int) {
	var calls []int
	ladder := make([]Strategy, len(results))
	for i, r := range results {
		ladder[i] = NewStrategy("rung", func(ctx context.Context, _ surface.Handle) error {
			calls = append(calls, i)
			return r
		})
	}
	return ladder, &calls
}

var errRung = errors.New("rung failed")

func TestExecuteWithEscalation_StopsAtFirstExecutedStrategy(t *testing.T) {
	ladder, calls := scriptedLadder(errRung, errRung, nil, nil)
	e, s, clk, _ := setupExecutor(t, nil)
	btn := s.Add("#btn", buttonBox)

	ok, err := e.ExecuteWithEscalation(context.Background(), btn, ladder, Range{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{0, 1, 2}, *calls)

	sleeps := clk.Sleeps()
	require.Len(t, sleeps, 2, "waits only between strategies")
	for _, d := range sleeps {
		assert.GreaterOrEqual(t, d, 300*time.Millisecond)
		assert.LessOrEqual(t, d, 800*time.Millisecond)
	}
}

func TestExecuteWithEscalation_AllFail(t *testing.T) {
	ladder, calls := scriptedLadder(errRung, errRung, errRung)
	e, s, clk, _ := setupExecutor(t, nil)
	btn := s.Add("#btn", buttonBox)

	ok, err := e.ExecuteWithEscalation(context.Background(), btn, ladder, Range{Min: time.Second, Max: time.Second})
	require.NoError(t, err, "strategy failures are not errors")
	assert.False(t, ok)
	assert.Equal(t, []int{0, 1, 2}, *calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clk.Sleeps())
}

func TestExecuteWithEscalation_UsesExecutorLadderByDefault(t *testing.T) {
	ladder, calls := scriptedLadder(nil)
	e, s, _, _ := setupExecutor(t, ladder)

	ok, err := e.ExecuteWithEscalation(context.Background(), s.Add("#btn", buttonBox), nil, Range{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{0}, *calls)
}

func TestExecuteWithEscalation_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var later bool
	ladder := []Strategy{
		NewStrategy("cancels", func(ctx context.Context, _ surface.Handle) error {
			cancel()
			return ctx.Err()
		}),
		NewStrategy("never", func(context.Context, surface.Handle) error {
			later = true
			return nil
		}),
	}
	e, s, _, _ := setupExecutor(t, nil)

	ok, err := e.ExecuteWithEscalation(ctx, s.Add("#btn", buttonBox), ladder, Range{})
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, later)
}

func TestExecuteWithEscalation_Property(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	props := gopter.NewProperties(params)

	props.Property("never exceeds the ladder and stops at the first executed rung", prop.ForAll(
		func(n, firstOK int) bool {
			results := make([]error, n)
			for i := range results {
				results[i] = errRung
				if i >= firstOK {
					results[i] = nil
				}
			}
			ladder, calls := scriptedLadder(results...)
			e, s, _, _ := setupExecutor(t, nil)

			ok, err := e.ExecuteWithEscalation(context.Background(), s.Add("#btn", buttonBox), ladder, Range{})
			if err != nil {
				return false
			}
			want := min(firstOK+1, n)
			if len(*calls) != want || ok != (firstOK < n) {
				return false
			}
			for i, c := range *calls {
				if c != i {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 8),
		gen.IntRange(0, 10),
	))

	props.TestingRun(t)
}

func TestVerifyOutcome(t *testing.T) {
	t.Run("positive on the first poll", func(t *testing.T) {
		e, s, clk, _ := setupExecutor(t, nil)
		s.Add("#following", buttonBox)

		ok, err := e.VerifyOutcome(context.Background(), []Signal{VisibleSignal{Selector: "#following"}}, time.Second, 100*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, clk.Sleeps())
	})

	t.Run("positive after polling", func(t *testing.T) {
		e, _, clk, _ := setupExecutor(t, nil)
		checks := 0
		sig := SignalFunc(func(context.Context, surface.Surface) (bool, error) {
			checks++
			return checks >= 3, nil
		})

		ok, err := e.VerifyOutcome(context.Background(), []Signal{sig}, time.Second, 250*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, clk.Sleeps())
	})

	t.Run("times out", func(t *testing.T) {
		e, _, clk, _ := setupExecutor(t, nil)

		ok, err := e.VerifyOutcome(context.Background(), []Signal{VisibleSignal{Selector: "#missing"}}, time.Second, 300*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, time.Second, clk.Slept(), "the final wait is cut to the deadline")
	})

	t.Run("erroring signals count as negative", func(t *testing.T) {
		e, s, _, _ := setupExecutor(t, nil)
		label := s.Add("#label", buttonBox)
		label.SetText("text", "Following")
		broken := SignalFunc(func(context.Context, surface.Surface) (bool, error) {
			return true, errors.New("execution context was destroyed")
		})

		ok, err := e.VerifyOutcome(context.Background(), []Signal{broken, TextSignal{Selector: "#label", Contains: "following"}}, time.Second, 0)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("no signals accepts", func(t *testing.T) {
		e, _, clk, _ := setupExecutor(t, nil)
		ok, err := e.VerifyOutcome(context.Background(), nil, time.Second, 0)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, clk.Sleeps())
	})

	t.Run("cancelled", func(t *testing.T) {
		e, _, _, _ := setupExecutor(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ok, err := e.VerifyOutcome(ctx, []Signal{VisibleSignal{Selector: "#x"}}, time.Second, 0)
		assert.False(t, ok)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSignals(t *testing.T) {
	_, s, _, _ := setupExecutor(t, nil)
	ctx := context.Background()
	btn := s.Add("#btn", buttonBox)
	btn.SetText("aria-pressed", "true")

	ok, err := TextSignal{Selector: "#btn", Attribute: "aria-pressed", Contains: "TRUE"}.Check(ctx, s)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = GoneSignal{Selector: "#btn"}.Check(ctx, s)
	require.NoError(t, err)
	assert.False(t, ok)

	btn.SetVisible(false)
	ok, _ = GoneSignal{Selector: "#btn"}.Check(ctx, s)
	assert.True(t, ok)

	ok, err = TextSignal{Selector: "#nope", Contains: "x"}.Check(ctx, s)
	require.NoError(t, err, "a missing element is a negative signal")
	assert.False(t, ok)
}

// fakeClicker records the options the ladder passes to the click model.
type fakeClicker struct {
	res  humanoid.ClickResult
	err  error
	opts []*humanoid.ClickOptions
}

func (f *fakeClicker) Click(ctx context.Context, target surface.Handle, profile humanoid.MotionProfile, opts *humanoid.ClickOptions) (humanoid.ClickResult, error) {
	f.opts = append(f.opts, opts)
	return f.res, f.err
}

func TestDefaultLadder_Order(t *testing.T) {
	ladder := DefaultLadder(&fakeClicker{}, surfacetest.New().Keyboard(), humanoid.DefaultProfile())
	names := make([]string, len(ladder))
	for i, s := range ladder {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{
		StrategyHumanClick,
		StrategyRawClick,
		StrategyForcedClick,
		StrategyProgrammatic,
		StrategyPointerDispatch,
		StrategyFocusAndKey,
	}, names)
}

func TestDefaultLadder_MissedHumanClickEscalatesToRawClick(t *testing.T) {
	e, s, _, _ := setupExecutor(t, nil)
	btn := s.Add("#btn", buttonBox)
	clicker := &fakeClicker{res: humanoid.ClickResult{Success: false}}

	ok, attempts, err := e.escalate(context.Background(), btn, DefaultLadder(clicker, s.Keyboard(), humanoid.DefaultProfile()), Range{})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, attempts, 2)
	assert.ErrorIs(t, attempts[0].Err, errHumanClickMissed)
	assert.Equal(t, OutcomeExecuted, attempts[1].Outcome)
	assert.Equal(t, 1, btn.Calls("click"))

	require.Len(t, clicker.opts, 1)
	require.NotNil(t, clicker.opts[0].Fallback)
	assert.False(t, *clicker.opts[0].Fallback, "the ladder owns the fallbacks")
	require.NotNil(t, clicker.opts[0].MaxRetries)
	assert.Zero(t, *clicker.opts[0].MaxRetries)
}

func TestDefaultLadder_FallsThroughToFocusAndEnter(t *testing.T) {
	e, s, clk, _ := setupExecutor(t, nil)
	btn := s.Add("#btn", buttonBox)
	btn.ClickErr = errors.New("element is covered")
	btn.ForceClickErr = errors.New("node is detached")
	btn.ActivateErr = errors.New("click is not a function")
	btn.DispatchErr = errors.New("dispatch rejected")
	clicker := &fakeClicker{err: humanoid.ErrTargetNotFound}

	ok, attempts, err := e.escalate(context.Background(), btn, DefaultLadder(clicker, s.Keyboard(), humanoid.DefaultProfile()), Range{})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, attempts, 6)
	for i, a := range attempts {
		assert.Equal(t, i, a.StrategyIndex)
	}
	assert.Equal(t, StrategyFocusAndKey, attempts[5].Strategy)
	assert.Equal(t, 1, btn.Calls("focus"))
	assert.Equal(t, 1, btn.Calls("key:enter"))
	assert.Equal(t, []string{"Enter"}, s.KeyRecorder().Keys())
	assert.Len(t, clk.Sleeps(), 5)

	assert.ErrorIs(t, failedLadderError(attempts[:5]), ErrActionExecutionFailed)
	assert.ErrorIs(t, failedLadderError(attempts[:5]), humanoid.ErrTargetNotFound)
}

func TestDefaultLadder_HumanClickWithMotionModel(t *testing.T) {
	e, s, clk, _ := setupExecutor(t, nil)
	btn := s.Add("#btn", buttonBox)
	h := humanoid.New(humanoid.DefaultConfig(), zap.NewNop(), clk, rand.New(rand.NewSource(3)), s.Pointer())

	ok, attempts, err := e.escalate(context.Background(), btn, DefaultLadder(h, s.Keyboard(), humanoid.DefaultProfile()), Range{})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, attempts, 1)
	assert.Equal(t, StrategyHumanClick, attempts[0].Strategy)
	assert.Equal(t, 1, btn.Calls("press"))
	assert.Zero(t, btn.Calls("click"))
	assert.Zero(t, btn.Calls("force"))
}

func TestRange_Sample(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	r := Range{Min: 8 * time.Second, Max: 15 * time.Second}
	for i := 0; i < 500; i++ {
		d := r.Sample(rng)
		require.GreaterOrEqual(t, d, r.Min)
		require.LessOrEqual(t, d, r.Max)
	}
	assert.Equal(t, time.Second, Range{Min: time.Second, Max: time.Second}.Sample(rng))
	d := Range{Min: 2 * time.Second, Max: time.Second}.Sample(rng)
	assert.True(t, d >= time.Second && d <= 2*time.Second)
}
