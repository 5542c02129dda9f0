// internal/session/session_test.go
package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/actuator/internal/clock"
	"github.com/xkilldash9x/actuator/internal/escalation"
	"github.com/xkilldash9x/actuator/internal/humanoid"
	"github.com/xkilldash9x/actuator/internal/monitor"
	"github.com/xkilldash9x/actuator/internal/surface"
	"github.com/xkilldash9x/actuator/internal/surface/surfacetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	testEpoch  = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	followBox  = &surface.Rect{X: 200, Y: 150, Width: 90, Height: 32}
	likeBox    = &surface.Rect{X: 420, Y: 380, Width: 40, Height: 40}
	followStep = Step{
		Kind: StepToggle,
		Name: "follow",
		Toggle: &escalation.ToggleSelectors{
			Target: []string{"#follow"},
			Done:   []string{"#following"},
		},
	}
)

type fixture struct {
	sess    *Session
	surface *surfacetest.Surface
	clock   *clock.Fake
}

type fixtureOpt func(*Config, *monitor.Config)

// newFixture assembles a session over a fake surface whose network stays active as
// long as virtual time passes.
func newFixture(t *testing.T, logger *zap.Logger, opts ...fixtureOpt) fixture {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.MaxActionsPerMinute = 0
	mcfg := monitor.DefaultConfig()
	mcfg.BurstProbability = 0
	for _, o := range opts {
		o(&cfg, &mcfg)
	}

	s := surfacetest.New()
	clk := clock.NewFake(testEpoch)
	sess := Assemble(cfg, humanoid.DefaultConfig(), escalation.DefaultConfig(), mcfg, logger, clk, s)
	clk.OnSleep = func(now time.Time) { sess.Monitor().Liveness().Touch(now) }
	return fixture{sess: sess, surface: s, clock: clk}
}

// addFollow registers a follow button whose press reveals the following indicator.
func (f fixture) addFollow() (btn, done *surfacetest.Handle) {
	btn = f.surface.Add("#follow", followBox)
	done = f.surface.Add("#following", followBox)
	done.SetVisible(false)
	btn.OnActivate = func(string) { done.SetVisible(true) }
	return btn, done
}

func TestRun_ToggleCountsVerifiedActionsOnly(t *testing.T) {
	f := newFixture(t, nil)
	btn, _ := f.addFollow()

	plan := &Plan{Name: "follow-twice", Steps: []Step{followStep, followStep}}
	report, err := f.sess.Run(context.Background(), plan)
	require.NoError(t, err)

	require.Len(t, report.Steps, 2)
	assert.True(t, report.Steps[0].Success)
	assert.Equal(t, string(escalation.ReasonVerified), report.Steps[0].Reason)
	assert.Equal(t, 1, report.Steps[0].Attempts)
	assert.Equal(t, string(escalation.ReasonAlreadySatisfied), report.Steps[1].Reason)
	assert.Equal(t, map[string]int{"follow": 1}, report.Counters)
	assert.Equal(t, 1, btn.Calls("press"), "the human click lands once")
	assert.Nil(t, report.Fatal)
	assert.Equal(t, f.sess.ID(), report.SessionID)
	assert.True(t, report.FinishedAt.After(report.StartedAt))
}

func TestRun_ClickVerifiesWithSignals(t *testing.T) {
	f := newFixture(t, nil)
	like := f.surface.Add("#like", likeBox)
	liked := f.surface.Add("#liked", likeBox)
	liked.SetVisible(false)
	like.OnActivate = func(string) { liked.SetVisible(true) }

	plan := &Plan{Name: "like", Steps: []Step{{
		Kind:   StepClick,
		Name:   "like",
		Target: []string{"#missing", "#like"},
		Verify: &VerifySpec{Visible: []string{"#liked"}},
		Scope:  "sub_action",
	}}}
	report, err := f.sess.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, report.Steps, 1)
	assert.True(t, report.Steps[0].Success)
	assert.Equal(t, 1, report.Counters["like"])
}

func TestRun_CriticalErrorPageIsFatal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newFixture(t, zap.New(core))
	f.addFollow()
	f.surface.SetHTML(`<html><body><h1>Aw, Snap!</h1></body></html>`)

	report, err := f.sess.Run(context.Background(), &Plan{Name: "crash", Steps: []Step{followStep}})
	require.Error(t, err)
	assert.ErrorIs(t, err, monitor.ErrSessionUnhealthy)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "critical_error_page_crashed", fatal.Reason)
	assert.Equal(t, 0, fatal.Step)
	require.NotNil(t, report)
	assert.Same(t, fatal, report.Fatal)
	assert.Empty(t, report.Steps)
	assert.Empty(t, report.Counters)
	assert.Equal(t, 1, logs.FilterMessage("Session run ended early.").Len())
}

func TestRun_SoftErrorCeilingIsFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.surface.SetHTML(`<p>Something went wrong. Try reloading.</p>`)

	plan := &Plan{
		Name:         "soft",
		ReloadTarget: "https://surface.test/home",
		Steps:        []Step{{Kind: StepClick, Name: "like", Target: []string{"#like"}}},
	}
	report, err := f.sess.Run(context.Background(), plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, monitor.ErrSoftErrorCeiling)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, string(escalation.ReasonSoftErrorCeiling), fatal.Reason)
	require.Len(t, report.Steps, 1)
	assert.False(t, report.Steps[0].Success)
	// One recovery at the step gate, one inside the first attempt.
	assert.Equal(t, []string{plan.ReloadTarget, plan.ReloadTarget}, f.surface.Navigations())
}

func TestRun_HardDeadline(t *testing.T) {
	f := newFixture(t, nil)
	f.addFollow()
	pause := Step{Kind: StepPause, Min: 40 * time.Second, Max: 40 * time.Second}

	plan := &Plan{Name: "slow", Deadline: time.Minute, Steps: []Step{pause, pause, followStep}}
	report, err := f.sess.Run(context.Background(), plan)
	require.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.Len(t, report.Steps, 2, "the step past the deadline never starts")
	assert.Empty(t, report.Counters)
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	f.addFollow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.sess.Run(ctx, &Plan{Name: "x", Steps: []Step{followStep}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrDeadlineExceeded))
}

func TestRun_StopOnFailure(t *testing.T) {
	f := newFixture(t, nil, func(c *Config, _ *monitor.Config) { c.StopOnFailure = true })
	f.addFollow()
	failing := Step{Kind: StepNavigate, URL: "https://surface.test/gone"}
	f.surface.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	report, err := f.sess.Run(context.Background(), &Plan{Name: "stop", Steps: []Step{failing, followStep}})
	require.ErrorIs(t, err, ErrStepFailed)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, ReasonNavigationFailed, report.Steps[0].Reason)
}

func TestRun_StartURLAndNavigateStep(t *testing.T) {
	f := newFixture(t, nil)
	plan := &Plan{
		Name:     "nav",
		StartURL: "https://surface.test/start",
		Steps: []Step{
			{Kind: StepNavigate, URL: "https://surface.test/next"},
			{Kind: StepPause, Min: time.Second, Max: 2 * time.Second},
		},
	}
	report, err := f.sess.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://surface.test/start", "https://surface.test/next"}, f.surface.Navigations())
	require.Len(t, report.Steps, 2)
	assert.Equal(t, ReasonNavigated, report.Steps[0].Reason)
	assert.Equal(t, ReasonPaused, report.Steps[1].Reason)
}

func TestRun_FatigueSwapsProfile(t *testing.T) {
	f := newFixture(t, nil, func(_ *Config, m *monitor.Config) {
		m.FatigueMin, m.FatigueMax = time.Minute, time.Minute
	})
	plan := &Plan{Name: "long", Steps: []Step{
		{Kind: StepPause, Min: 70 * time.Second, Max: 70 * time.Second},
		{Kind: StepPause, Min: time.Second, Max: time.Second},
	}}
	_, err := f.sess.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, ProfileFatigued, f.sess.Profile())

	snap := f.sess.Monitor().Snapshot()
	assert.True(t, snap.Fatigue.Active)
	assert.True(t, snap.Fatigue.ProfileSwapped)
}

func TestRun_ChooseRounds(t *testing.T) {
	f := newFixture(t, nil)
	f.addFollow()
	plan := &Plan{Name: "choose", Steps: []Step{{
		Kind:   StepChoose,
		Rounds: 3,
		Options: []Option{
			{Weight: 1, Step: Step{Kind: StepPause, Name: "idle", Min: time.Second, Max: time.Second}},
			{Weight: 0, Step: followStep},
		},
	}}}
	report, err := f.sess.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, report.Steps, 3)
	for _, r := range report.Steps {
		assert.Equal(t, "idle", r.Name)
		assert.Equal(t, 0, r.Index)
	}
}

func TestChoose_BurstSuppressesIdle(t *testing.T) {
	f := newFixture(t, nil, func(_ *Config, m *monitor.Config) {
		m.BurstProbability = 1
		m.IdleActions = []string{"idle"}
	})
	require.Equal(t, monitor.ModeBurst, f.sess.Monitor().TickBurst(f.clock.Now()))

	options := []Option{
		{Weight: 5, Step: Step{Kind: StepPause, Name: "idle", Min: time.Second, Max: time.Second}},
		{Weight: 1, Step: followStep},
	}
	for i := 0; i < 50; i++ {
		o, ok := f.sess.Choose(options)
		require.True(t, ok)
		require.Equal(t, "follow", o.Step.Name)
	}
}

func TestChoose_NoEligibleOption(t *testing.T) {
	f := newFixture(t, nil)
	_, ok := f.sess.Choose([]Option{{Weight: 0, Step: followStep}})
	assert.False(t, ok)
}

func TestChoose_Distribution(t *testing.T) {
	f := newFixture(t, nil)
	options := []Option{
		{Weight: 3, Step: Step{Kind: StepNavigate, Name: "a", URL: "u"}},
		{Weight: 1, Step: Step{Kind: StepNavigate, Name: "b", URL: "u"}},
	}
	counts := map[string]int{}
	for i := 0; i < 4000; i++ {
		o, ok := f.sess.Choose(options)
		require.True(t, ok)
		counts[o.Step.Name]++
	}
	assert.InDelta(t, 3000, counts["a"], 200)
	assert.InDelta(t, 1000, counts["b"], 200)
}

func TestThrottle_CapsActionRate(t *testing.T) {
	f := newFixture(t, nil, func(c *Config, _ *monitor.Config) {
		c.MaxActionsPerMinute = 1
		c.ActionBurst = 1
	})
	_, done := f.addFollow()
	done.SetVisible(true)

	sel := *followStep.Toggle
	first := f.sess.Toggle(context.Background(), "follow", sel, ActionOptions{})
	second := f.sess.Toggle(context.Background(), "follow", sel, ActionOptions{})
	assert.Equal(t, escalation.ReasonAlreadySatisfied, first.Reason)
	assert.Equal(t, escalation.ReasonAlreadySatisfied, second.Reason)
	sleeps := f.clock.Sleeps()
	require.Len(t, sleeps, 1)
	assert.InDelta(t, float64(time.Minute), float64(sleeps[0]), float64(time.Millisecond))
}

func TestSwitchProfile(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, ProfileDefault, f.sess.Profile())
	assert.False(t, f.sess.SwitchProfile("sprinter"))
	assert.True(t, f.sess.SwitchProfile(ProfileFatigued))
	assert.Equal(t, ProfileFatigued, f.sess.Profile())
	assert.Equal(t, FatiguedProfile(), f.sess.motion(""))
	assert.Equal(t, humanoid.DefaultProfile(), f.sess.motion(ProfileDefault))
}

// listeningSurface reports one burst of activity and then blocks like a real backend.
type listeningSurface struct {
	*surfacetest.Surface
	listening atomic.Bool
}

func (l *listeningSurface) Listen(ctx context.Context, touch func()) error {
	l.listening.Store(true)
	touch()
	<-ctx.Done()
	return nil
}

func TestRun_ListenerFeedsLivenessAndStops(t *testing.T) {
	fake := surfacetest.New()
	ls := &listeningSurface{Surface: fake}
	clk := clock.NewFake(testEpoch)
	cfg := DefaultConfig()
	cfg.Seed = 11
	sess := Assemble(cfg, humanoid.DefaultConfig(), escalation.DefaultConfig(), monitor.DefaultConfig(), zap.NewNop(), clk, ls)

	plan := &Plan{Name: "listen", Steps: []Step{{Kind: StepPause, Min: time.Second, Max: time.Second}}}
	_, err := sess.Run(context.Background(), plan)
	require.NoError(t, err)
	// goleak in TestMain confirms the listener goroutine exited with the run.
	if ls.listening.Load() {
		// Listener activity is stamped on the session clock, never the wall clock.
		last := sess.Monitor().Liveness().LastActivity()
		assert.WithinRange(t, last, testEpoch, clk.Now())
		assert.Equal(t, time.UTC, last.Location())
	}
}
