// internal/monitor/monitor.go
package monitor

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/clock"
	"github.com/xkilldash9x/actuator/internal/surface"
)

// ProfileSwitcher swaps the caller's behavioral parameter profile.
// SwitchProfile returns false when no profile with that name exists.
type ProfileSwitcher interface {
	SwitchProfile(name string) bool
}

// Snapshot is a copy of every state record held by the monitor.
type Snapshot struct {
	SessionStart time.Time
	Fatigue      FatigueState
	Burst        BurstState
	SoftError    SoftErrorState
}

// Monitor watches one session for liveness loss, transient UI errors and long-run fatigue.
type Monitor struct {
	mu sync.Mutex

	cfg      Config
	logger   *zap.Logger
	clock    clock.Clock
	rng      *rand.Rand
	surface  surface.Surface
	liveness *LivenessTracker
	profiles ProfileSwitcher

	sessionStart time.Time
	fatigue      FatigueState
	burst        BurstState
	soft         SoftErrorState
}

// New creates a monitor for a session starting now. The fatigue threshold is drawn
// once here from [FatigueMin, FatigueMax].
func New(cfg Config, logger *zap.Logger, clk clock.Clock, rng *rand.Rand, s surface.Surface, liveness *LivenessTracker) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	now := clk.Now()
	if liveness == nil {
		liveness = NewLivenessTracker(now)
	}
	if cfg.SoftErrorCeiling <= 0 {
		cfg.SoftErrorCeiling = 3
	}

	m := &Monitor{
		cfg:          cfg,
		logger:       logger.Named("monitor"),
		clock:        clk,
		rng:          rng,
		surface:      s,
		liveness:     liveness,
		sessionStart: now,
	}
	m.fatigue = FatigueState{Threshold: uniformDuration(rng, cfg.FatigueMin, cfg.FatigueMax)}
	m.logger.Debug("Monitor initialized.", zap.Duration("fatigue_threshold", m.fatigue.Threshold))
	return m
}

// SetProfileSwitcher registers the target of the one-time fatigue profile swap.
func (m *Monitor) SetProfileSwitcher(p ProfileSwitcher) {
	m.mu.Lock()
	m.profiles = p
	m.mu.Unlock()
}

// SetSessionStart overrides the session start time used for fatigue.
func (m *Monitor) SetSessionStart(t time.Time) {
	m.mu.Lock()
	m.sessionStart = t
	m.mu.Unlock()
}

// Liveness returns the tracker fed by surface activity events.
func (m *Monitor) Liveness() *LivenessTracker { return m.liveness }

// Snapshot copies the current state records.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		SessionStart: m.sessionStart,
		Fatigue:      m.fatigue,
		Burst:        m.burst,
		SoftError:    m.soft,
	}
}

func uniformDuration(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int63n(int64(hi-lo)+1))
}
