// internal/monitor/fatigue.go
package monitor

import (
	"math"
	"time"

	"go.uber.org/zap"
)

// FatigueState is the session-wide behavioral decay record. Active flips from false
// to true at most once and never resets.
type FatigueState struct {
	Threshold      time.Duration
	Elapsed        time.Duration
	Active         bool
	ActivatedAt    time.Time
	BiasLevel      float64
	ProfileSwapped bool
}

// Advance updates the elapsed time and activates fatigue when the threshold has
// passed. The flag is true only on the call that activated it.
func (s FatigueState) Advance(sessionStart, now time.Time) (FatigueState, bool) {
	s.Elapsed = now.Sub(sessionStart)
	if s.Active || s.Elapsed <= s.Threshold {
		return s, false
	}
	s.Active = true
	s.ActivatedAt = now
	return s, true
}

// Level grows linearly from 0 at activation to 1 after window, then stays at 1.
func (s FatigueState) Level(now time.Time, window time.Duration) float64 {
	if !s.Active {
		return 0
	}
	if window <= 0 {
		return 1
	}
	l := float64(now.Sub(s.ActivatedAt)) / float64(window)
	return math.Max(0, math.Min(1, l))
}

// Modifiers scale motion parameters while fatigued.
type Modifiers struct {
	Level float64
	// SpeedFactor divides movement durations (values below 1 slow the cursor).
	SpeedFactor float64
	// HoldFactor multiplies click hold times.
	HoldFactor float64
	// HesitationFactor multiplies hover, hesitation and pacing pauses.
	HesitationFactor float64
}

// ModifiersForLevel derives the multipliers for a fatigue level in [0, 1].
func ModifiersForLevel(level float64) Modifiers {
	level = math.Max(0, math.Min(1, level))
	return Modifiers{
		Level:            level,
		SpeedFactor:      1 - 0.35*level,
		HoldFactor:       1 + 0.5*level,
		HesitationFactor: 1 + level,
	}
}

// CheckFatigue activates fatigue once the session has run longer than its threshold.
// The first activation performs the one-time profile swap, or raises the internal
// bias flag when no fatigued profile is available. Later calls return false.
func (m *Monitor) CheckFatigue(now time.Time) bool {
	m.mu.Lock()
	next, triggered := m.fatigue.Advance(m.sessionStart, now)
	m.fatigue = next
	profiles := m.profiles
	name := m.cfg.FatigueProfile
	m.mu.Unlock()

	if !triggered {
		return false
	}

	swapped := profiles != nil && name != "" && profiles.SwitchProfile(name)

	m.mu.Lock()
	m.fatigue.ProfileSwapped = swapped
	if !swapped {
		m.fatigue.BiasLevel = 1
	}
	m.mu.Unlock()

	m.logger.Info("Session fatigue activated.",
		zap.Duration("elapsed", next.Elapsed),
		zap.Duration("threshold", next.Threshold),
		zap.Bool("profile_swapped", swapped))
	return true
}

// FatigueModifiers returns nil while fatigue is inactive.
func (m *Monitor) FatigueModifiers() *Modifiers {
	now := m.clock.Now()
	m.mu.Lock()
	state := m.fatigue
	window := m.cfg.FatigueDecayWindow
	m.mu.Unlock()

	if !state.Active {
		return nil
	}
	mods := ModifiersForLevel(state.Level(now, window))
	return &mods
}
