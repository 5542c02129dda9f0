// internal/monitor/burst.go
package monitor

import (
	"time"

	"go.uber.org/zap"
)

// Mode is the engagement oscillator state.
type Mode string

const (
	ModeNormal Mode = "NORMAL"
	ModeBurst  Mode = "BURST"
)

// BurstState is a temporary high-engagement override.
type BurstState struct {
	Active    bool
	StartedAt time.Time
	EndsAt    time.Time
}

// ModeAt reports the mode at now. An expired burst reads as normal even before the
// record is updated.
func (b BurstState) ModeAt(now time.Time) Mode {
	if b.Active && !now.After(b.EndsAt) {
		return ModeBurst
	}
	return ModeNormal
}

// Expire clears the burst once now is past its end.
func (b BurstState) Expire(now time.Time) BurstState {
	if b.Active && now.After(b.EndsAt) {
		return BurstState{}
	}
	return b
}

// Enter starts a burst lasting d.
func (b BurstState) Enter(now time.Time, d time.Duration) BurstState {
	return BurstState{Active: true, StartedAt: now, EndsAt: now.Add(d)}
}

// TickBurst advances the oscillator by one cycle. From normal mode it enters a burst
// with the configured probability, unless fatigue is active.
func (m *Monitor) TickBurst(now time.Time) Mode {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.burst = m.burst.Expire(now)
	if m.burst.Active || m.fatigue.Active {
		return m.burst.ModeAt(now)
	}
	if m.rng.Float64() < m.cfg.BurstProbability {
		d := uniformDuration(m.rng, m.cfg.BurstMin, m.cfg.BurstMax)
		m.burst = m.burst.Enter(now, d)
		m.logger.Info("Entering burst mode.", zap.Duration("duration", d))
	}
	return m.burst.ModeAt(now)
}

// Mode returns the current oscillator mode without advancing it.
func (m *Monitor) Mode(now time.Time) Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.burst.ModeAt(now)
}

// Weights are relative action-selection probabilities keyed by action name.
type Weights map[string]float64

// SelectionWeights applies the burst and fatigue overrides to base. In burst mode idle
// actions are suppressed and every other action is boosted; while fatigued idle actions
// are favored in proportion to the fatigue level and bias.
func (m *Monitor) SelectionWeights(base Weights) Weights {
	now := m.clock.Now()
	m.mu.Lock()
	mode := m.burst.ModeAt(now)
	fatigue := m.fatigue
	window := m.cfg.FatigueDecayWindow
	boost := m.cfg.BurstBoost
	idle := make(map[string]bool, len(m.cfg.IdleActions))
	for _, name := range m.cfg.IdleActions {
		idle[name] = true
	}
	m.mu.Unlock()

	if boost <= 0 {
		boost = 1
	}
	out := make(Weights, len(base))
	level := fatigue.Level(now, window)
	for name, w := range base {
		switch {
		case mode == ModeBurst && idle[name]:
			out[name] = 0
		case mode == ModeBurst:
			out[name] = w * boost
		case fatigue.Active && idle[name]:
			out[name] = w * (1 + level + fatigue.BiasLevel)
		case fatigue.Active:
			out[name] = w * (1 - 0.5*level)
		default:
			out[name] = w
		}
	}
	return out
}
