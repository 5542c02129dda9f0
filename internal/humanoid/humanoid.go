// internal/humanoid/humanoid.go
package humanoid

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/clock"
	"github.com/xkilldash9x/actuator/internal/monitor"
	"github.com/xkilldash9x/actuator/internal/surface"
)

// Humanoid drives the pointer of one surface with physically plausible motion.
type Humanoid struct {
	// mu protects pos, rng and mods. It is never held across a call into the
	// pointer, a handle or the clock.
	mu      sync.Mutex
	cfg     Config
	logger  *zap.Logger
	clock   clock.Clock
	rng     *rand.Rand
	pointer surface.Pointer
	pos     PointerState
	mods    *monitor.Modifiers
}

// New creates a Humanoid whose pointer starts at a random point of the viewport.
func New(cfg Config, logger *zap.Logger, clk clock.Clock, rng *rand.Rand, pointer surface.Pointer) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = 16 * time.Millisecond
	}
	if cfg.StablePolls <= 0 {
		cfg.StablePolls = 1
	}
	if cfg.TrackingIterations <= 0 {
		cfg.TrackingIterations = 1
	}

	h := &Humanoid{
		cfg:     cfg,
		logger:  logger.Named("humanoid"),
		clock:   clk,
		rng:     rng,
		pointer: pointer,
	}
	h.pos = PointerState{
		X: rng.Float64() * cfg.ViewportWidth,
		Y: rng.Float64() * cfg.ViewportHeight,
	}
	return h
}

// Position returns the current pointer state.
func (h *Humanoid) Position() PointerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

// SetModifiers applies fatigue multipliers to later motion. Nil clears them.
func (h *Humanoid) SetModifiers(m *monitor.Modifiers) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m == nil {
		h.mods = nil
		return
	}
	c := *m
	h.mods = &c
}

// Config returns the motion parameters in use.
func (h *Humanoid) Config() Config { return h.cfg }

func (h *Humanoid) modifiers() monitor.Modifiers {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mods == nil {
		return monitor.Modifiers{SpeedFactor: 1, HoldFactor: 1, HesitationFactor: 1}
	}
	return *h.mods
}

func (h *Humanoid) setPosition(p Vector2D) {
	if !p.IsFinite() {
		return
	}
	h.mu.Lock()
	h.pos = PointerState{X: p.X, Y: p.Y}
	h.mu.Unlock()
}
