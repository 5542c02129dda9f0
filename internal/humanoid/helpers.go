// internal/humanoid/helpers.go
package humanoid

import (
	"math"
	"time"

	"github.com/xkilldash9x/actuator/internal/surface"
)

// The helpers below draw from the shared RNG and take the lock for each draw.
// They must not be called while h.mu is held.

func (h *Humanoid) float() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64()
}

func (h *Humanoid) norm() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.NormFloat64()
}

func (h *Humanoid) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + h.float()*(hi-lo)
}

func (h *Humanoid) uniformDuration(lo, hi time.Duration) time.Duration {
	return time.Duration(h.uniform(float64(lo), float64(hi)))
}

// boundedGaussian samples N(mean, stdDev) clamped to [lo, hi].
func (h *Humanoid) boundedGaussian(mean, stdDev, lo, hi float64) float64 {
	return clamp(mean+h.norm()*stdDev, lo, hi)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// marginBand is the inner region of box a press is allowed to land in.
func (h *Humanoid) marginBand(box surface.Rect, precise bool) surface.Rect {
	frac := h.cfg.Margin
	if precise {
		frac = h.cfg.PrecisionMargin
	}
	frac = clamp(frac, 0, 0.49)
	return box.Inset(frac)
}

// clampToRect keeps p inside r.
func clampToRect(p Vector2D, r surface.Rect) Vector2D {
	return Vector2D{
		X: clamp(p.X, r.X, r.X+r.Width),
		Y: clamp(p.Y, r.Y, r.Y+r.Height),
	}
}

// easeOutCubic starts fast and settles onto the target.
func easeOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}
