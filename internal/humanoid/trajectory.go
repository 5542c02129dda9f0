// internal/humanoid/trajectory.go
package humanoid

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// MoveTo moves the pointer from its current position to target along a noisy cubic
// Bezier path. A positive durationHint replaces the computed duration. Long moves
// sometimes overshoot and correct. Non-finite input is logged and ignored.
func (h *Humanoid) MoveTo(ctx context.Context, target Vector2D, durationHint time.Duration) error {
	start := h.Position().Vector()
	if !target.IsFinite() || !start.IsFinite() {
		h.logger.Warn("Ignoring move with non-finite coordinates.",
			zap.Float64("x", target.X), zap.Float64("y", target.Y))
		return nil
	}

	dist := start.Dist(target)
	if dist > h.cfg.OvershootDistance && h.float() < h.cfg.OvershootProbability {
		return h.moveWithOvershoot(ctx, start, target, durationHint)
	}
	return h.trace(ctx, start, target, h.moveDuration(dist, durationHint))
}

func (h *Humanoid) moveWithOvershoot(ctx context.Context, start, target Vector2D, durationHint time.Duration) error {
	vec := target.Sub(start)
	scale := h.uniform(h.cfg.OvershootScaleMin, h.cfg.OvershootScaleMax)
	lateral := vec.Normalize().Perp().Mul(h.norm() * h.cfg.OvershootLateral)
	over := start.Add(vec.Mul(scale)).Add(lateral)

	h.logger.Debug("Overshooting target.", zap.Float64("scale", scale))
	if err := h.trace(ctx, start, over, h.moveDuration(start.Dist(over), durationHint)); err != nil {
		return err
	}
	if err := h.clock.Sleep(ctx, h.uniformDuration(h.cfg.OvershootPauseMin, h.cfg.OvershootPauseMax)); err != nil {
		return err
	}
	return h.trace(ctx, over, target, h.uniformDuration(h.cfg.CorrectionMin, h.cfg.CorrectionMax))
}

// moveDuration applies jitter and the fatigue speed factor to the base duration.
func (h *Humanoid) moveDuration(dist float64, hint time.Duration) time.Duration {
	d := hint
	if d <= 0 {
		jitter := h.uniform(-float64(h.cfg.DurationJitter), float64(h.cfg.DurationJitter))
		d = h.cfg.BaseMoveDuration(dist) + time.Duration(jitter)
	}
	if speed := h.modifiers().SpeedFactor; speed > 0 {
		d = time.Duration(float64(d) / speed)
	}
	if d < h.cfg.MinDuration {
		d = h.cfg.MinDuration
	}
	return d
}

// controlNoise is the std-dev of the control point offsets for a path of length dist.
func (h *Humanoid) controlNoise(dist float64) float64 {
	return clamp(dist*h.cfg.ControlNoiseScale, h.cfg.ControlNoiseMin, h.cfg.ControlNoiseMax)
}

// generatePath samples n points of a cubic Bezier from start to end. Progress is
// eased so samples bunch up near the end, and every intermediate sample carries a
// tremor that shrinks to zero at the target. The last point is exactly end.
func (h *Humanoid) generatePath(start, end Vector2D, n int) []Vector2D {
	if n < 1 {
		n = 1
	}
	dist := start.Dist(end)
	dir := end.Sub(start)
	sigma := h.controlNoise(dist)

	p0, p3 := start, end
	p1 := start.Add(dir.Mul(1.0 / 3.0)).Add(Vector2D{X: h.norm() * sigma, Y: h.norm() * sigma})
	p2 := start.Add(dir.Mul(2.0 / 3.0)).Add(Vector2D{X: h.norm() * sigma, Y: h.norm() * sigma})

	path := make([]Vector2D, 0, n)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		if i == n {
			path = append(path, end)
			break
		}
		e := easeOutCubic(t)
		omt := 1 - e
		p := p0.Mul(omt * omt * omt).
			Add(p1.Mul(3 * omt * omt * e)).
			Add(p2.Mul(3 * omt * e * e)).
			Add(p3.Mul(e * e * e))

		amp := h.cfg.TremorAmplitude * (1 - t)
		p = p.Add(Vector2D{X: h.uniform(-1, 1) * amp, Y: h.uniform(-1, 1) * amp})
		if p.IsFinite() {
			path = append(path, p)
		}
	}
	return path
}

// trace dispatches the path from start to end over duration.
func (h *Humanoid) trace(ctx context.Context, start, end Vector2D, duration time.Duration) error {
	steps := int(math.Ceil(float64(duration) / float64(h.cfg.StepInterval)))
	if steps < 2 {
		steps = 2
	}
	if start.Dist(end) < 1 {
		steps = 1
	}
	path := h.generatePath(start, end, steps)
	pause := duration / time.Duration(len(path))

	for _, p := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.pointer.MoveTo(ctx, p.X, p.Y); err != nil {
			if ctx.Err() == nil {
				h.logger.Debug("Pointer move failed.", zap.Error(err))
			}
			return fmt.Errorf("humanoid: dispatching move: %w", err)
		}
		h.setPosition(p)
		if err := h.clock.Sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}
