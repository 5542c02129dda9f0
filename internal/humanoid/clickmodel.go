// internal/humanoid/clickmodel.go
package humanoid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/surface"
)

// Click waits for target to settle, tracks it with the pointer and presses it.
// Expected failures come back as a structured result. A missing target yields
// {Success: false, UsedFallback: true} after one forced click (unless disabled).
// Errors inside the attempt retry the whole click with exponential backoff; once
// retries are exhausted a forced click is issued, and only its error is returned.
func (h *Humanoid) Click(ctx context.Context, target surface.Handle, profile MotionProfile, opts *ClickOptions) (ClickResult, error) {
	retries := h.cfg.MaxRetries
	if opts != nil && opts.MaxRetries != nil {
		retries = *opts.MaxRetries
	}
	timeout := h.cfg.StabilityTimeout
	if opts != nil && opts.StabilityTimeout > 0 {
		timeout = opts.StabilityTimeout
	}

	var lastErr error
	attempt := 0
	for ; attempt <= retries; attempt++ {
		if attempt > 0 {
			backoff := h.cfg.RetryBase * time.Duration(math.Pow(2, float64(attempt)))
			h.logger.Debug("Retrying click.", zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
			if err := h.clock.Sleep(ctx, backoff); err != nil {
				return ClickResult{Attempts: attempt}, err
			}
		}

		res, err := h.clickOnce(ctx, target, profile, timeout)
		if err == nil {
			res.Attempts = attempt + 1
			return res, nil
		}
		if ctx.Err() != nil {
			return ClickResult{Attempts: attempt + 1}, ctx.Err()
		}
		if errors.Is(err, ErrTargetNotFound) || errors.Is(err, ErrTargetUnstable) {
			h.logger.Debug("Click target unavailable.", zap.String("selector", target.Selector()), zap.Error(err))
			res := ClickResult{UsedFallback: true, Attempts: attempt + 1}
			if opts.fallbackEnabled() {
				if ferr := target.ForceClick(ctx); ferr != nil {
					h.logger.Debug("Fallback click on missing target failed.", zap.Error(ferr))
				}
			}
			return res, nil
		}
		lastErr = err
		h.logger.Warn("Click attempt failed.",
			zap.String("selector", target.Selector()), zap.Int("attempt", attempt+1), zap.Error(err))
	}

	res := ClickResult{UsedFallback: true, Attempts: attempt}
	if !opts.fallbackEnabled() {
		res.UsedFallback = false
		return res, nil
	}
	h.logger.Info("Click retries exhausted, forcing click.",
		zap.String("selector", target.Selector()), zap.NamedError("last_error", lastErr))
	if err := target.ForceClick(ctx); err != nil {
		return res, fmt.Errorf("humanoid: fallback click on '%s': %w", target.Selector(), err)
	}
	return res, nil
}

// clickOnce runs the stability wait, the tracking loop and the press.
func (h *Humanoid) clickOnce(ctx context.Context, target surface.Handle, profile MotionProfile, timeout time.Duration) (ClickResult, error) {
	box, err := h.waitStable(ctx, target, timeout)
	if err != nil {
		return ClickResult{}, err
	}

	tracked := false
	for i := 0; i < h.cfg.TrackingIterations; i++ {
		aim := h.samplePoint(box, profile.HighPrecision)
		if err := h.MoveTo(ctx, aim, 0); err != nil {
			return ClickResult{}, err
		}

		// The box may have shifted from reflow while the pointer was travelling.
		next, err := target.BoundingBox(ctx)
		if err != nil {
			return ClickResult{}, fmt.Errorf("humanoid: re-measuring target: %w", err)
		}
		if next == nil || !next.Valid() {
			return ClickResult{}, fmt.Errorf("humanoid: target lost its box during tracking")
		}
		box = *next
		if h.marginBand(box, profile.HighPrecision).Contains(h.Position().X, h.Position().Y) {
			tracked = true
			break
		}
		h.logger.Debug("Target moved under the pointer, re-aiming.", zap.Int("iteration", i+1))
	}
	if !tracked {
		return ClickResult{}, ErrTargetMoving
	}

	if err := h.press(ctx, box, profile); err != nil {
		return ClickResult{}, err
	}
	pos := h.Position()
	x, y := pos.X, pos.Y
	return ClickResult{Success: true, X: &x, Y: &y}, nil
}

// waitStable polls the box until StablePolls consecutive measurements agree within
// StabilityTolerance, or the timeout passes.
func (h *Humanoid) waitStable(ctx context.Context, target surface.Handle, timeout time.Duration) (surface.Rect, error) {
	deadline := h.clock.Now().Add(timeout)
	var prev *surface.Rect
	seen := false
	agree := 0

	for {
		box, err := target.BoundingBox(ctx)
		if err != nil && ctx.Err() != nil {
			return surface.Rect{}, ctx.Err()
		}
		if err == nil && box != nil && box.Valid() {
			seen = true
			if prev != nil && box.Shift(*prev) < h.cfg.StabilityTolerance {
				agree++
			} else {
				agree = 1
			}
			prev = box
			if agree >= h.cfg.StablePolls {
				return *box, nil
			}
		} else {
			prev, agree = nil, 0
		}

		if !h.clock.Now().Before(deadline) {
			break
		}
		if err := h.clock.Sleep(ctx, h.cfg.StabilityPoll); err != nil {
			return surface.Rect{}, err
		}
	}
	if !seen {
		return surface.Rect{}, ErrTargetNotFound
	}
	return surface.Rect{}, ErrTargetUnstable
}

// samplePoint draws an aim point from a Gaussian around the box center, resampling
// a few times before clamping into the margin band.
func (h *Humanoid) samplePoint(box surface.Rect, precise bool) Vector2D {
	divisor := 6.0
	if precise {
		divisor = 12.0
	}
	cx, cy := box.Center()
	band := h.marginBand(box, precise)
	sx, sy := box.Width/divisor, box.Height/divisor

	var p Vector2D
	for i := 0; i < 5; i++ {
		p = Vector2D{X: cx + h.norm()*sx, Y: cy + h.norm()*sy}
		if band.Contains(p.X, p.Y) {
			return p
		}
	}
	return clampToRect(p, band)
}

// press runs the hover, hesitation, micro-move and the button press itself.
func (h *Humanoid) press(ctx context.Context, box surface.Rect, profile MotionProfile) error {
	band := h.marginBand(box, profile.HighPrecision)
	mods := h.modifiers()

	if profile.HoverMax > 0 {
		hover := time.Duration(float64(h.uniformDuration(profile.HoverMin, profile.HoverMax)) * mods.HesitationFactor)
		if err := h.drift(ctx, hover, &band); err != nil {
			return err
		}
	}
	if profile.Hesitation > 0 {
		if err := h.clock.Sleep(ctx, time.Duration(float64(profile.Hesitation)*mods.HesitationFactor)); err != nil {
			return err
		}
	}
	if profile.MicroMove {
		p := h.Position().Vector().Add(Vector2D{X: h.uniform(-2, 2), Y: h.uniform(-2, 2)})
		p = clampToRect(p, band)
		if err := h.pointer.MoveTo(ctx, p.X, p.Y); err != nil {
			return fmt.Errorf("humanoid: micro-move: %w", err)
		}
		h.setPosition(p)
	}

	if err := h.pointer.Down(ctx); err != nil {
		return fmt.Errorf("humanoid: pointer down: %w", err)
	}
	if err := h.clock.Sleep(ctx, h.holdDuration(profile, mods.HoldFactor)); err != nil {
		// Never leave the button pressed behind.
		_ = h.pointer.Up(context.Background())
		return err
	}
	if err := h.pointer.Up(ctx); err != nil {
		return fmt.Errorf("humanoid: pointer up: %w", err)
	}
	return nil
}

// holdDuration is profile.Hold, or a bounded Gaussian sample, scaled by factor.
func (h *Humanoid) holdDuration(profile MotionProfile, factor float64) time.Duration {
	d := profile.Hold
	if d <= 0 {
		ms := h.boundedGaussian(
			float64(h.cfg.HoldMean), float64(h.cfg.HoldStdDev),
			float64(h.cfg.HoldMin), float64(h.cfg.HoldMax))
		d = time.Duration(ms)
	}
	if factor > 0 {
		d = time.Duration(float64(d) * factor)
	}
	return d
}
