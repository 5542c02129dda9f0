// internal/humanoid/behavior.go
package humanoid

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/actuator/internal/surface"
)

// Idle lingers for d with small cursor drift, the way a reader rests a hand on the
// mouse. The drift is scaled by the current hesitation factor.
func (h *Humanoid) Idle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return h.drift(ctx, time.Duration(float64(d)*h.modifiers().HesitationFactor), nil)
}

// drift jitters the pointer by up to one unit around its anchor for d, with a longer
// pause every few steps. When band is set the pointer never leaves it.
func (h *Humanoid) drift(ctx context.Context, d time.Duration, band *surface.Rect) error {
	anchor := h.Position().Vector()
	deadline := h.clock.Now().Add(d)

	for step := 1; h.clock.Now().Before(deadline); step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := anchor.Add(Vector2D{X: h.uniform(-1, 1), Y: h.uniform(-1, 1)})
		if band != nil {
			p = clampToRect(p, *band)
		}
		if err := h.pointer.MoveTo(ctx, p.X, p.Y); err != nil {
			return fmt.Errorf("humanoid: hover drift: %w", err)
		}
		h.setPosition(p)

		pause := h.uniformDuration(30*time.Millisecond, 80*time.Millisecond)
		if step%5 == 0 {
			pause = h.uniformDuration(150*time.Millisecond, 400*time.Millisecond)
		}
		if remaining := deadline.Sub(h.clock.Now()); pause > remaining {
			pause = remaining
		}
		if pause <= 0 {
			break
		}
		if err := h.clock.Sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}
