// internal/humanoid/behavior_test.go
package humanoid

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/actuator/internal/monitor"
	"github.com/xkilldash9x/actuator/internal/surface"
)

func TestIdle_DriftsAroundAnchor(t *testing.T) {
	h, s, clk := setupHumanoid(t, 31)
	anchor := h.Position()

	require.NoError(t, h.Idle(context.Background(), 2*time.Second))

	events := s.PointerRecorder().Events()
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.LessOrEqual(t, math.Abs(e.X-anchor.X), 1.0)
		assert.LessOrEqual(t, math.Abs(e.Y-anchor.Y), 1.0)
	}
	assert.Equal(t, 2*time.Second, clk.Slept())

	long := 0
	for _, d := range clk.Sleeps() {
		if d >= 150*time.Millisecond {
			long++
		}
	}
	assert.Positive(t, long, "expected periodic longer pauses")
}

func TestIdle_ScaledByFatigue(t *testing.T) {
	h, _, clk := setupHumanoid(t, 31)
	h.SetModifiers(&monitor.Modifiers{SpeedFactor: 1, HoldFactor: 1, HesitationFactor: 2})

	require.NoError(t, h.Idle(context.Background(), time.Second))
	assert.Equal(t, 2*time.Second, clk.Slept())
}

func TestIdle_ZeroIsNoOp(t *testing.T) {
	h, s, _ := setupHumanoid(t, 31)
	require.NoError(t, h.Idle(context.Background(), 0))
	assert.Empty(t, s.PointerRecorder().Events())
}

func TestDrift_ClampedToBand(t *testing.T) {
	h, s, _ := setupHumanoid(t, 12)
	band := surface.Rect{X: 10, Y: 10, Width: 1, Height: 1}
	h.setPosition(Vector2D{X: 10, Y: 10})

	require.NoError(t, h.drift(context.Background(), time.Second, &band))
	for _, e := range s.PointerRecorder().Events() {
		require.True(t, band.Contains(e.X, e.Y))
	}
}
