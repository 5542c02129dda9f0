package monitor

import (
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/clock"
	"github.com/xkilldash9x/actuator/internal/surface/surfacetest"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// setupMonitor builds a monitor on virtual time with a deterministic RNG.
func setupMonitor(t *testing.T) (*Monitor, *surfacetest.Surface, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testEpoch)
	s := surfacetest.New()
	m := New(DefaultConfig(), zap.NewNop(), clk, rand.New(rand.NewSource(42)), s, nil)
	return m, s, clk
}

// recordingSwitcher counts profile swap requests.
type recordingSwitcher struct {
	available map[string]bool
	calls     []string
}

func (r *recordingSwitcher) SwitchProfile(name string) bool {
	r.calls = append(r.calls, name)
	return r.available[name]
}
