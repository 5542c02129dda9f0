// internal/monitor/softerror.go
package monitor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/surface"
)

// SoftErrorState counts consecutive transient error detections.
type SoftErrorState struct {
	Count int
}

// Observe applies one detection result. A clean check resets the counter. The
// returned flag is true once the counter reaches ceiling; the count never exceeds it.
func (s SoftErrorState) Observe(detected bool, ceiling int) (SoftErrorState, bool) {
	if !detected {
		return SoftErrorState{}, false
	}
	s.Count++
	if s.Count >= ceiling {
		s.Count = ceiling
		return s, true
	}
	return s, false
}

// CheckSoftError looks for a transient error marker and intervenes. It returns true
// when it clicked a retry control or reloaded. The first detection tries the in-page
// retry control; later ones (or a first one without a retry control) reload
// reloadTarget, or the current location when empty. Reaching the ceiling returns
// ErrSoftErrorCeiling, which is terminal.
func (m *Monitor) CheckSoftError(ctx context.Context, reloadTarget string) (bool, error) {
	detected := m.softErrorVisible(ctx)

	m.mu.Lock()
	next, exceeded := m.soft.Observe(detected, m.cfg.SoftErrorCeiling)
	m.soft = next
	m.mu.Unlock()

	if !detected {
		return false, nil
	}
	m.logger.Info("Soft error detected.", zap.Int("count", next.Count))
	if exceeded {
		return true, fmt.Errorf("%w: %d consecutive detections", ErrSoftErrorCeiling, next.Count)
	}

	if next.Count == 1 && m.clickRetryControl(ctx) {
		return true, nil
	}

	var err error
	if reloadTarget != "" {
		err = m.surface.Navigate(ctx, reloadTarget)
	} else {
		err = m.surface.Reload(ctx)
	}
	if err != nil {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		m.logger.Warn("Soft error reload failed.", zap.Error(err))
		return true, nil
	}
	if err := m.clock.Sleep(ctx, m.cfg.SettleDelay); err != nil {
		return true, err
	}

	if !m.softErrorVisible(ctx) {
		m.mu.Lock()
		m.soft = SoftErrorState{}
		m.mu.Unlock()
		m.logger.Info("Soft error cleared after reload.")
	}
	return true, nil
}

// softErrorVisible checks the marker selectors and the document text.
func (m *Monitor) softErrorVisible(ctx context.Context) bool {
	if m.surface == nil {
		return false
	}
	for _, sel := range m.cfg.SoftErrorSelectors {
		h, err := m.surface.Locate(ctx, sel)
		if err != nil || h == nil {
			continue
		}
		if ok, err := h.Visible(ctx); err == nil && ok {
			return true
		}
	}
	if len(m.cfg.SoftErrorMarkers) == 0 {
		return false
	}
	content, err := m.surface.Content(ctx)
	if err != nil {
		return false
	}
	text := visibleText(content)
	for _, marker := range m.cfg.SoftErrorMarkers {
		if marker != "" && strings.Contains(text, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func (m *Monitor) clickRetryControl(ctx context.Context) bool {
	h, err := surface.LocateFirst(ctx, m.surface, m.cfg.RetrySelectors...)
	if err != nil {
		return false
	}
	if ok, err := h.Visible(ctx); err != nil || !ok {
		return false
	}
	if err := h.Click(ctx); err != nil {
		m.logger.Debug("Retry control click failed.", zap.String("selector", h.Selector()), zap.Error(err))
		return false
	}
	m.logger.Info("Clicked in-page retry control.", zap.String("selector", h.Selector()))
	return true
}
