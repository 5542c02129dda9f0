// internal/monitor/health.go
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// HealthSnapshot is a point-in-time liveness and error assessment.
type HealthSnapshot struct {
	Healthy   bool
	Reason    string
	CheckedAt time.Time
}

// Err returns nil for a healthy snapshot and a wrapped ErrSessionUnhealthy otherwise.
func (h HealthSnapshot) Err() error {
	if h.Healthy {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSessionUnhealthy, h.Reason)
}

// LivenessTracker holds the timestamp of the last observed surface activity.
// Touch may be called from backend event goroutines.
type LivenessTracker struct {
	last atomic.Pointer[time.Time]
}

// NewLivenessTracker starts the tracker as if activity was seen at start.
func NewLivenessTracker(start time.Time) *LivenessTracker {
	l := &LivenessTracker{}
	l.last.Store(&start)
	return l
}

// Touch records activity at t. Older timestamps are ignored.
func (l *LivenessTracker) Touch(t time.Time) {
	for {
		cur := l.last.Load()
		if !t.After(*cur) || l.last.CompareAndSwap(cur, &t) {
			return
		}
	}
}

// LastActivity returns the most recent activity timestamp, in the location it was recorded.
func (l *LivenessTracker) LastActivity() time.Time {
	return *l.last.Load()
}

// CheckHealth combines the liveness check and the critical error page scan.
// Either one failing makes the snapshot unhealthy. A failed content read is not
// treated as unhealthy on its own.
func (m *Monitor) CheckHealth(ctx context.Context) HealthSnapshot {
	now := m.clock.Now()
	snap := HealthSnapshot{Healthy: true, CheckedAt: now}

	idle := now.Sub(m.liveness.LastActivity())
	if idle > m.cfg.InactivityLimit {
		snap.Healthy = false
		snap.Reason = fmt.Sprintf("network_inactivity_%ds", int64(idle/time.Second))
		m.logger.Warn("Surface liveness lost.", zap.Duration("idle", idle))
		return snap
	}

	if m.surface == nil || len(m.cfg.CriticalMarkers) == 0 {
		return snap
	}
	content, err := m.surface.Content(ctx)
	if err != nil {
		m.logger.Debug("Content scan failed, assuming healthy.", zap.Error(err))
		return snap
	}
	text := visibleText(content)
	for _, marker := range m.cfg.CriticalMarkers {
		if marker.Needle != "" && strings.Contains(text, strings.ToLower(marker.Needle)) {
			snap.Healthy = false
			snap.Reason = "critical_error_page_" + marker.Code
			m.logger.Warn("Critical error page detected.", zap.String("marker", marker.Code))
			return snap
		}
	}
	return snap
}

// visibleText extracts the lowercased text content of a document, skipping script
// and style bodies so markers embedded in code do not match.
func visibleText(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.ToLower(b.String())
		case html.StartTagToken:
			if isRawTextTag(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawTextTag(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isRawTextTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}
