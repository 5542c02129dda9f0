// internal/monitor/errors.go
package monitor

import "errors"

var (
	// ErrSessionUnhealthy signals liveness loss or a critical error page. Terminal.
	ErrSessionUnhealthy = errors.New("monitor: session unhealthy")
	// ErrSoftErrorCeiling signals too many consecutive transient error detections. Terminal.
	ErrSoftErrorCeiling = errors.New("monitor: soft error ceiling exceeded")
)

// IsFatal reports whether err must end the enclosing session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSessionUnhealthy) || errors.Is(err, ErrSoftErrorCeiling)
}
