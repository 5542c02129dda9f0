// internal/escalation/errors.go
package escalation

import "errors"

var (
	// ErrActionExecutionFailed means every strategy in the ladder returned an error.
	ErrActionExecutionFailed = errors.New("escalation: every strategy failed")
	// ErrVerificationTimeout means no effect signal turned positive before the deadline.
	ErrVerificationTimeout = errors.New("escalation: outcome verification timed out")
	// ErrReloadFailed means the mid-flight reload escalation could not reload the surface.
	ErrReloadFailed = errors.New("escalation: reload failed")

	errHumanClickMissed = errors.New("escalation: human click did not complete")
)

// Reason is the structured outcome code attached to a robust action result.
type Reason string

const (
	ReasonAlreadySatisfied   Reason = "already_satisfied"
	ReasonVerified           Reason = "verified"
	ReasonSatisfiedMidLoop   Reason = "satisfied_mid_loop"
	ReasonTargetNotFound     Reason = "target_not_found"
	ReasonExecutionFailed    Reason = "execution_failed"
	ReasonVerificationFailed Reason = "verification_failed"
	ReasonAttemptsExhausted  Reason = "attempts_exhausted"

	// -- Fatal --
	ReasonSessionUnhealthy Reason = "session_unhealthy"
	ReasonSoftErrorCeiling Reason = "soft_error_ceiling"
	ReasonReloadFailed     Reason = "reload_failed"
	ReasonCancelled        Reason = "cancelled"
)
