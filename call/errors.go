package call

import "errors"

// Sentinel errors for call orchestration.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrAlreadyInCall indicates a session is already active or in
	// progress; only one call may be in flight per device.
	ErrAlreadyInCall = errors.New("a call is already in progress")

	// ErrUnknownCallID indicates no pending incoming call matches the
	// given call ID.
	ErrUnknownCallID = errors.New("unknown call ID")

	// ErrNotRunning indicates the manager has not been started or has
	// been stopped.
	ErrNotRunning = errors.New("call manager is not running")

	// ErrSessionTerminal indicates an operation on a session that has
	// already ended.
	ErrSessionTerminal = errors.New("session is in a terminal state")

	// ErrInvalidTransition indicates a state change the call state
	// machine does not permit.
	ErrInvalidTransition = errors.New("invalid call state transition")

	// ErrSecretAlreadyDerived indicates a second shared-secret
	// derivation attempt on the same session.
	ErrSecretAlreadyDerived = errors.New("shared secret already derived for this session")
)
