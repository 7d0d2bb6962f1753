package call

import (
	"time"
)

// State represents the lifecycle state of a call session.
type State uint32

const (
	// StateIdle is the initial state before dialing or ringing.
	StateIdle State = iota
	// StateDialing indicates an OFFER was sent and we await a response.
	StateDialing
	// StateRinging indicates an OFFER was received and we await the user.
	StateRinging
	// StateConnecting indicates signaling completed and media setup is
	// in progress.
	StateConnecting
	// StateActive indicates media is flowing.
	StateActive
	// StateEnding indicates teardown has begun.
	StateEnding
	// StateEnded is terminal. Sessions are never reused.
	StateEnded
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDialing:
		return "Dialing"
	case StateRinging:
		return "Ringing"
	case StateConnecting:
		return "Connecting"
	case StateActive:
		return "Active"
	case StateEnding:
		return "Ending"
	case StateEnded:
		return "Ended"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool { return s == StateEnded }

// Role distinguishes the two sides of a call.
type Role uint8

const (
	// RoleCaller initiated the call.
	RoleCaller Role = iota + 1
	// RoleCallee received the call.
	RoleCallee
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	default:
		return "unknown"
	}
}

// Identity carries the immutable facts about one call attempt.
type Identity struct {
	// CallID is the caller-generated opaque token for this attempt.
	CallID string
	// LocalRole is our side of the call.
	LocalRole Role
	// PeerStaticKey is the peer's long-term identity key, used to
	// authenticate their signaling messages.
	PeerStaticKey [32]byte
	// PeerAddress is the peer's signaling transport address.
	PeerAddress string
}

// EndCode classifies why a call ended, so the application layer can
// present "No answer", "Declined", and "Busy" differently.
type EndCode uint8

const (
	// EndLocalHangup means the local user ended the call.
	EndLocalHangup EndCode = iota + 1
	// EndPeerHangup means the peer ended the call.
	EndPeerHangup
	// EndDeclined means the callee rejected the call.
	EndDeclined
	// EndBusy means the callee was already in a call.
	EndBusy
	// EndTimeout means the outgoing call got no response in time.
	EndTimeout
	// EndExpired means an incoming call was never acted upon.
	EndExpired
	// EndSignalingFailed means a signaling send exhausted its retries.
	EndSignalingFailed
	// EndMediaFailed means the media path could not be established.
	EndMediaFailed
	// EndStalled means an active call stopped carrying media.
	EndStalled
	// EndShutdown means the manager was stopped.
	EndShutdown
)

// String returns a human-readable name for the end code.
func (c EndCode) String() string {
	switch c {
	case EndLocalHangup:
		return "local hangup"
	case EndPeerHangup:
		return "peer hangup"
	case EndDeclined:
		return "declined"
	case EndBusy:
		return "busy"
	case EndTimeout:
		return "no answer"
	case EndExpired:
		return "expired"
	case EndSignalingFailed:
		return "signaling failed"
	case EndMediaFailed:
		return "media setup failed"
	case EndStalled:
		return "media stalled"
	case EndShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// EndReason is the terminal result surfaced exactly once per session
// through Notifier.OnCallEnded.
type EndReason struct {
	Code   EndCode
	Detail string
}

// OutcomeKind tags the resolution of a pending outgoing call.
type OutcomeKind uint8

const (
	// OutcomeAnswered means the callee accepted.
	OutcomeAnswered OutcomeKind = iota + 1
	// OutcomeRejected means the callee declined.
	OutcomeRejected
	// OutcomeBusy means the callee was in another call.
	OutcomeBusy
	// OutcomeTimedOut means no response arrived within the window.
	OutcomeTimedOut
)

// Outcome is the tagged result of a pending outgoing call, delivered
// once on the pending entry's result channel.
type Outcome struct {
	Kind OutcomeKind
	// PeerEphemeralKey is set for OutcomeAnswered.
	PeerEphemeralKey [32]byte
	// PeerVoiceAddress is set for OutcomeAnswered.
	PeerVoiceAddress string
	// Reason is set for OutcomeRejected.
	Reason string
}

// HistoryEntry is the record handed to the optional HistorySink.
type HistoryEntry struct {
	CallID  string
	PeerKey [32]byte
	Role    Role
	Code    EndCode
	At      time.Time
}
