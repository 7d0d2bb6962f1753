package call

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Expiry windows for pending calls. Sweeps are driven by an external
// ticker at roughly SweepInterval; the registry itself never schedules.
const (
	// OutgoingCallTimeout is how long an outgoing call waits for any
	// response before resolving as timed out.
	OutgoingCallTimeout = 30 * time.Second
	// IncomingCallExpiry is how long an incoming call waits for user
	// action before expiring.
	IncomingCallExpiry = 60 * time.Second
	// SweepInterval is the intended cadence for sweep calls.
	SweepInterval = time.Second
)

// PendingOutgoing tracks one in-flight outgoing call until the peer
// responds or the attempt times out. The resolution arrives exactly
// once on Result.
type PendingOutgoing struct {
	CallID    string
	PeerKey   [32]byte
	CreatedAt time.Time

	// Result is buffered so resolution never blocks the signaling
	// dispatch path.
	Result chan Outcome
}

// IncomingCallInfo tracks one incoming call awaiting user action.
type IncomingCallInfo struct {
	CallID string
	// PeerKey is the caller's long-term identity key, authenticated by
	// the envelope the OFFER arrived in.
	PeerKey [32]byte
	// PeerEphemeralKey is the caller's single-use key from the OFFER.
	PeerEphemeralKey [32]byte
	// PeerVoiceAddress is where the caller receives media.
	PeerVoiceAddress string
	ReceivedAt       time.Time
}

// Registry is the bookkeeping for in-flight call attempts, independent
// of full session state, so signaling responses can be matched to the
// right waiter even if the component that initiated them is gone.
//
// All operations are safe for concurrent use. Sweeps are pure
// functions of the supplied time, which keeps timeout behavior
// testable without wall-clock waits.
type Registry struct {
	mu       sync.Mutex
	outgoing map[string]*PendingOutgoing
	incoming map[string]*IncomingCallInfo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		outgoing: make(map[string]*PendingOutgoing),
		incoming: make(map[string]*IncomingCallInfo),
	}
}

// RegisterOutgoing adds a pending outgoing call and returns its entry.
// One entry per call ID; overwriting is not expected and is logged as
// a warning before the old entry is replaced.
func (r *Registry) RegisterOutgoing(callID string, peerKey [32]byte, now time.Time) *PendingOutgoing {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.outgoing[callID]; exists {
		logrus.WithFields(logrus.Fields{
			"function": "RegisterOutgoing",
			"call_id":  callID,
		}).Warn("Overwriting existing pending outgoing call")
	}

	entry := &PendingOutgoing{
		CallID:    callID,
		PeerKey:   peerKey,
		CreatedAt: now,
		Result:    make(chan Outcome, 1),
	}
	r.outgoing[callID] = entry

	logrus.WithFields(logrus.Fields{
		"function": "RegisterOutgoing",
		"call_id":  callID,
	}).Debug("Pending outgoing call registered")

	return entry
}

// takeOutgoingFrom removes and returns the pending entry if it exists
// and was registered against the given sender key. A key mismatch
// (a response forged or misrouted from a different identity) leaves
// the entry in place.
func (r *Registry) takeOutgoingFrom(callID string, senderKey [32]byte) (*PendingOutgoing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.outgoing[callID]
	if !ok {
		return nil, false
	}
	if entry.PeerKey != senderKey {
		logrus.WithFields(logrus.Fields{
			"function": "takeOutgoingFrom",
			"call_id":  callID,
		}).Warn("Signaling response from unexpected sender, ignoring")
		return nil, false
	}

	delete(r.outgoing, callID)
	return entry, true
}

// ResolveAnswer resolves a pending outgoing call as answered, removing
// it from the registry. senderKey is the responder's authenticated
// identity and must match the key the call was placed to. Unknown call
// IDs (late or duplicate ANSWERs) are logged and ignored; the return
// reports whether a waiter was resolved.
func (r *Registry) ResolveAnswer(callID string, senderKey, peerEphemeralKey [32]byte, peerVoiceAddress string) bool {
	entry, ok := r.takeOutgoingFrom(callID, senderKey)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "ResolveAnswer",
			"call_id":  callID,
		}).Info("ANSWER for unknown or already-resolved call, ignoring")
		return false
	}

	entry.Result <- Outcome{
		Kind:             OutcomeAnswered,
		PeerEphemeralKey: peerEphemeralKey,
		PeerVoiceAddress: peerVoiceAddress,
	}
	return true
}

// ResolveReject resolves a pending outgoing call as declined.
func (r *Registry) ResolveReject(callID string, senderKey [32]byte, reason string) bool {
	entry, ok := r.takeOutgoingFrom(callID, senderKey)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "ResolveReject",
			"call_id":  callID,
		}).Info("REJECT for unknown or already-resolved call, ignoring")
		return false
	}

	entry.Result <- Outcome{Kind: OutcomeRejected, Reason: reason}
	return true
}

// ResolveBusy resolves a pending outgoing call as busy.
func (r *Registry) ResolveBusy(callID string, senderKey [32]byte) bool {
	entry, ok := r.takeOutgoingFrom(callID, senderKey)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "ResolveBusy",
			"call_id":  callID,
		}).Info("BUSY for unknown or already-resolved call, ignoring")
		return false
	}

	entry.Result <- Outcome{Kind: OutcomeBusy}
	return true
}

// CancelOutgoing removes a pending entry without delivering a result.
// Used when the local user abandons the attempt; any response arriving
// afterwards becomes a logged no-op.
func (r *Registry) CancelOutgoing(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.outgoing[callID]
	if ok {
		delete(r.outgoing, callID)
	}
	return ok
}

// SweepTimeouts removes every outgoing entry older than
// OutgoingCallTimeout at the given time and delivers OutcomeTimedOut to
// each. Returns the call IDs that timed out.
func (r *Registry) SweepTimeouts(now time.Time) []string {
	r.mu.Lock()
	var expired []*PendingOutgoing
	for id, entry := range r.outgoing {
		if now.Sub(entry.CreatedAt) >= OutgoingCallTimeout {
			expired = append(expired, entry)
			delete(r.outgoing, id)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, entry := range expired {
		logrus.WithFields(logrus.Fields{
			"function": "SweepTimeouts",
			"call_id":  entry.CallID,
			"age":      now.Sub(entry.CreatedAt),
		}).Info("Outgoing call timed out")

		entry.Result <- Outcome{Kind: OutcomeTimedOut}
		ids = append(ids, entry.CallID)
	}
	return ids
}

// RegisterIncoming adds an incoming call awaiting user action.
// Duplicate registration for the same call ID is logged and replaced.
func (r *Registry) RegisterIncoming(info *IncomingCallInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.incoming[info.CallID]; exists {
		logrus.WithFields(logrus.Fields{
			"function": "RegisterIncoming",
			"call_id":  info.CallID,
		}).Warn("Overwriting existing incoming call entry")
	}

	r.incoming[info.CallID] = info

	logrus.WithFields(logrus.Fields{
		"function": "RegisterIncoming",
		"call_id":  info.CallID,
	}).Debug("Incoming call registered")
}

// TakeIncoming removes and returns the incoming entry for a call ID.
// Answering and rejecting both consume the entry.
func (r *Registry) TakeIncoming(callID string) (*IncomingCallInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.incoming[callID]
	if ok {
		delete(r.incoming, callID)
	}
	return info, ok
}

// SweepExpired removes and returns every incoming entry older than
// IncomingCallExpiry at the given time.
func (r *Registry) SweepExpired(now time.Time) []*IncomingCallInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*IncomingCallInfo
	for id, info := range r.incoming {
		if now.Sub(info.ReceivedAt) >= IncomingCallExpiry {
			logrus.WithFields(logrus.Fields{
				"function": "SweepExpired",
				"call_id":  id,
				"age":      now.Sub(info.ReceivedAt),
			}).Info("Incoming call expired without user action")

			expired = append(expired, info)
			delete(r.incoming, id)
		}
	}
	return expired
}

// OutgoingCount returns the number of pending outgoing calls.
func (r *Registry) OutgoingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outgoing)
}

// IncomingCount returns the number of pending incoming calls.
func (r *Registry) IncomingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.incoming)
}
