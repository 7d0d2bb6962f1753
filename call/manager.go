package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/veilcall/crypto"
	"github.com/opd-ai/veilcall/signaling"
)

// MediaStallTimeout is how long an active call may go without media
// activity before the sweep tears it down.
const MediaStallTimeout = 30 * time.Second

// bestEffortSendTimeout bounds the peer notifications that are not
// required for local teardown to proceed (BUSY replies, hangup and
// failure REJECTs).
const bestEffortSendTimeout = 30 * time.Second

// Config carries the collaborators a Manager is constructed with.
// Sender, Resolver, Identity, Media, and Notifier are required;
// History and TimeProvider are optional.
type Config struct {
	Sender   Sender
	Resolver AddressResolver
	Identity IdentityStore
	Media    MediaFactory
	Notifier Notifier
	History  HistorySink
	// TimeProvider defaults to the wall clock when nil.
	TimeProvider crypto.TimeProvider
}

// Manager is the single serialization point for call lifecycle state.
//
// It enforces the one-active-call invariant, owns the pending call
// registry, dispatches inbound signaling by call ID, and runs the
// blocking parts of call setup on background goroutines. Public
// operations are safe to invoke from any goroutine and return quickly.
type Manager struct {
	sender   Sender
	resolver AddressResolver
	identity IdentityStore
	media    MediaFactory
	notifier Notifier
	history  HistorySink

	registry     *Registry
	timeProvider crypto.TimeProvider

	// active is the single session allowed in a non-terminal state.
	// Guarded by mu; only the manager mutates it.
	active  *Session
	running bool
	mu      sync.Mutex

	wg sync.WaitGroup
}

// NewManager creates a call manager from its collaborators.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Sender == nil {
		return nil, errors.New("sender cannot be nil")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("address resolver cannot be nil")
	}
	if cfg.Identity == nil {
		return nil, errors.New("identity store cannot be nil")
	}
	if cfg.Media == nil {
		return nil, errors.New("media factory cannot be nil")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("notifier cannot be nil")
	}
	tp := cfg.TimeProvider
	if tp == nil {
		tp = crypto.DefaultTimeProvider{}
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewManager",
	}).Info("Creating call manager")

	return &Manager{
		sender:       cfg.Sender,
		resolver:     cfg.Resolver,
		identity:     cfg.Identity,
		media:        cfg.Media,
		notifier:     cfg.Notifier,
		history:      cfg.History,
		registry:     NewRegistry(),
		timeProvider: tp,
	}, nil
}

// Start begins accepting call operations.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errors.New("call manager is already running")
	}
	m.running = true

	logrus.WithFields(logrus.Fields{
		"function": "Start",
	}).Info("Call manager started")

	return nil
}

// Stop ends any active call and shuts the manager down. Stopping an
// already-stopped manager is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	active := m.active
	m.mu.Unlock()

	if active != nil {
		m.registry.CancelOutgoing(active.Identity().CallID)
		m.finishSession(active, EndReason{Code: EndShutdown})
	}

	m.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
	}).Info("Call manager stopped")

	return nil
}

// IsRunning reports whether the manager accepts operations.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ActiveCall returns the call ID and state of the in-flight session,
// if any.
func (m *Manager) ActiveCall() (string, State, bool) {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active == nil {
		return "", StateIdle, false
	}
	return active.Identity().CallID, active.State(), true
}

// StartCall initiates an outgoing call to the peer identified by its
// long-term key. It returns the generated call ID; the rest of the
// flow (OFFER send, response, media setup) proceeds asynchronously and
// is reported through the Notifier.
//
// Fails with ErrAlreadyInCall while another session is in flight.
func (m *Manager) StartCall(peerKey [32]byte) (string, error) {
	m.mu.Lock()

	if !m.running {
		m.mu.Unlock()
		return "", ErrNotRunning
	}
	if m.active != nil && !m.active.State().Terminal() {
		m.mu.Unlock()
		return "", ErrAlreadyInCall
	}

	peerAddress, err := m.resolver.ResolvePeerAddress(peerKey)
	if err != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("failed to resolve peer address: %w", err)
	}

	callID := uuid.NewString()
	session, err := NewSession(Identity{
		CallID:        callID,
		LocalRole:     RoleCaller,
		PeerStaticKey: peerKey,
		PeerAddress:   peerAddress,
	}, m.timeProvider)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}

	if err := session.Transition(StateDialing); err != nil {
		m.mu.Unlock()
		return "", err
	}

	pending := m.registry.RegisterOutgoing(callID, peerKey, m.timeProvider.Now())
	m.active = session
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "StartCall",
		"call_id":  callID,
	}).Info("Outgoing call started")

	// Dialing is the ringback indication for the UI.
	m.notifier.OnStateChanged(callID, StateDialing)

	m.wg.Add(1)
	go m.runOutgoing(session, pending)

	return callID, nil
}

// runOutgoing drives the caller side of a call after StartCall: it
// sends the OFFER, waits for the pending entry to resolve, and walks
// the session into Active or a terminal reason.
func (m *Manager) runOutgoing(session *Session, pending *PendingOutgoing) {
	defer m.wg.Done()

	id := session.Identity()
	offer := &signaling.Message{
		Kind:               signaling.KindOffer,
		CallID:             id.CallID,
		EphemeralPublicKey: session.EphemeralPublicKey(),
		VoiceAddress:       m.identity.LocalVoiceAddress(),
	}

	if err := m.sender.Send(session.Context(), offer, id.PeerAddress, id.PeerStaticKey); err != nil {
		if session.Context().Err() != nil {
			// User ended the call while the OFFER was in flight; the
			// teardown path already cleaned up.
			return
		}
		m.registry.CancelOutgoing(id.CallID)
		m.finishSession(session, EndReason{Code: EndSignalingFailed, Detail: err.Error()})
		return
	}

	select {
	case outcome := <-pending.Result:
		m.handleOutcome(session, outcome)
	case <-session.Context().Done():
		// Session ended locally; any late resolution is discarded by
		// the registry.
	}
}

// handleOutcome applies a pending-call resolution to the caller-side
// session.
func (m *Manager) handleOutcome(session *Session, outcome Outcome) {
	id := session.Identity()

	switch outcome.Kind {
	case OutcomeAnswered:
		session.SetPeerVoiceAddress(outcome.PeerVoiceAddress)

		if err := session.DeriveSharedSecret(outcome.PeerEphemeralKey); err != nil {
			if errors.Is(err, ErrSessionTerminal) {
				return
			}
			m.sendRejectAsync(id.PeerStaticKey, id.CallID, "invalid key material")
			m.finishSession(session, EndReason{Code: EndSignalingFailed, Detail: "invalid peer ephemeral key"})
			return
		}

		if err := session.Transition(StateConnecting); err != nil {
			// Ended while the ANSWER was being processed; discard.
			return
		}
		m.notifier.OnStateChanged(id.CallID, StateConnecting)

		m.establishMedia(session)

	case OutcomeRejected:
		m.finishSession(session, EndReason{Code: EndDeclined, Detail: outcome.Reason})

	case OutcomeBusy:
		m.finishSession(session, EndReason{Code: EndBusy})

	case OutcomeTimedOut:
		m.finishSession(session, EndReason{Code: EndTimeout})

	default:
		logrus.WithFields(logrus.Fields{
			"function": "handleOutcome",
			"call_id":  id.CallID,
			"kind":     outcome.Kind,
		}).Error("Unknown pending call outcome")
	}
}

// establishMedia sets up the media path for a connecting session and
// transitions it to Active. On failure the peer gets a best-effort
// REJECT and the session ends with EndMediaFailed.
func (m *Manager) establishMedia(session *Session) {
	id := session.Identity()

	secret, ok := session.SharedSecret()
	if !ok {
		m.finishSession(session, EndReason{Code: EndMediaFailed, Detail: "no shared secret"})
		return
	}

	handle, err := m.media.EstablishMediaPath(secret, session.PeerVoiceAddress())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "establishMedia",
			"call_id":  id.CallID,
			"error":    err.Error(),
		}).Error("Media path establishment failed")

		m.sendRejectAsync(id.PeerStaticKey, id.CallID, "media setup failed")
		m.finishSession(session, EndReason{Code: EndMediaFailed, Detail: err.Error()})
		return
	}

	if err := session.AttachMedia(handle); err != nil {
		// Session ended during setup; AttachMedia closed the handle.
		return
	}

	if err := session.Transition(StateActive); err != nil {
		return
	}
	session.MarkActivity()

	logrus.WithFields(logrus.Fields{
		"function": "establishMedia",
		"call_id":  id.CallID,
	}).Info("Call active")

	m.notifier.OnStateChanged(id.CallID, StateActive)
}

// HandleSignal is the inbound dispatch entry point, registered as the
// signaling channel's handler. senderKey is the authenticated identity
// the envelope proved.
func (m *Manager) HandleSignal(senderKey [32]byte, msg *signaling.Message) {
	logrus.WithFields(logrus.Fields{
		"function": "HandleSignal",
		"kind":     msg.Kind.String(),
		"call_id":  msg.CallID,
	}).Debug("Dispatching inbound signaling message")

	switch msg.Kind {
	case signaling.KindOffer:
		m.handleOffer(senderKey, msg)

	case signaling.KindAnswer:
		m.registry.ResolveAnswer(msg.CallID, senderKey, msg.EphemeralPublicKey, msg.VoiceAddress)

	case signaling.KindReject:
		m.handleReject(senderKey, msg)

	case signaling.KindBusy:
		m.registry.ResolveBusy(msg.CallID, senderKey)

	default:
		logrus.WithFields(logrus.Fields{
			"function": "HandleSignal",
			"kind":     byte(msg.Kind),
		}).Warn("Dropping signaling message of unknown kind")
	}
}

// handleOffer processes an inbound OFFER: auto-BUSY when a call is
// already in flight, otherwise register the incoming call and notify
// the application.
func (m *Manager) handleOffer(senderKey [32]byte, msg *signaling.Message) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "handleOffer",
			"call_id":  msg.CallID,
		}).Debug("Manager not running, dropping OFFER")
		return
	}
	busy := m.active != nil && !m.active.State().Terminal()
	m.mu.Unlock()

	if busy {
		logrus.WithFields(logrus.Fields{
			"function": "handleOffer",
			"call_id":  msg.CallID,
		}).Info("OFFER while in a call, sending BUSY")
		m.sendBusyAsync(senderKey, msg.CallID)
		return
	}

	m.registry.RegisterIncoming(&IncomingCallInfo{
		CallID:           msg.CallID,
		PeerKey:          senderKey,
		PeerEphemeralKey: msg.EphemeralPublicKey,
		PeerVoiceAddress: msg.VoiceAddress,
		ReceivedAt:       m.timeProvider.Now(),
	})

	m.notifier.OnIncomingCall(msg.CallID, senderKey)
}

// handleReject routes an inbound REJECT. It may resolve a pending
// outgoing call (callee declined before we connected) or terminate the
// active session (peer hangup, or the callee's post-ANSWER setup
// failure).
func (m *Manager) handleReject(senderKey [32]byte, msg *signaling.Message) {
	if m.registry.ResolveReject(msg.CallID, senderKey, msg.Reason) {
		return
	}

	// Caller cancelled an offer we are still ringing on.
	if info, ok := m.registry.TakeIncoming(msg.CallID); ok {
		if info.PeerKey != senderKey {
			logrus.WithFields(logrus.Fields{
				"function": "handleReject",
				"call_id":  msg.CallID,
			}).Warn("REJECT for incoming call from unexpected sender, ignoring")
			m.registry.RegisterIncoming(info)
			return
		}
		m.notifier.OnCallEnded(msg.CallID, EndReason{Code: EndPeerHangup, Detail: msg.Reason})
		m.recordHistory(msg.CallID, info.PeerKey, RoleCallee, EndPeerHangup)
		return
	}

	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active != nil {
		id := active.Identity()
		if id.CallID == msg.CallID && id.PeerStaticKey == senderKey {
			m.registry.CancelOutgoing(id.CallID)
			m.finishSession(active, EndReason{Code: EndPeerHangup, Detail: msg.Reason})
			return
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "handleReject",
		"call_id":  msg.CallID,
	}).Info("REJECT for unknown call, ignoring")
}

// Answer accepts the incoming call with the given ID. The ANSWER
// message is sent before media setup begins so the caller's side can
// update promptly; setup continues in the background.
//
// Fails with ErrUnknownCallID if no matching incoming call exists and
// with ErrAlreadyInCall if another call won the race first, in which
// case the caller automatically receives BUSY.
func (m *Manager) Answer(callID string) error {
	m.mu.Lock()

	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}

	info, ok := m.registry.TakeIncoming(callID)
	if !ok {
		m.mu.Unlock()
		return ErrUnknownCallID
	}

	if m.active != nil && !m.active.State().Terminal() {
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Answer",
			"call_id":  callID,
		}).Info("Answer attempted while in a call, sending BUSY")
		m.sendBusyAsync(info.PeerKey, callID)
		return ErrAlreadyInCall
	}

	peerAddress, err := m.resolver.ResolvePeerAddress(info.PeerKey)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to resolve peer address: %w", err)
	}

	session, err := NewSession(Identity{
		CallID:        callID,
		LocalRole:     RoleCallee,
		PeerStaticKey: info.PeerKey,
		PeerAddress:   peerAddress,
	}, m.timeProvider)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.active = session
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Answer",
		"call_id":  callID,
	}).Info("Answering incoming call")

	m.wg.Add(1)
	go m.runAnswer(session, info)

	return nil
}

// runAnswer drives the callee side after Answer: send ANSWER first,
// then derive the secret and establish media. A failure after the
// ANSWER went out sends an explicit follow-up REJECT so the caller is
// not left waiting on its own timeout.
func (m *Manager) runAnswer(session *Session, info *IncomingCallInfo) {
	defer m.wg.Done()

	id := session.Identity()
	answer := &signaling.Message{
		Kind:               signaling.KindAnswer,
		CallID:             id.CallID,
		EphemeralPublicKey: session.EphemeralPublicKey(),
		VoiceAddress:       m.identity.LocalVoiceAddress(),
	}

	if err := m.sender.Send(session.Context(), answer, id.PeerAddress, id.PeerStaticKey); err != nil {
		if session.Context().Err() != nil {
			return
		}
		m.sendRejectAsync(id.PeerStaticKey, id.CallID, "answer delivery failed")
		m.finishSession(session, EndReason{Code: EndSignalingFailed, Detail: err.Error()})
		return
	}

	if err := session.Transition(StateConnecting); err != nil {
		return
	}
	m.notifier.OnStateChanged(id.CallID, StateConnecting)

	if err := session.DeriveSharedSecret(info.PeerEphemeralKey); err != nil {
		if errors.Is(err, ErrSessionTerminal) {
			return
		}
		m.sendRejectAsync(id.PeerStaticKey, id.CallID, "invalid key material")
		m.finishSession(session, EndReason{Code: EndSignalingFailed, Detail: "invalid peer ephemeral key"})
		return
	}

	session.SetPeerVoiceAddress(info.PeerVoiceAddress)
	m.establishMedia(session)
}

// Reject declines an incoming call. Unknown or already-handled call
// IDs are a logged no-op, keeping the operation idempotent.
func (m *Manager) Reject(callID, reason string) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	info, ok := m.registry.TakeIncoming(callID)
	m.mu.Unlock()

	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Reject",
			"call_id":  callID,
		}).Debug("Reject for unknown incoming call, no-op")
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "Reject",
		"call_id":  callID,
		"reason":   reason,
	}).Info("Rejecting incoming call")

	m.sendRejectAsync(info.PeerKey, callID, reason)
	m.notifier.OnCallEnded(callID, EndReason{Code: EndDeclined, Detail: reason})
	m.recordHistory(callID, info.PeerKey, RoleCallee, EndDeclined)

	return nil
}

// EndCall terminates the active call, if any. It is idempotent: with
// no call in flight, or called repeatedly, it is a no-op.
//
// Teardown proceeds locally without waiting for the peer; notifying
// the peer is best-effort.
func (m *Manager) EndCall(reason string) error {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active == nil {
		return nil
	}

	id := active.Identity()

	logrus.WithFields(logrus.Fields{
		"function": "EndCall",
		"call_id":  id.CallID,
		"reason":   reason,
	}).Info("Ending call")

	// Drop any response still in flight for this attempt.
	m.registry.CancelOutgoing(id.CallID)

	m.sendRejectAsync(id.PeerStaticKey, id.CallID, reason)
	m.finishSession(active, EndReason{Code: EndLocalHangup, Detail: reason})

	return nil
}

// SetMuted forwards the microphone mute flag to the active session.
// No-op when no call is active.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active == nil {
		return
	}
	active.SetMuted(muted)
}

// SetSpeakerEnabled forwards the speakerphone flag to the active
// session. No-op when no call is active.
func (m *Manager) SetSpeakerEnabled(enabled bool) {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active == nil {
		return
	}
	active.SetSpeakerEnabled(enabled)
}

// NoteMediaActivity stamps the active session with fresh media
// activity, deferring stall detection. The media layer calls this as
// frames arrive.
func (m *Manager) NoteMediaActivity() {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active == nil {
		return
	}
	active.MarkActivity()
}

// Sweep advances all time-based behavior to now: outgoing call
// timeouts, incoming call expiry, and media stall detection. It is
// driven by an external ticker (see SweepInterval) and is safe to call
// at any cadence.
func (m *Manager) Sweep(now time.Time) {
	// Timed-out outgoing calls resolve through their result channels;
	// the goroutine waiting in runOutgoing finishes the session.
	m.registry.SweepTimeouts(now)

	for _, info := range m.registry.SweepExpired(now) {
		m.notifier.OnCallEnded(info.CallID, EndReason{Code: EndExpired})
		m.recordHistory(info.CallID, info.PeerKey, RoleCallee, EndExpired)
	}

	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active != nil && active.State() == StateActive {
		last := active.LastActivity()
		if !last.IsZero() && now.Sub(last) >= MediaStallTimeout {
			id := active.Identity()
			logrus.WithFields(logrus.Fields{
				"function": "Sweep",
				"call_id":  id.CallID,
				"stalled":  now.Sub(last),
			}).Warn("Active call stalled, tearing down")

			m.sendRejectAsync(id.PeerStaticKey, id.CallID, "media stalled")
			m.finishSession(active, EndReason{Code: EndStalled})
		}
	}
}

// finishSession ends a session and, exactly once, fires the terminal
// notification and history record. Safe to call from any goroutine and
// from racing paths; only the first caller observes the transition.
func (m *Manager) finishSession(session *Session, reason EndReason) {
	ended := session.End()

	m.mu.Lock()
	if m.active == session {
		m.active = nil
	}
	m.mu.Unlock()

	if !ended {
		return
	}

	id := session.Identity()

	logrus.WithFields(logrus.Fields{
		"function": "finishSession",
		"call_id":  id.CallID,
		"code":     reason.Code.String(),
		"detail":   reason.Detail,
	}).Info("Call finished")

	m.notifier.OnCallEnded(id.CallID, reason)
	m.recordHistory(id.CallID, id.PeerStaticKey, id.LocalRole, reason.Code)
}

// sendBusyAsync sends a best-effort BUSY reply on its own goroutine.
func (m *Manager) sendBusyAsync(peerKey [32]byte, callID string) {
	m.sendControlAsync(&signaling.Message{Kind: signaling.KindBusy, CallID: callID}, peerKey)
}

// sendRejectAsync sends a best-effort REJECT on its own goroutine.
func (m *Manager) sendRejectAsync(peerKey [32]byte, callID, reason string) {
	m.sendControlAsync(&signaling.Message{Kind: signaling.KindReject, CallID: callID, Reason: reason}, peerKey)
}

// sendControlAsync resolves the peer and delivers a control message
// without blocking the caller. Failures are logged only; these
// notifications are never required for local progress.
func (m *Manager) sendControlAsync(msg *signaling.Message, peerKey [32]byte) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		destination, err := m.resolver.ResolvePeerAddress(peerKey)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "sendControlAsync",
				"kind":     msg.Kind.String(),
				"call_id":  msg.CallID,
				"error":    err.Error(),
			}).Warn("Failed to resolve peer for control message")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), bestEffortSendTimeout)
		defer cancel()

		if err := m.sender.Send(ctx, msg, destination, peerKey); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "sendControlAsync",
				"kind":     msg.Kind.String(),
				"call_id":  msg.CallID,
				"error":    err.Error(),
			}).Warn("Best-effort control message not delivered")
		}
	}()
}

// recordHistory hands an entry to the optional history sink.
// Fire-and-forget; failures are logged, never propagated.
func (m *Manager) recordHistory(callID string, peerKey [32]byte, role Role, code EndCode) {
	if m.history == nil {
		return
	}

	entry := HistoryEntry{
		CallID:  callID,
		PeerKey: peerKey,
		Role:    role,
		Code:    code,
		At:      m.timeProvider.Now(),
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.history.RecordCallHistory(entry); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "recordHistory",
				"call_id":  callID,
				"error":    err.Error(),
			}).Warn("Failed to record call history")
		}
	}()
}
