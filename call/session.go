package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/veilcall/crypto"
)

// Session is the state machine for a single call attempt.
//
// A session owns its ephemeral key pair exclusively: the pair is
// generated exactly once, in NewSession, and the same pair is both
// advertised in the outgoing OFFER/ANSWER and used to derive the
// media shared secret. The private half and the derived secret are
// wiped when the session ends.
type Session struct {
	identity Identity

	state         State
	ephemeral     *crypto.KeyPair
	sharedSecret  [32]byte
	secretDerived bool

	peerVoiceAddress string
	media            MediaHandle

	muted          bool
	speakerEnabled bool

	timeProvider crypto.TimeProvider
	createdAt    time.Time
	lastActivity time.Time

	// ctx is cancelled when the session ends, so in-flight signaling
	// retries for this call stop promptly.
	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex
}

// NewSession creates a session for one call attempt and generates its
// single-use ephemeral key pair.
//
// Callee sessions start in StateRinging (the user has been notified of
// the offer); caller sessions start in StateIdle and move to
// StateDialing when the manager sends the OFFER.
func NewSession(identity Identity, tp crypto.TimeProvider) (*Session, error) {
	if identity.CallID == "" {
		return nil, fmt.Errorf("%w: empty", ErrUnknownCallID)
	}
	if tp == nil {
		tp = crypto.DefaultTimeProvider{}
	}

	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key pair: %w", err)
	}

	initial := StateIdle
	if identity.LocalRole == RoleCallee {
		initial = StateRinging
	}

	ctx, cancel := context.WithCancel(context.Background())

	logrus.WithFields(logrus.Fields{
		"function": "NewSession",
		"call_id":  identity.CallID,
		"role":     identity.LocalRole.String(),
		"state":    initial.String(),
	}).Debug("Call session created")

	return &Session{
		identity:     identity,
		state:        initial,
		ephemeral:    ephemeral,
		timeProvider: tp,
		createdAt:    tp.Now(),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Identity returns the immutable identity of this call attempt.
func (s *Session) Identity() Identity {
	return s.identity
}

// Context returns a context cancelled when the session ends. Signaling
// sends on behalf of this session must use it so user-initiated
// teardown aborts in-flight retry loops.
func (s *Session) Context() context.Context {
	return s.ctx
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EphemeralPublicKey returns the public half of the session's
// single-use key pair, for inclusion in the outgoing OFFER or ANSWER.
func (s *Session) EphemeralPublicKey() [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ephemeral.Public
}

// canTransition encodes the legal state machine edges. Teardown edges
// into StateEnding/StateEnded are handled by End, not here.
func canTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateDialing || to == StateRinging
	case StateDialing:
		return to == StateConnecting
	case StateRinging:
		return to == StateConnecting
	case StateConnecting:
		return to == StateActive
	default:
		return false
	}
}

// Transition moves the session to the next non-terminal state.
//
// Returns ErrSessionTerminal if the session has already ended (a late
// result racing user teardown) and ErrInvalidTransition for edges the
// state machine does not permit.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEnding || s.state == StateEnded {
		return ErrSessionTerminal
	}
	if !canTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Transition",
		"call_id":  s.identity.CallID,
		"from":     s.state.String(),
		"to":       to.String(),
	}).Debug("Call state transition")

	s.state = to
	if to == StateActive {
		s.lastActivity = s.timeProvider.Now()
	}
	return nil
}

// DeriveSharedSecret computes and stores the media secret from the
// peer's ephemeral public key. It may be called at most once per
// session; a second call is a protocol bug and is rejected.
func (s *Session) DeriveSharedSecret(peerEphemeralKey [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEnding || s.state == StateEnded {
		return ErrSessionTerminal
	}
	if s.secretDerived {
		return ErrSecretAlreadyDerived
	}

	secret, err := crypto.DeriveSharedSecret(peerEphemeralKey, s.ephemeral.Private)
	if err != nil {
		return err
	}

	s.sharedSecret = secret
	s.secretDerived = true
	return nil
}

// SharedSecret returns the derived media secret. The second return is
// false until DeriveSharedSecret has succeeded.
func (s *Session) SharedSecret() ([32]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharedSecret, s.secretDerived
}

// SetPeerVoiceAddress records where the peer receives media, taken from
// their OFFER or ANSWER.
func (s *Session) SetPeerVoiceAddress(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerVoiceAddress = addr
}

// PeerVoiceAddress returns the peer's media address.
func (s *Session) PeerVoiceAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerVoiceAddress
}

// AttachMedia stores the established media handle on the session.
//
// If the session ended while the media path was being set up, the
// handle is closed immediately and ErrSessionTerminal is returned, so
// a racing teardown never leaks an established path.
func (s *Session) AttachMedia(handle MediaHandle) error {
	s.mu.Lock()
	if s.state == StateEnding || s.state == StateEnded {
		s.mu.Unlock()
		if handle != nil {
			if err := handle.Close(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "AttachMedia",
					"call_id":  s.identity.CallID,
					"error":    err.Error(),
				}).Warn("Failed to close media handle for ended session")
			}
		}
		return ErrSessionTerminal
	}
	s.media = handle
	s.mu.Unlock()
	return nil
}

// SetMuted updates the microphone mute flag.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

// IsMuted returns the microphone mute flag.
func (s *Session) IsMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// SetSpeakerEnabled updates the speakerphone flag.
func (s *Session) SetSpeakerEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakerEnabled = enabled
}

// IsSpeakerEnabled returns the speakerphone flag.
func (s *Session) IsSpeakerEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speakerEnabled
}

// MarkActivity stamps the session with the current time. The media
// layer calls this as frames flow; the manager's sweep uses it for
// stall detection.
func (s *Session) MarkActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.timeProvider.Now()
}

// LastActivity returns the most recent media activity stamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// End tears the session down: cancels in-flight signaling, releases the
// media handle, and wipes the ephemeral key and shared secret.
//
// End is idempotent. It returns true the first time (the caller fires
// the terminal notification) and false on every subsequent call, which
// is a no-op.
func (s *Session) End() bool {
	s.mu.Lock()

	if s.state == StateEnding || s.state == StateEnded {
		s.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "End",
			"call_id":  s.identity.CallID,
		}).Debug("End on already-ended session, no-op")
		return false
	}

	s.state = StateEnding
	media := s.media
	s.media = nil

	crypto.ZeroBytes(s.sharedSecret[:])
	if err := crypto.WipeKeyPair(s.ephemeral); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "End",
			"call_id":  s.identity.CallID,
			"error":    err.Error(),
		}).Warn("Failed to wipe ephemeral key pair")
	}

	s.state = StateEnded
	s.mu.Unlock()

	// Cancel outside the lock; waiters may touch the session.
	s.cancel()

	if media != nil {
		if err := media.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "End",
				"call_id":  s.identity.CallID,
				"error":    err.Error(),
			}).Warn("Failed to close media handle")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "End",
		"call_id":  s.identity.CallID,
		"role":     s.identity.LocalRole.String(),
	}).Info("Call session ended")

	return true
}
