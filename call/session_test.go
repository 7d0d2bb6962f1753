package call

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/veilcall/crypto"
)

func newCallerSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(Identity{
		CallID:      "call-test",
		LocalRole:   RoleCaller,
		PeerAddress: "peer.onion:9152",
	}, nil)
	require.NoError(t, err)
	return s
}

func TestNewSessionInitialStates(t *testing.T) {
	caller := newCallerSession(t)
	assert.Equal(t, StateIdle, caller.State())

	callee, err := NewSession(Identity{CallID: "c2", LocalRole: RoleCallee}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateRinging, callee.State())

	_, err = NewSession(Identity{}, nil)
	assert.Error(t, err, "empty call ID must be rejected")
}

func TestSessionEphemeralKeyGeneratedOnce(t *testing.T) {
	s := newCallerSession(t)

	first := s.EphemeralPublicKey()
	second := s.EphemeralPublicKey()
	assert.Equal(t, first, second, "ephemeral key must be stable for the session's lifetime")
	assert.NotEqual(t, [32]byte{}, first)
}

func TestSessionTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []State
		ok   bool
	}{
		{"caller happy path", []State{StateDialing, StateConnecting, StateActive}, true},
		{"skip dialing", []State{StateConnecting}, false},
		{"dialing to active directly", []State{StateDialing, StateActive}, false},
		{"active is not reentrant", []State{StateDialing, StateConnecting, StateActive, StateActive}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newCallerSession(t)
			var err error
			for _, next := range tt.path {
				err = s.Transition(next)
				if err != nil {
					break
				}
			}
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
			}
		})
	}
}

func TestSessionTransitionAfterEnd(t *testing.T) {
	s := newCallerSession(t)
	require.True(t, s.End())

	err := s.Transition(StateDialing)
	assert.True(t, errors.Is(err, ErrSessionTerminal))
}

func TestSessionDeriveSharedSecretOnce(t *testing.T) {
	s := newCallerSession(t)
	peer, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	require.NoError(t, s.DeriveSharedSecret(peer.Public))

	secret, ok := s.SharedSecret()
	require.True(t, ok)
	assert.NotEqual(t, [32]byte{}, secret)

	// A second derivation is a protocol bug.
	err = s.DeriveSharedSecret(peer.Public)
	assert.True(t, errors.Is(err, ErrSecretAlreadyDerived))
}

func TestSessionDeriveRejectsInvalidKey(t *testing.T) {
	s := newCallerSession(t)

	err := s.DeriveSharedSecret([32]byte{})
	assert.True(t, errors.Is(err, crypto.ErrInvalidKeyMaterial))

	_, ok := s.SharedSecret()
	assert.False(t, ok)
}

func TestSessionEndIdempotent(t *testing.T) {
	s := newCallerSession(t)
	handle := &mockHandle{}
	require.NoError(t, s.AttachMedia(handle))

	assert.True(t, s.End(), "first End performs teardown")
	assert.False(t, s.End(), "second End is a no-op")
	assert.Equal(t, StateEnded, s.State())
	assert.Equal(t, 1, handle.closeCount(), "media released exactly once")

	select {
	case <-s.Context().Done():
	default:
		t.Fatal("session context must be cancelled after End")
	}
}

func TestSessionEndWipesSecrets(t *testing.T) {
	s := newCallerSession(t)
	peer, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, s.DeriveSharedSecret(peer.Public))

	require.True(t, s.End())

	secret, _ := s.SharedSecret()
	assert.Equal(t, [32]byte{}, secret, "shared secret must be wiped")
	assert.Equal(t, [32]byte{}, s.ephemeral.Private, "ephemeral private key must be wiped")

	err = s.DeriveSharedSecret(peer.Public)
	assert.True(t, errors.Is(err, ErrSessionTerminal))
}

func TestSessionAttachMediaAfterEnd(t *testing.T) {
	s := newCallerSession(t)
	require.True(t, s.End())

	handle := &mockHandle{}
	err := s.AttachMedia(handle)
	assert.True(t, errors.Is(err, ErrSessionTerminal))
	assert.Equal(t, 1, handle.closeCount(), "late media handle must be closed, not leaked")
}

func TestSessionFlags(t *testing.T) {
	s := newCallerSession(t)

	assert.False(t, s.IsMuted())
	s.SetMuted(true)
	assert.True(t, s.IsMuted())

	assert.False(t, s.IsSpeakerEnabled())
	s.SetSpeakerEnabled(true)
	assert.True(t, s.IsSpeakerEnabled())
}
