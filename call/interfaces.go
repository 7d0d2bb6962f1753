package call

import (
	"context"

	"github.com/opd-ai/veilcall/crypto"
	"github.com/opd-ai/veilcall/signaling"
)

// Sender abstracts the signaling channel's send surface so the manager
// can be exercised against mocks. *signaling.Channel satisfies it.
type Sender interface {
	Send(ctx context.Context, msg *signaling.Message, destination string, recipientKey [32]byte) error
}

// AddressResolver maps a peer's long-term identity key to its signaling
// transport address. Resolution is opaque to this package.
type AddressResolver interface {
	ResolvePeerAddress(peerKey [32]byte) (string, error)
}

// IdentityStore provides read-only access to the local identity.
type IdentityStore interface {
	// LocalKeyPair returns the long-term identity key pair.
	LocalKeyPair() *crypto.KeyPair
	// LocalVoiceAddress returns the address peers should send media to.
	LocalVoiceAddress() string
}

// MediaHandle is an established media path. Closing it releases the
// underlying transport resources.
type MediaHandle interface {
	Close() error
}

// MediaFactory establishes the encrypted media path for an active call.
// The secret is the ECDH shared secret derived from the call's
// ephemeral keys; implementations own codecs and framing.
type MediaFactory interface {
	EstablishMediaPath(secret [32]byte, peerVoiceAddress string) (MediaHandle, error)
}

// Notifier receives push notifications for the application layer.
// Implementations must not call back into the Manager from within a
// notification; dispatch to another goroutine instead.
type Notifier interface {
	// OnIncomingCall reports a new incoming call awaiting user action.
	OnIncomingCall(callID string, peerKey [32]byte)
	// OnStateChanged reports a session state transition.
	OnStateChanged(callID string, state State)
	// OnCallEnded reports the terminal result. Fired exactly once per
	// call attempt.
	OnCallEnded(callID string, reason EndReason)
}

// HistorySink records call history entries. Optional; failures are
// logged and never propagated.
type HistorySink interface {
	RecordCallHistory(entry HistoryEntry) error
}
