package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
)

// Signaling envelopes use the one-way Noise X pattern: a single message
// that encrypts the payload to the recipient's static key and transmits
// the sender's static key encrypted inside the handshake. Opening an
// envelope therefore yields both the plaintext and the authenticated
// identity of the sender.

// ErrEnvelopeOpen indicates an envelope that failed authentication or
// decryption. Callers treat this as a non-fatal protocol error.
var ErrEnvelopeOpen = errors.New("failed to open envelope")

// envelopeSuite matches the cipher suite used for veilcall session
// traffic so the whole protocol rests on one primitive set.
var envelopeSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// SealEnvelope encrypts payload from the sender's static key pair to
// the recipient's static public key.
//
// Each call performs a fresh one-way handshake, so envelopes are
// independently secured and carry no session state.
func SealEnvelope(payload []byte, sender *KeyPair, recipientPublic [32]byte) ([]byte, error) {
	if sender == nil {
		return nil, errors.New("sender key pair cannot be nil")
	}
	if isZeroKey(recipientPublic) {
		return nil, ErrInvalidKeyMaterial
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: envelopeSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeX,
		Initiator:   true,
		StaticKeypair: noise.DHKey{
			Private: sender.Private[:],
			Public:  sender.Public[:],
		},
		PeerStatic: recipientPublic[:],
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}

	sealed, _, _, err := hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to seal envelope: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "SealEnvelope",
		"payload_size": len(payload),
		"sealed_size":  len(sealed),
	}).Debug("Envelope sealed")

	return sealed, nil
}

// OpenEnvelope decrypts an envelope addressed to the recipient's static
// key pair. It returns the plaintext payload and the sender's
// authenticated static public key.
//
// Any tampering, truncation, or mismatched recipient key yields
// ErrEnvelopeOpen; the caller is expected to log and drop the message.
func OpenEnvelope(sealed []byte, recipient *KeyPair) ([]byte, [32]byte, error) {
	var senderKey [32]byte

	if recipient == nil {
		return nil, senderKey, errors.New("recipient key pair cannot be nil")
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: envelopeSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeX,
		Initiator:   false,
		StaticKeypair: noise.DHKey{
			Private: recipient.Private[:],
			Public:  recipient.Public[:],
		},
	})
	if err != nil {
		return nil, senderKey, fmt.Errorf("failed to create handshake state: %w", err)
	}

	payload, _, _, err := hs.ReadMessage(nil, sealed)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "OpenEnvelope",
			"sealed_size": len(sealed),
			"error":       err.Error(),
		}).Warn("Envelope rejected")
		return nil, senderKey, fmt.Errorf("%w: %v", ErrEnvelopeOpen, err)
	}

	peerStatic := hs.PeerStatic()
	if len(peerStatic) != 32 {
		return nil, senderKey, fmt.Errorf("%w: missing sender static key", ErrEnvelopeOpen)
	}
	copy(senderKey[:], peerStatic)

	return payload, senderKey, nil
}
