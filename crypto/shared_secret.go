package crypto

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
)

// ErrInvalidKeyMaterial indicates a peer key that cannot be used for
// key agreement (wrong length, all zeros, or a low-order point).
var ErrInvalidKeyMaterial = errors.New("invalid key material")

// DeriveSharedSecret computes a shared secret between two parties
// using Elliptic Curve Diffie-Hellman (ECDH) on Curve25519.
//
// The caller's private key is the ephemeral secret generated for this
// call attempt; peerPublicKey is the ephemeral public key received in
// the peer's OFFER or ANSWER. Malformed peer keys are reported as
// ErrInvalidKeyMaterial rather than producing a degenerate secret.
func DeriveSharedSecret(peerPublicKey, privateKey [32]byte) ([32]byte, error) {
	logrus.WithFields(logrus.Fields{
		"function":        "DeriveSharedSecret",
		"peer_key_prefix": fmt.Sprintf("%x", peerPublicKey[:8]),
	}).Debug("Computing shared secret using ECDH")

	if isZeroKey(peerPublicKey) {
		logrus.WithFields(logrus.Fields{
			"function": "DeriveSharedSecret",
			"error":    "peer public key is all zeros",
		}).Error("Peer key validation failed")
		return [32]byte{}, ErrInvalidKeyMaterial
	}

	// Copies so the originals cannot be modified by the curve operation.
	var publicKeyCopy [32]byte
	var privateKeyCopy [32]byte
	copy(publicKeyCopy[:], peerPublicKey[:])
	copy(privateKeyCopy[:], privateKey[:])

	sharedSecret, err := curve25519.X25519(privateKeyCopy[:], publicKeyCopy[:])
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DeriveSharedSecret",
			"error":    err.Error(),
		}).Error("X25519 computation failed")

		ZeroBytes(privateKeyCopy[:])
		return [32]byte{}, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}

	var result [32]byte
	copy(result[:], sharedSecret)

	// Wipe the key copy and the intermediate secret.
	ZeroBytes(privateKeyCopy[:])
	ZeroBytes(sharedSecret)

	logrus.WithFields(logrus.Fields{
		"function": "DeriveSharedSecret",
	}).Debug("Shared secret computed, sensitive data wiped")

	return result, nil
}

// ValidatePublicKey reports whether raw is a usable X25519 public key.
// Accepts exactly 32 bytes that are not all zero.
func ValidatePublicKey(raw []byte) error {
	if len(raw) != 32 {
		return fmt.Errorf("%w: got %d bytes, want 32", ErrInvalidKeyMaterial, len(raw))
	}

	var key [32]byte
	copy(key[:], raw)
	if isZeroKey(key) {
		return fmt.Errorf("%w: all-zero public key", ErrInvalidKeyMaterial)
	}

	return nil
}
