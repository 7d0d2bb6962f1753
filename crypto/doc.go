// Package crypto implements the cryptographic primitives for veilcall
// signaling and media-key agreement.
//
// This package handles ephemeral key generation, X25519 shared-secret
// derivation, secure wiping of key material, and the sealed envelopes
// that authenticate signaling messages under a sender's long-term
// identity key.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	secret, err := crypto.DeriveSharedSecret(peerPublic, keys.Private)
package crypto
