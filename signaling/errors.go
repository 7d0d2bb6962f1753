package signaling

import "errors"

// Sentinel errors for signaling operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrSendExhausted indicates a send failed after all retry attempts.
	ErrSendExhausted = errors.New("send failed after all retry attempts")

	// ErrMessageTooShort indicates a truncated inbound message.
	ErrMessageTooShort = errors.New("signaling message too short")

	// ErrUnknownKind indicates an unrecognized message kind byte.
	ErrUnknownKind = errors.New("unknown signaling message kind")

	// ErrCallIDInvalid indicates an empty or oversized call ID.
	ErrCallIDInvalid = errors.New("invalid call ID")

	// ErrFieldTooLong indicates a variable-length field exceeding its limit.
	ErrFieldTooLong = errors.New("signaling field exceeds maximum length")
)
