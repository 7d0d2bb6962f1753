package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/veilcall/crypto"
)

// Default retry budget for signaling sends. A send blocks its goroutine
// for up to SendAttempts * AttemptTimeout before giving up.
const (
	DefaultSendAttempts   = 5
	DefaultAttemptTimeout = 15 * time.Second
)

// Deliverer is the transport primitive the channel sends through.
// Implementations perform exactly one delivery attempt per call;
// retrying is the channel's responsibility, not the transport's.
type Deliverer interface {
	Deliver(ctx context.Context, destination string, blob []byte) error
}

// InboundHandler receives parsed, authenticated inbound messages.
// senderKey is the static public key proven by the envelope.
type InboundHandler func(senderKey [32]byte, msg *Message)

// Channel sends and receives call-control messages for one local
// identity. It is safe for concurrent use.
type Channel struct {
	deliverer Deliverer
	localKeys *crypto.KeyPair

	attempts       int
	attemptTimeout time.Duration

	handler InboundHandler

	mu sync.RWMutex
}

// NewChannel creates a signaling channel bound to the local identity
// key pair. Inbound envelopes are opened with localKeys; outbound
// messages are sealed from it.
func NewChannel(deliverer Deliverer, localKeys *crypto.KeyPair) (*Channel, error) {
	if deliverer == nil {
		return nil, errors.New("deliverer cannot be nil")
	}
	if localKeys == nil {
		return nil, errors.New("local key pair cannot be nil")
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewChannel",
	}).Debug("Creating signaling channel")

	return &Channel{
		deliverer:      deliverer,
		localKeys:      localKeys,
		attempts:       DefaultSendAttempts,
		attemptTimeout: DefaultAttemptTimeout,
	}, nil
}

// SetRetryPolicy overrides the send retry budget. Intended for tests;
// production code should keep the defaults from the protocol.
func (c *Channel) SetRetryPolicy(attempts int, attemptTimeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if attempts > 0 {
		c.attempts = attempts
	}
	if attemptTimeout > 0 {
		c.attemptTimeout = attemptTimeout
	}
}

// SetHandler registers the handler invoked for each authenticated
// inbound message. Pass nil to unregister.
func (c *Channel) SetHandler(handler InboundHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Send seals msg for the recipient and delivers it with bounded retry.
//
// Each attempt gets its own timeout; only after every attempt fails
// does the error surface, wrapped in ErrSendExhausted. Cancelling ctx
// stops the retry loop promptly and returns the context error.
func (c *Channel) Send(ctx context.Context, msg *Message, destination string, recipientKey [32]byte) error {
	data, err := Serialize(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize signaling message: %w", err)
	}

	sealed, err := crypto.SealEnvelope(data, c.localKeys, recipientKey)
	if err != nil {
		return fmt.Errorf("failed to seal signaling message: %w", err)
	}

	c.mu.RLock()
	attempts := c.attempts
	attemptTimeout := c.attemptTimeout
	c.mu.RUnlock()

	logrus.WithFields(logrus.Fields{
		"function":    "Send",
		"kind":        msg.Kind.String(),
		"call_id":     msg.CallID,
		"destination": destination,
		"attempts":    attempts,
	}).Info("Sending signaling message")

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := c.deliverer.Deliver(attemptCtx, destination, sealed)
		cancel()

		if err == nil {
			logrus.WithFields(logrus.Fields{
				"function": "Send",
				"kind":     msg.Kind.String(),
				"call_id":  msg.CallID,
				"attempt":  attempt,
			}).Debug("Signaling message delivered")
			return nil
		}

		lastErr = err
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"kind":     msg.Kind.String(),
			"call_id":  msg.CallID,
			"attempt":  attempt,
			"error":    err.Error(),
		}).Warn("Signaling delivery attempt failed")

		// A cancelled parent context ends the loop; a per-attempt
		// timeout does not.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Send",
		"kind":     msg.Kind.String(),
		"call_id":  msg.CallID,
		"attempts": attempts,
	}).Error("Signaling send exhausted all attempts")

	return fmt.Errorf("%w: %v", ErrSendExhausted, lastErr)
}

// HandleInbound opens and dispatches one inbound envelope. It is the
// entry point transports push received blobs into.
//
// Malformed or unauthenticated input is logged and dropped; the
// returned error exists for transport-side accounting and never
// indicates a fatal condition.
func (c *Channel) HandleInbound(blob []byte) error {
	payload, senderKey, err := crypto.OpenEnvelope(blob, c.localKeys)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "HandleInbound",
			"blob_size": len(blob),
			"error":     err.Error(),
		}).Warn("Dropping undecryptable signaling envelope")
		return err
	}

	msg, err := Deserialize(payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleInbound",
			"error":    err.Error(),
		}).Warn("Dropping malformed signaling message")
		return err
	}

	// OFFER and ANSWER must carry a usable ephemeral key.
	if msg.Kind == KindOffer || msg.Kind == KindAnswer {
		if err := crypto.ValidatePublicKey(msg.EphemeralPublicKey[:]); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "HandleInbound",
				"kind":     msg.Kind.String(),
				"call_id":  msg.CallID,
				"error":    err.Error(),
			}).Warn("Dropping signaling message with invalid ephemeral key")
			return err
		}
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler == nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleInbound",
			"kind":     msg.Kind.String(),
			"call_id":  msg.CallID,
		}).Debug("No inbound handler registered, dropping message")
		return nil
	}

	handler(senderKey, msg)
	return nil
}
