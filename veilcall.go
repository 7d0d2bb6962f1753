package veilcall

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/veilcall/call"
	"github.com/opd-ai/veilcall/crypto"
	"github.com/opd-ai/veilcall/signaling"
	"github.com/opd-ai/veilcall/transport"
)

// ErrPeerNotFound is returned when no address is known for a peer key.
var ErrPeerNotFound = errors.New("peer address not found")

// IncomingCallCallback is invoked when a peer offers a call.
type IncomingCallCallback func(callID string, peerKey [32]byte)

// CallStateCallback is invoked on every call state change.
type CallStateCallback func(callID string, state call.State)

// CallEndedCallback is invoked exactly once when a call reaches a
// terminal state.
type CallEndedCallback func(callID string, reason call.EndReason)

// Options contains configuration for creating a Client instance.
type Options struct {
	// StaticKeys is the long-term identity. Generated when nil.
	StaticKeys *crypto.KeyPair

	// VoiceAddress is advertised to peers in OFFER and ANSWER messages
	// as the endpoint for the media path.
	VoiceAddress string

	// ListenAddress, when set, starts a signaling listener bound there.
	ListenAddress string

	// ProxyAddress is the SOCKS5 proxy used for outbound signaling when
	// no Deliverer is supplied.
	ProxyAddress string

	// Deliverer overrides the SOCKS transport, e.g. with a
	// transport.MemoryDeliverer in tests.
	Deliverer signaling.Deliverer

	// Resolver maps peer keys to signaling addresses. Defaults to an
	// AddressBook populated through AddPeer.
	Resolver call.AddressResolver

	// Media builds the encrypted voice path once a call connects.
	// Defaults to an inert factory so signaling can run without audio.
	Media call.MediaFactory

	// History, when set, receives a record for every finished call.
	History call.HistorySink

	// TimeProvider defaults to the wall clock.
	TimeProvider crypto.TimeProvider

	SendAttempts   int
	AttemptTimeout time.Duration
}

// NewOptions creates an Options with reasonable defaults.
func NewOptions() *Options {
	return &Options{
		ProxyAddress:   "127.0.0.1:9050",
		SendAttempts:   signaling.DefaultSendAttempts,
		AttemptTimeout: signaling.DefaultAttemptTimeout,
	}
}

// Client is a veilcall endpoint: one identity that can place, receive,
// and tear down end-to-end encrypted voice calls over an anonymizing
// transport.
type Client struct {
	options *Options
	keyPair *crypto.KeyPair

	channel  *signaling.Channel
	manager  *call.Manager
	notifier *callbackNotifier
	listener *transport.Listener

	// book is non-nil only when the default resolver is in use.
	book *AddressBook

	timeProvider crypto.TimeProvider
}

// New creates a Client instance with the given options.
func New(options *Options) (*Client, error) {
	if options == nil {
		options = NewOptions()
	}

	keyPair := options.StaticKeys
	if keyPair == nil {
		generated, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("failed to generate identity keys: %w", err)
		}
		keyPair = generated
	}

	deliverer := options.Deliverer
	if deliverer == nil {
		if options.ProxyAddress == "" {
			return nil, errors.New("either a deliverer or a proxy address is required")
		}
		socks, err := transport.NewSocksDeliverer(transport.SocksConfig{
			ProxyAddress: options.ProxyAddress,
		})
		if err != nil {
			return nil, err
		}
		deliverer = socks
	}

	var book *AddressBook
	resolver := options.Resolver
	if resolver == nil {
		book = NewAddressBook()
		resolver = book
	}

	media := options.Media
	if media == nil {
		media = inertMediaFactory{}
	}

	timeProvider := options.TimeProvider
	if timeProvider == nil {
		timeProvider = crypto.DefaultTimeProvider{}
	}

	channel, err := signaling.NewChannel(deliverer, keyPair)
	if err != nil {
		return nil, err
	}
	if options.SendAttempts > 0 && options.AttemptTimeout > 0 {
		channel.SetRetryPolicy(options.SendAttempts, options.AttemptTimeout)
	}

	notifier := &callbackNotifier{}

	manager, err := call.NewManager(call.Config{
		Sender:   channel,
		Resolver: resolver,
		Identity: &staticIdentity{keyPair: keyPair, voiceAddress: options.VoiceAddress},
		Media:    media,
		Notifier: notifier,
		History:  options.History,

		TimeProvider: timeProvider,
	})
	if err != nil {
		return nil, err
	}

	channel.SetHandler(manager.HandleSignal)

	if err := manager.Start(); err != nil {
		return nil, err
	}

	client := &Client{
		options:      options,
		keyPair:      keyPair,
		channel:      channel,
		manager:      manager,
		notifier:     notifier,
		book:         book,
		timeProvider: timeProvider,
	}

	if options.ListenAddress != "" {
		listener, err := transport.NewListener(options.ListenAddress, channel.HandleInbound)
		if err != nil {
			manager.Stop()
			return nil, err
		}
		client.listener = listener
	}

	logrus.WithFields(logrus.Fields{
		"function":    "New",
		"listen_addr": options.ListenAddress,
	}).Info("Client instance created")

	return client, nil
}

// SelfPublicKey returns the long-term identity key peers address this
// client by.
func (c *Client) SelfPublicKey() [32]byte {
	return c.keyPair.Public
}

// AddPeer records the signaling address for a peer key in the default
// address book. It fails when a custom resolver is in use.
func (c *Client) AddPeer(peerKey [32]byte, address string) error {
	if c.book == nil {
		return errors.New("a custom address resolver is configured")
	}
	c.book.Add(peerKey, address)
	return nil
}

// StartCall places a call to the peer and returns its call ID. Progress
// is reported through the registered callbacks.
func (c *Client) StartCall(peerKey [32]byte) (string, error) {
	return c.manager.StartCall(peerKey)
}

// AnswerCall accepts the incoming call with the given ID.
func (c *Client) AnswerCall(callID string) error {
	return c.manager.Answer(callID)
}

// RejectCall declines the incoming call with the given ID.
func (c *Client) RejectCall(callID, reason string) error {
	return c.manager.Reject(callID, reason)
}

// EndCall hangs up the active call, if any.
func (c *Client) EndCall() error {
	return c.manager.EndCall("hangup")
}

// SetMuted toggles the microphone for the active call.
func (c *Client) SetMuted(muted bool) {
	c.manager.SetMuted(muted)
}

// SetSpeakerEnabled toggles speakerphone for the active call.
func (c *Client) SetSpeakerEnabled(enabled bool) {
	c.manager.SetSpeakerEnabled(enabled)
}

// NoteMediaActivity reports live media traffic on the active call,
// deferring stall teardown.
func (c *Client) NoteMediaActivity() {
	c.manager.NoteMediaActivity()
}

// ActiveCall returns the in-flight call's ID and state, if any.
func (c *Client) ActiveCall() (string, call.State, bool) {
	return c.manager.ActiveCall()
}

// IsRunning reports whether the client accepts call operations.
func (c *Client) IsRunning() bool {
	return c.manager.IsRunning()
}

// HandleInbound feeds one sealed signaling blob from a custom transport
// into the client.
func (c *Client) HandleInbound(blob []byte) error {
	return c.channel.HandleInbound(blob)
}

// OnIncomingCall sets the callback for incoming call offers.
func (c *Client) OnIncomingCall(callback IncomingCallCallback) {
	c.notifier.setIncoming(callback)
}

// OnCallStateChanged sets the callback for call state transitions.
func (c *Client) OnCallStateChanged(callback CallStateCallback) {
	c.notifier.setState(callback)
}

// OnCallEnded sets the callback for call termination.
func (c *Client) OnCallEnded(callback CallEndedCallback) {
	c.notifier.setEnded(callback)
}

// Iterate advances time-based processing: pending call timeouts,
// incoming call expiry, and stall detection. Call it periodically, at
// IterationInterval.
func (c *Client) Iterate() {
	c.manager.Sweep(c.timeProvider.Now())
}

// IterationInterval returns the recommended cadence for Iterate.
func (c *Client) IterationInterval() time.Duration {
	return call.SweepInterval
}

// Kill stops the client and releases all resources. Any active call is
// torn down with a shutdown reason.
func (c *Client) Kill() {
	if c.listener != nil {
		c.listener.Close()
	}
	c.manager.Stop()

	logrus.WithFields(logrus.Fields{
		"function": "Kill",
	}).Info("Client instance stopped")
}

// callbackNotifier adapts the application's callbacks to the manager's
// notifier contract. Unset callbacks drop the event.
type callbackNotifier struct {
	mu       sync.RWMutex
	incoming IncomingCallCallback
	state    CallStateCallback
	ended    CallEndedCallback
}

func (n *callbackNotifier) setIncoming(cb IncomingCallCallback) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.incoming = cb
}

func (n *callbackNotifier) setState(cb CallStateCallback) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = cb
}

func (n *callbackNotifier) setEnded(cb CallEndedCallback) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = cb
}

func (n *callbackNotifier) OnIncomingCall(callID string, peerKey [32]byte) {
	n.mu.RLock()
	cb := n.incoming
	n.mu.RUnlock()
	if cb != nil {
		cb(callID, peerKey)
	}
}

func (n *callbackNotifier) OnStateChanged(callID string, state call.State) {
	n.mu.RLock()
	cb := n.state
	n.mu.RUnlock()
	if cb != nil {
		cb(callID, state)
	}
}

func (n *callbackNotifier) OnCallEnded(callID string, reason call.EndReason) {
	n.mu.RLock()
	cb := n.ended
	n.mu.RUnlock()
	if cb != nil {
		cb(callID, reason)
	}
}

// staticIdentity is the fixed identity a client is constructed with.
type staticIdentity struct {
	keyPair      *crypto.KeyPair
	voiceAddress string
}

func (s *staticIdentity) LocalKeyPair() *crypto.KeyPair { return s.keyPair }
func (s *staticIdentity) LocalVoiceAddress() string     { return s.voiceAddress }

// AddressBook is the default peer key to signaling address resolver.
type AddressBook struct {
	mu      sync.RWMutex
	entries map[[32]byte]string
}

// NewAddressBook creates an empty address book.
func NewAddressBook() *AddressBook {
	return &AddressBook{entries: make(map[[32]byte]string)}
}

// Add stores or replaces the address for a peer key.
func (b *AddressBook) Add(peerKey [32]byte, address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[peerKey] = address
}

// ResolvePeerAddress returns the stored address for a peer key.
func (b *AddressBook) ResolvePeerAddress(peerKey [32]byte) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	address, ok := b.entries[peerKey]
	if !ok {
		return "", ErrPeerNotFound
	}
	return address, nil
}

// inertMediaFactory satisfies the media contract when the embedding
// application wires its own audio pipeline elsewhere.
type inertMediaFactory struct{}

func (inertMediaFactory) EstablishMediaPath(secret [32]byte, peerVoiceAddress string) (call.MediaHandle, error) {
	return inertMediaHandle{}, nil
}

type inertMediaHandle struct{}

func (inertMediaHandle) Close() error { return nil }
