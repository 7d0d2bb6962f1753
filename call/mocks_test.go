package call

import (
	"context"
	"sync"
	"time"

	"github.com/opd-ai/veilcall/crypto"
	"github.com/opd-ai/veilcall/signaling"
)

// fakeClock is a mutable TimeProvider for deterministic timeout tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// sentMessage records one mockSender delivery.
type sentMessage struct {
	msg  *signaling.Message
	dest string
	key  [32]byte
}

// mockSender records sends and can be told to fail specific kinds.
type mockSender struct {
	mu        sync.Mutex
	sent      []sentMessage
	failKinds map[signaling.MessageKind]error

	// sentCh receives every successful send, for test synchronization.
	sentCh chan sentMessage
}

func newMockSender() *mockSender {
	return &mockSender{
		failKinds: make(map[signaling.MessageKind]error),
		sentCh:    make(chan sentMessage, 16),
	}
}

func (s *mockSender) failKind(kind signaling.MessageKind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failKinds[kind] = err
}

func (s *mockSender) Send(ctx context.Context, msg *signaling.Message, destination string, recipientKey [32]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.failKinds[msg.Kind]; err != nil {
		s.mu.Unlock()
		return err
	}
	record := sentMessage{msg: msg, dest: destination, key: recipientKey}
	s.sent = append(s.sent, record)
	s.mu.Unlock()

	s.sentCh <- record
	return nil
}

func (s *mockSender) sentKinds() []signaling.MessageKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]signaling.MessageKind, 0, len(s.sent))
	for _, rec := range s.sent {
		kinds = append(kinds, rec.msg.Kind)
	}
	return kinds
}

// mockResolver maps every peer to a fixed address scheme.
type mockResolver struct{}

func (mockResolver) ResolvePeerAddress(peerKey [32]byte) (string, error) {
	return "peer.onion:9152", nil
}

// mockIdentity is a static identity store.
type mockIdentity struct {
	keys *crypto.KeyPair
}

func newMockIdentity() *mockIdentity {
	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		panic(err)
	}
	return &mockIdentity{keys: keys}
}

func (m *mockIdentity) LocalKeyPair() *crypto.KeyPair { return m.keys }
func (m *mockIdentity) LocalVoiceAddress() string     { return "local-voice.onion:9152" }

// mockHandle tracks whether a media path was released.
type mockHandle struct {
	mu     sync.Mutex
	closed int
}

func (h *mockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
	return nil
}

func (h *mockHandle) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// mockMedia establishes mock media paths, optionally failing or
// blocking until released (for teardown-race tests).
type mockMedia struct {
	mu           sync.Mutex
	establishErr error
	established  int
	handles      []*mockHandle

	// blockCh, when non-nil, stalls EstablishMediaPath until closed.
	blockCh chan struct{}
	// enteredCh reports that EstablishMediaPath has been entered.
	enteredCh chan struct{}
}

func newMockMedia() *mockMedia {
	return &mockMedia{enteredCh: make(chan struct{}, 16)}
}

func (m *mockMedia) EstablishMediaPath(secret [32]byte, peerVoiceAddress string) (MediaHandle, error) {
	m.enteredCh <- struct{}{}

	m.mu.Lock()
	block := m.blockCh
	m.mu.Unlock()
	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.establishErr != nil {
		return nil, m.establishErr
	}
	handle := &mockHandle{}
	m.established++
	m.handles = append(m.handles, handle)
	return handle, nil
}

func (m *mockMedia) establishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.established
}

// Notification events recorded by mockNotifier.
type stateEvent struct {
	callID string
	state  State
}

type endedEvent struct {
	callID string
	reason EndReason
}

type incomingEvent struct {
	callID  string
	peerKey [32]byte
}

// mockNotifier delivers notifications on channels so tests can wait
// for asynchronous progress without sleeping.
type mockNotifier struct {
	incoming chan incomingEvent
	states   chan stateEvent
	ended    chan endedEvent
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{
		incoming: make(chan incomingEvent, 16),
		states:   make(chan stateEvent, 16),
		ended:    make(chan endedEvent, 16),
	}
}

func (n *mockNotifier) OnIncomingCall(callID string, peerKey [32]byte) {
	n.incoming <- incomingEvent{callID: callID, peerKey: peerKey}
}

func (n *mockNotifier) OnStateChanged(callID string, state State) {
	n.states <- stateEvent{callID: callID, state: state}
}

func (n *mockNotifier) OnCallEnded(callID string, reason EndReason) {
	n.ended <- endedEvent{callID: callID, reason: reason}
}

// mockHistory records history entries.
type mockHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

func (h *mockHistory) RecordCallHistory(entry HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return nil
}
