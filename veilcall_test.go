package veilcall

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/veilcall/call"
	"github.com/opd-ai/veilcall/transport"
)

// discardDeliverer accepts and drops every blob.
type discardDeliverer struct{}

func (discardDeliverer) Deliver(ctx context.Context, destination string, blob []byte) error {
	return nil
}

// testPair wires two clients together over an in-process network.
type testPair struct {
	alice *Client
	bob   *Client
}

func newTestPair(t *testing.T) *testPair {
	t.Helper()

	network := transport.NewMemoryNetwork()

	var alice, bob *Client

	aliceDeliverer, err := network.Attach("alice.onion:9152", func(blob []byte) error {
		return alice.HandleInbound(blob)
	})
	require.NoError(t, err)

	bobDeliverer, err := network.Attach("bob.onion:9152", func(blob []byte) error {
		return bob.HandleInbound(blob)
	})
	require.NoError(t, err)

	aliceOpts := NewOptions()
	aliceOpts.Deliverer = aliceDeliverer
	aliceOpts.VoiceAddress = "alice-voice.onion:9152"
	alice, err = New(aliceOpts)
	require.NoError(t, err)
	t.Cleanup(alice.Kill)

	bobOpts := NewOptions()
	bobOpts.Deliverer = bobDeliverer
	bobOpts.VoiceAddress = "bob-voice.onion:9152"
	bob, err = New(bobOpts)
	require.NoError(t, err)
	t.Cleanup(bob.Kill)

	require.NoError(t, alice.AddPeer(bob.SelfPublicKey(), "bob.onion:9152"))
	require.NoError(t, bob.AddPeer(alice.SelfPublicKey(), "alice.onion:9152"))

	return &testPair{alice: alice, bob: bob}
}

func waitForState(t *testing.T, states <-chan call.State, want call.State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-states:
			if state == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestTwoClientCallFlow(t *testing.T) {
	pair := newTestPair(t)

	aliceStates := make(chan call.State, 16)
	pair.alice.OnCallStateChanged(func(_ string, state call.State) {
		aliceStates <- state
	})
	aliceEnded := make(chan call.EndReason, 4)
	pair.alice.OnCallEnded(func(_ string, reason call.EndReason) {
		aliceEnded <- reason
	})

	bobStates := make(chan call.State, 16)
	pair.bob.OnCallStateChanged(func(_ string, state call.State) {
		bobStates <- state
	})
	bobEnded := make(chan call.EndReason, 4)
	pair.bob.OnCallEnded(func(_ string, reason call.EndReason) {
		bobEnded <- reason
	})

	pair.bob.OnIncomingCall(func(callID string, peerKey [32]byte) {
		assert.Equal(t, pair.alice.SelfPublicKey(), peerKey)
		go func() {
			if err := pair.bob.AnswerCall(callID); err != nil {
				t.Errorf("answer failed: %v", err)
			}
		}()
	})

	callID, err := pair.alice.StartCall(pair.bob.SelfPublicKey())
	require.NoError(t, err)
	require.NotEmpty(t, callID)

	waitForState(t, aliceStates, call.StateActive)
	waitForState(t, bobStates, call.StateActive)

	id, state, ok := pair.alice.ActiveCall()
	require.True(t, ok)
	assert.Equal(t, callID, id)
	assert.Equal(t, call.StateActive, state)

	// Hang up on the caller's side; both ends observe termination.
	require.NoError(t, pair.alice.EndCall())

	select {
	case reason := <-aliceEnded:
		assert.Equal(t, call.EndLocalHangup, reason.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("caller never observed call end")
	}

	select {
	case reason := <-bobEnded:
		assert.Equal(t, call.EndPeerHangup, reason.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("callee never observed call end")
	}
}

func TestCalleeDeclines(t *testing.T) {
	pair := newTestPair(t)

	aliceEnded := make(chan call.EndReason, 4)
	pair.alice.OnCallEnded(func(_ string, reason call.EndReason) {
		aliceEnded <- reason
	})

	pair.bob.OnIncomingCall(func(callID string, _ [32]byte) {
		go func() {
			if err := pair.bob.RejectCall(callID, "not available"); err != nil {
				t.Errorf("reject failed: %v", err)
			}
		}()
	})

	_, err := pair.alice.StartCall(pair.bob.SelfPublicKey())
	require.NoError(t, err)

	select {
	case reason := <-aliceEnded:
		assert.Equal(t, call.EndDeclined, reason.Code)
		assert.Equal(t, "not available", reason.Detail)
	case <-time.After(2 * time.Second):
		t.Fatal("caller never observed the decline")
	}
}

func TestStartCallToUnknownPeer(t *testing.T) {
	opts := NewOptions()
	opts.Deliverer = discardDeliverer{}
	client, err := New(opts)
	require.NoError(t, err)
	defer client.Kill()

	_, err = client.StartCall([32]byte{9})
	assert.ErrorIs(t, err, ErrPeerNotFound)
}

func TestAddPeerWithCustomResolver(t *testing.T) {
	opts := NewOptions()
	opts.Deliverer = discardDeliverer{}
	opts.Resolver = NewAddressBook()
	client, err := New(opts)
	require.NoError(t, err)
	defer client.Kill()

	assert.Error(t, client.AddPeer([32]byte{1}, "peer.onion:9152"))
}

func TestKillStopsClient(t *testing.T) {
	opts := NewOptions()
	opts.Deliverer = discardDeliverer{}
	client, err := New(opts)
	require.NoError(t, err)

	require.True(t, client.IsRunning())
	client.Kill()
	assert.False(t, client.IsRunning())

	_, err = client.StartCall([32]byte{1})
	assert.ErrorIs(t, err, call.ErrNotRunning)
}

func TestIterationInterval(t *testing.T) {
	opts := NewOptions()
	opts.Deliverer = discardDeliverer{}
	client, err := New(opts)
	require.NoError(t, err)
	defer client.Kill()

	assert.Equal(t, call.SweepInterval, client.IterationInterval())
}
