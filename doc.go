// Package veilcall implements signaling and session lifecycle for
// end-to-end encrypted voice calls between peers reached over an
// anonymizing transport.
//
// Each call begins with an ephemeral X25519 key agreement carried
// inside sealed signaling envelopes: the caller sends OFFER, the callee
// responds with ANSWER, REJECT, or BUSY. Both sides derive the same
// shared secret from the exchanged ephemeral keys and hand it to the
// media layer; long-term identity keys only authenticate the envelopes
// and never protect voice data.
//
// The Client type is the top-level entry point:
//
//	client, err := veilcall.New(veilcall.NewOptions())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Kill()
//
//	client.OnIncomingCall(func(callID string, peerKey [32]byte) {
//		client.AnswerCall(callID)
//	})
//
//	for client.IsRunning() {
//		client.Iterate()
//		time.Sleep(client.IterationInterval())
//	}
//
// One call is in flight at a time; offers arriving during a call are
// answered with BUSY automatically. All timeouts (unanswered outgoing
// calls, unattended incoming calls, stalled media) are driven by the
// Iterate loop.
package veilcall
