// Package call implements the call session state machine, the pending
// call registries, and the orchestrating manager for veilcall.
//
// The Manager is the single entry point the application layer talks to.
// It enforces the one-active-call invariant, routes inbound signaling
// to the right pending entry or session by call ID, and runs the
// long-latency parts of call setup (signaling sends, media path
// establishment) on background goroutines so callers never block.
//
// Sessions are single-use: every call attempt gets a fresh Session with
// a fresh ephemeral key pair, and a Session that reaches StateEnded is
// never restarted.
package call
