// Package signaling implements the call-control message layer for
// veilcall: OFFER, ANSWER, REJECT, and BUSY messages exchanged between
// peers before and during a call.
//
// Messages travel as sealed envelopes over an injected delivery
// primitive, so the package works unchanged over the in-process test
// transport and the SOCKS5 onion transport. Sends retry with a bounded
// budget; receiving is push-based, with malformed input logged and
// dropped rather than propagated.
package signaling
