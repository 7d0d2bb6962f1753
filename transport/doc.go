// Package transport moves sealed signaling blobs between peers.
//
// Delivery is one-shot: each blob is a single length-prefixed frame on
// a fresh TCP connection, dialed through a SOCKS5 proxy so the remote
// address can be an onion service. The receiving side runs a Listener
// that reads one frame per connection and hands it to the signaling
// layer.
//
// An in-process MemoryNetwork implements the same contract without
// sockets and backs tests and demos.
package transport
