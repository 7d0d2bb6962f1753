package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrUnknownEndpoint is returned when a memory delivery targets an
// address no endpoint is attached to.
var ErrUnknownEndpoint = errors.New("no endpoint attached at address")

// MemoryNetwork routes signaling blobs between in-process endpoints by
// address. It stands in for the SOCKS path in tests and demos.
type MemoryNetwork struct {
	endpoints map[string]BlobHandler
	mu        sync.RWMutex
}

// NewMemoryNetwork creates an empty in-process network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{endpoints: make(map[string]BlobHandler)}
}

// Attach registers a handler at an address and returns the endpoint's
// deliverer for outbound traffic.
func (n *MemoryNetwork) Attach(address string, handler BlobHandler) (*MemoryDeliverer, error) {
	if handler == nil {
		return nil, errors.New("blob handler cannot be nil")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.endpoints[address]; exists {
		return nil, fmt.Errorf("address already attached: %s", address)
	}
	n.endpoints[address] = handler

	logrus.WithFields(logrus.Fields{
		"function": "Attach",
		"address":  address,
	}).Debug("Endpoint attached to memory network")

	return &MemoryDeliverer{network: n, local: address}, nil
}

// Detach removes the endpoint at an address.
func (n *MemoryNetwork) Detach(address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, address)
}

func (n *MemoryNetwork) deliver(destination string, blob []byte) error {
	n.mu.RLock()
	handler, ok := n.endpoints[destination]
	n.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, destination)
	}
	return handler(blob)
}

// MemoryDeliverer is one endpoint's outbound side on a MemoryNetwork.
type MemoryDeliverer struct {
	network *MemoryNetwork
	local   string
}

// Deliver hands the blob to the destination endpoint's handler. The
// copy keeps the recipient isolated from the caller's buffer reuse.
func (d *MemoryDeliverer) Deliver(ctx context.Context, destination string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, len(blob))
	copy(buf, blob)

	return d.network.deliver(destination, buf)
}
