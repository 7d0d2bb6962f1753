package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// DefaultSignalingPort is the conventional port a peer's signaling
// listener binds behind its onion service.
const DefaultSignalingPort = 9152

// SocksConfig configures a SocksDeliverer.
type SocksConfig struct {
	// ProxyAddress is the SOCKS5 endpoint, typically a local Tor
	// client at 127.0.0.1:9050.
	ProxyAddress string
	Username     string
	Password     string
}

// SocksDeliverer delivers sealed signaling blobs over fresh TCP
// connections dialed through a SOCKS5 proxy. Each Deliver call is one
// connection carrying one frame.
type SocksDeliverer struct {
	dialer    proxy.Dialer
	proxyAddr string
}

// NewSocksDeliverer creates a deliverer dialing through the given
// SOCKS5 proxy.
func NewSocksDeliverer(config SocksConfig) (*SocksDeliverer, error) {
	if config.ProxyAddress == "" {
		return nil, fmt.Errorf("proxy address cannot be empty")
	}

	var auth *proxy.Auth
	if config.Username != "" || config.Password != "" {
		auth = &proxy.Auth{User: config.Username, Password: config.Password}
	}

	dialer, err := proxy.SOCKS5("tcp", config.ProxyAddress, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewSocksDeliverer",
		"proxy_addr": config.ProxyAddress,
	}).Info("SOCKS5 signaling deliverer created")

	return &SocksDeliverer{
		dialer:    dialer,
		proxyAddr: config.ProxyAddress,
	}, nil
}

// Deliver dials destination through the proxy, writes the blob as a
// single frame, and closes the connection. The context bounds the whole
// attempt.
func (d *SocksDeliverer) Deliver(ctx context.Context, destination string, blob []byte) error {
	logrus.WithFields(logrus.Fields{
		"function":    "Deliver",
		"destination": destination,
		"proxy_addr":  d.proxyAddr,
		"blob_size":   len(blob),
	}).Debug("Delivering signaling blob via SOCKS5")

	conn, err := d.dialContext(ctx, destination)
	if err != nil {
		return fmt.Errorf("proxy dial failed: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if err := WriteFrame(conn, blob); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "Deliver",
			"destination": destination,
			"error":       err.Error(),
		}).Warn("Signaling blob delivery failed")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Deliver",
		"destination": destination,
		"blob_size":   len(blob),
	}).Debug("Signaling blob delivered")

	return nil
}

// dialContext routes through the dialer's context support when it has
// any, falling back to a goroutine-guarded plain dial.
func (d *SocksDeliverer) dialContext(ctx context.Context, destination string) (net.Conn, error) {
	if cd, ok := d.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", destination)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	result := make(chan dialResult, 1)
	go func() {
		conn, err := d.dialer.Dial("tcp", destination)
		result <- dialResult{conn: conn, err: err}
	}()

	select {
	case res := <-result:
		return res.conn, res.err
	case <-ctx.Done():
		go func() {
			if res := <-result; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// connReadTimeout bounds how long an inbound connection may take to
// produce its single frame.
const connReadTimeout = 30 * time.Second
