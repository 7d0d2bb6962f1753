package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// BlobHandler consumes one inbound sealed signaling blob. Errors are
// the handler's to report; the listener only logs them.
type BlobHandler func(blob []byte) error

// Listener accepts one-shot signaling connections and hands each frame
// to its handler. A peer exposes it behind an onion service so callers
// can reach it without learning its network location.
type Listener struct {
	listener net.Listener
	handler  BlobHandler

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewListener starts accepting signaling connections on bindAddr.
func NewListener(bindAddr string, handler BlobHandler) (*Listener, error) {
	if handler == nil {
		return nil, errors.New("blob handler cannot be nil")
	}

	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", bindAddr, err)
	}

	l := &Listener{
		listener: ln,
		handler:  handler,
		done:     make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewListener",
		"bind_addr": ln.Addr().String(),
	}).Info("Signaling listener started")

	l.wg.Add(1)
	go l.acceptLoop()

	return l, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close stops accepting and waits for in-flight connections.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.listener.Close()
		l.wg.Wait()

		logrus.WithFields(logrus.Fields{
			"function": "Close",
		}).Info("Signaling listener stopped")
	})
	return err
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			logrus.WithFields(logrus.Fields{
				"function": "acceptLoop",
				"error":    err.Error(),
			}).Warn("Accept failed")
			continue
		}

		l.wg.Add(1)
		go l.handleConn(conn)
	}
}

// handleConn reads the connection's single frame and dispatches it.
// Malformed or slow connections are dropped without affecting others.
func (l *Listener) handleConn(conn net.Conn) {
	defer l.wg.Done()
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(connReadTimeout)); err != nil {
		return
	}

	blob, err := ReadFrame(conn)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "handleConn",
			"remote_addr": conn.RemoteAddr().String(),
			"error":       err.Error(),
		}).Debug("Dropping malformed signaling connection")
		return
	}

	if err := l.handler(blob); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "handleConn",
			"blob_size": len(blob),
			"error":     err.Error(),
		}).Debug("Inbound signaling blob not accepted")
	}
}
