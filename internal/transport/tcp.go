// Package transport implements the raw socket services of the server: the TCP
// acceptor and the UDP receive/send pair. None of them inspect payloads; they
// only move connections and datagrams between sockets and queues.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// TCPAcceptor accepts stream connections and hands them off on a channel.
type TCPAcceptor struct {
	Logger *logrus.Logger

	listener *net.TCPListener
	conns    chan *net.TCPConn
	stopped  atomic.Bool
	once     sync.Once
}

// ListenTCP binds address and returns an acceptor ready to Run. queueSize is the
// capacity of the hand-off channel; zero makes every hand-off synchronous.
func ListenTCP(address string, queueSize int, logger *logrus.Logger) (*TCPAcceptor, error) {
	hostAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("error resolving address %s: %w", address, err)
	}

	listener, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("error listening on socket: %w", err)
	}

	return &TCPAcceptor{
		Logger:   logger,
		listener: listener,
		conns:    make(chan *net.TCPConn, queueSize),
	}, nil
}

// Addr returns the address the acceptor is bound to.
func (a *TCPAcceptor) Addr() *net.TCPAddr {
	return a.listener.Addr().(*net.TCPAddr)
}

// Connections is the queue of accepted sockets.
func (a *TCPAcceptor) Connections() <-chan *net.TCPConn {
	return a.conns
}

// Run accepts connections until ctx is cancelled or Close is called. A failed
// Accept is logged and the loop keeps going.
func (a *TCPAcceptor) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer stop()

	a.Logger.Infof("waiting for connections on %v", a.Addr())

	for {
		conn, err := a.listener.AcceptTCP()
		if err != nil {
			if a.stopped.Load() || errors.Is(err, net.ErrClosed) {
				a.Logger.Debug("tcp acceptor exited")
				return
			}
			a.Logger.Warnf("failed to accept connection: %v", err)
			continue
		}

		select {
		case a.conns <- conn:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
	}
}

// Close stops the acceptor and unblocks a pending Accept. It is safe to call
// more than once.
func (a *TCPAcceptor) Close() error {
	var err error
	a.once.Do(func() {
		a.stopped.Store(true)
		err = a.listener.Close()
	})
	return err
}
