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

// Datagram is one UDP payload together with its remote address: the sender for
// received datagrams and the destination for outgoing ones.
type Datagram struct {
	Addr    *net.UDPAddr
	Payload []byte
}

// UDPReceiver reads datagrams from a bound socket into a queue.
type UDPReceiver struct {
	Logger *logrus.Logger

	conn    *net.UDPConn
	out     chan Datagram
	maxSize int
	stopped atomic.Bool
	once    sync.Once
}

// ListenUDP binds address for receiving.
func ListenUDP(address string, queueSize, maxDatagramSize int, logger *logrus.Logger) (*UDPReceiver, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("error resolving address %s: %w", address, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("error listening on udp socket: %w", err)
	}

	return &UDPReceiver{
		Logger:  logger,
		conn:    conn,
		out:     make(chan Datagram, queueSize),
		maxSize: maxDatagramSize,
	}, nil
}

// Addr returns the address the receiver is bound to.
func (r *UDPReceiver) Addr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Datagrams is the queue of received datagrams.
func (r *UDPReceiver) Datagrams() <-chan Datagram {
	return r.out
}

// Run receives until ctx is cancelled or Close is called. Datagrams that arrive
// while the queue is full are dropped.
func (r *UDPReceiver) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()

	buffer := make([]byte, r.maxSize)
	for {
		n, addr, err := r.conn.ReadFromUDP(buffer)
		if err != nil {
			if r.stopped.Load() || errors.Is(err, net.ErrClosed) {
				r.Logger.Debug("udp receiver exited")
				return
			}
			r.Logger.Warnf("failed to receive datagram: %v", err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buffer[:n])

		select {
		case r.out <- Datagram{Addr: addr, Payload: payload}:
		default:
			r.Logger.Debugf("receive queue full, dropped datagram from %v", addr)
		}
	}
}

// Close stops the receiver. It is safe to call more than once.
func (r *UDPReceiver) Close() error {
	var err error
	r.once.Do(func() {
		r.stopped.Store(true)
		err = r.conn.Close()
	})
	return err
}

// UDPSender transmits queued datagrams from an ephemeral socket.
type UDPSender struct {
	Logger *logrus.Logger

	conn  *net.UDPConn
	queue chan Datagram
	once  sync.Once
}

// NewUDPSender opens an ephemeral socket for sending.
func NewUDPSender(queueSize int, logger *logrus.Logger) (*UDPSender, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("error opening udp send socket: %w", err)
	}
	return &UDPSender{
		Logger: logger,
		conn:   conn,
		queue:  make(chan Datagram, queueSize),
	}, nil
}

// Submit queues d for sending without blocking. It returns false if the queue
// is full and the datagram was dropped.
func (s *UDPSender) Submit(d Datagram) bool {
	select {
	case s.queue <- d:
		return true
	default:
		return false
	}
}

// Run sends datagrams until ctx is cancelled. Everything queued at the time of
// a wake-up is sent as one batch.
func (s *UDPSender) Run(ctx context.Context) {
	defer s.Close()

	batch := make([]Datagram, 0, cap(s.queue))
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.queue:
			batch = append(batch[:0], d)
		}

	drain:
		for {
			select {
			case d := <-s.queue:
				batch = append(batch, d)
			default:
				break drain
			}
		}

		for _, d := range batch {
			if _, err := s.conn.WriteToUDP(d.Payload, d.Addr); err != nil {
				s.Logger.Warnf("failed to send datagram to %v: %v", d.Addr, err)
			}
		}
	}
}

// Close releases the send socket. It is safe to call more than once.
func (s *UDPSender) Close() error {
	var err error
	s.once.Do(func() { err = s.conn.Close() })
	return err
}
