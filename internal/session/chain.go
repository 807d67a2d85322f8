package session

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/invaders/internal/command"
	"github.com/dcrodman/invaders/internal/transport"
)

// ErrUnhandledCommand means a sender chain has no link for a command. Chains
// always end in a TCP link, so this is a programming error and is raised as a panic.
var ErrUnhandledCommand = errors.New("no link in sender chain accepts command")

// link is one transport in a sender chain.
type link interface {
	accepts(a command.Affinity) bool
	queue(cmd command.Command)
	flush() error
}

// sender is a node of the chain of responsibility: it hands a command to its own
// link if the link accepts it and forwards to next otherwise.
type sender struct {
	link link
	next *sender
}

func (s *sender) send(cmd command.Command, a command.Affinity) {
	for cur := s; cur != nil; cur = cur.next {
		if cur.link.accepts(a) {
			cur.link.queue(cmd)
			return
		}
	}
	panic(fmt.Errorf("%w: %s (%v)", ErrUnhandledCommand, cmd.Kind(), a))
}

func (s *sender) flush() error {
	var errs []error
	for cur := s; cur != nil; cur = cur.next {
		if err := cur.link.flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// tcpLink writes newline framed commands to the stream. It accepts every
// affinity so best-effort commands fall back to it.
type tcpLink struct {
	mu      sync.Mutex
	conn    *net.TCPConn
	writer  *bufio.Writer
	timeout time.Duration
	pending []command.Command
}

func newTCPLink(conn *net.TCPConn, timeout time.Duration) *tcpLink {
	return &tcpLink{conn: conn, writer: bufio.NewWriter(conn), timeout: timeout}
}

func (l *tcpLink) accepts(command.Affinity) bool { return true }

func (l *tcpLink) queue(cmd command.Command) {
	l.mu.Lock()
	l.pending = append(l.pending, cmd)
	l.mu.Unlock()
}

func (l *tcpLink) flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil
	}

	pending := l.pending
	l.pending = nil

	// The buffered writer flushes to the socket on its own once a batch
	// outgrows it, so the deadline has to cover every write.
	_ = l.conn.SetWriteDeadline(time.Now().Add(l.timeout))
	for _, cmd := range pending {
		line, err := command.EncodeLine(cmd)
		if err != nil {
			return err
		}
		if _, err := l.writer.Write(line); err != nil {
			return fmt.Errorf("tcp write: %w", err)
		}
	}

	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("tcp flush: %w", err)
	}
	return nil
}

// udpLink turns best-effort commands into one datagram each.
type udpLink struct {
	mu        sync.Mutex
	addr      *net.UDPAddr
	datagrams DatagramSubmitter
	logger    logrus.FieldLogger
	pending   []command.Command
}

func newUDPLink(addr *net.UDPAddr, datagrams DatagramSubmitter, logger logrus.FieldLogger) *udpLink {
	return &udpLink{addr: addr, datagrams: datagrams, logger: logger}
}

func (l *udpLink) accepts(a command.Affinity) bool { return a == command.BestEffort }

func (l *udpLink) queue(cmd command.Command) {
	l.mu.Lock()
	l.pending = append(l.pending, cmd)
	l.mu.Unlock()
}

func (l *udpLink) flush() error {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, cmd := range pending {
		payload, err := command.Encode(cmd)
		if err != nil {
			return err
		}
		if !l.datagrams.Submit(transport.Datagram{Addr: l.addr, Payload: payload}) {
			l.logger.Debugf("send queue full, dropped %s", cmd.Kind())
		}
	}
	return nil
}
