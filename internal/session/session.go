// Package session implements the server side of one client connection: a TCP
// stream for reliable traffic plus an optional UDP route for best-effort
// traffic, unified behind Send and Flush.
package session

import (
	"bufio"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/invaders/internal/command"
	"github.com/dcrodman/invaders/internal/transport"
)

// ErrClosed is returned when sending on a session that has been closed.
var ErrClosed = errors.New("session closed")

// maxLineSize bounds a single command line read from the TCP stream.
const maxLineSize = 64 * 1024

// DatagramSubmitter accepts outgoing datagrams without blocking.
type DatagramSubmitter interface {
	Submit(d transport.Datagram) bool
}

// Options holds the collaborators and tunables shared by every session.
type Options struct {
	Policy           command.Policy
	InboundQueueSize int
	WriteTimeout     time.Duration
	Datagrams        DatagramSubmitter
	Logger           logrus.FieldLogger
}

// Session is one physical client connection.
type Session struct {
	id     int64
	conn   *net.TCPConn
	remote *net.TCPAddr
	policy command.Policy
	logger logrus.FieldLogger

	inbound chan command.ServerCommand

	mu        sync.Mutex
	chain     *sender
	tcp       *tcpLink
	datagrams DatagramSubmitter
	udpAddr   *net.UDPAddr

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// New wraps an accepted connection. Until SetUDPChain is called every command
// goes over TCP. Call Serve to start reading from the connection.
func New(id int64, conn *net.TCPConn, opts Options) *Session {
	if opts.InboundQueueSize <= 0 {
		opts.InboundQueueSize = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	remote := conn.RemoteAddr().(*net.TCPAddr)
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	tcp := newTCPLink(conn, opts.WriteTimeout)
	return &Session{
		id:        id,
		conn:      conn,
		remote:    remote,
		policy:    opts.Policy,
		logger:    logger.WithFields(logrus.Fields{"session": id, "addr": remote.String()}),
		inbound:   make(chan command.ServerCommand, opts.InboundQueueSize),
		chain:     &sender{link: tcp},
		tcp:       tcp,
		datagrams: opts.Datagrams,
		done:      make(chan struct{}),
	}
}

// ID returns the numeric id assigned when the session was admitted.
func (s *Session) ID() int64 { return s.id }

// RemoteAddr returns the address of the client's TCP endpoint.
func (s *Session) RemoteAddr() *net.TCPAddr { return s.remote }

// Logger returns a logger tagged with the session id and address.
func (s *Session) Logger() logrus.FieldLogger { return s.logger }

// UDPAddr returns the client's UDP return address, or nil before SetUDPChain.
func (s *Session) UDPAddr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpAddr
}

// IsClosed reports whether the session has been closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Serve reads newline delimited commands from the TCP stream into the inbound
// queue and only returns once the connection has closed. Malformed lines are
// logged and skipped.
func (s *Session) Serve() {
	defer s.closeAndRecover()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cmd, err := command.DecodeServer(line)
		if err != nil {
			s.logger.Warnf("discarding tcp message: %v", err)
			continue
		}
		s.push(cmd)
	}

	if err := scanner.Err(); err != nil && !s.IsClosed() && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		s.logger.Warnf("error reading from client: %v", err)
	}
}

// closeAndRecover is the failsafe that catches any panics in the reader and
// closes the connection regardless of its state.
func (s *Session) closeAndRecover() {
	if err := recover(); err != nil {
		s.logger.Errorf("error in client communication: error=%v, trace: %s", err, debug.Stack())
	}
	_ = s.Close()
}

// UnwrapPacket decodes one UDP payload onto the inbound queue. Malformed payloads
// are logged and dropped.
func (s *Session) UnwrapPacket(payload []byte) {
	cmd, err := command.DecodeServer(payload)
	if err != nil {
		s.logger.Warnf("discarding datagram: %v", err)
		return
	}
	s.push(cmd)
}

func (s *Session) push(cmd command.ServerCommand) {
	select {
	case s.inbound <- cmd:
	default:
		s.logger.Warnf("inbound queue full, dropped %s", cmd.Kind())
	}
}

// ReadCommands drains every command received since the last call. It never
// blocks and returns nil if nothing arrived.
func (s *Session) ReadCommands() []command.ServerCommand {
	var cmds []command.ServerCommand
	for {
		select {
		case cmd := <-s.inbound:
			cmds = append(cmds, cmd)
		default:
			return cmds
		}
	}
}

// SetUDPChain puts a UDP link in front of the TCP link. Best-effort commands are
// sent as datagrams to the client's address on udpPort from then on.
func (s *Session) SetUDPChain(udpPort int) *net.UDPAddr {
	addr := &net.UDPAddr{IP: s.remote.IP, Port: udpPort, Zone: s.remote.Zone}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.udpAddr = addr
	if s.datagrams == nil {
		s.logger.Warn("no datagram sender configured, best-effort commands stay on tcp")
		return addr
	}
	s.chain = &sender{
		link: newUDPLink(addr, s.datagrams, s.logger),
		next: &sender{link: s.tcp},
	}
	return addr
}

// Send queues cmd for delivery on the link matching its affinity. It does not
// block on the network; call Flush to write queued commands out.
func (s *Session) Send(cmd command.Command) error {
	if s.IsClosed() {
		return ErrClosed
	}
	s.mu.Lock()
	chain := s.chain
	s.mu.Unlock()

	chain.send(cmd, s.policy.Affinity(cmd))
	return nil
}

// Flush writes out everything queued by Send. Ordering is kept within each
// transport but not across them. A failed TCP write closes the session.
func (s *Session) Flush() error {
	if s.IsClosed() {
		return ErrClosed
	}
	s.mu.Lock()
	chain := s.chain
	s.mu.Unlock()

	if err := chain.flush(); err != nil {
		s.logger.Warnf("closing session after failed write: %v", err)
		_ = s.Close()
		return err
	}
	return nil
}

// SendNow is Send followed by Flush.
func (s *Session) SendNow(cmd command.Command) error {
	if err := s.Send(cmd); err != nil {
		return err
	}
	return s.Flush()
}

// Close closes the TCP connection. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.conn.Close()
		close(s.done)
		s.logger.Debug("session closed")
	})
	return err
}
