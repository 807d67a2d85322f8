// Package registry tracks the live sessions of the server, enforces the
// connection ceiling and routes connectionless UDP datagrams to their session.
package registry

import (
	"context"
	"net"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/invaders/internal/core"
	"github.com/dcrodman/invaders/internal/session"
	"github.com/dcrodman/invaders/internal/transport"
)

// Registry is a concurrency-safe map from remote address to Session. Lookups
// take a read lock so the datagram dispatcher never waits on other lookups.
type Registry struct {
	Logger *logrus.Logger

	maxConnections int
	ids            *core.IDGenerator
	opts           session.Options

	mu       sync.RWMutex
	sessions map[string]*session.Session

	// Sessions again, keyed by their UDP return address once onboarded.
	routes map[string]*session.Session

	// Addresses that failed the handshake recently, keyed by IP.
	rejected *gocache.Cache
	cooldown time.Duration
}

// New returns an empty registry. Every admitted session is built with opts and
// gets its id from ids.
func New(maxConnections int, cooldown time.Duration, ids *core.IDGenerator, opts session.Options, logger *logrus.Logger) *Registry {
	if opts.Logger == nil {
		opts.Logger = logger
	}
	r := &Registry{
		Logger:         logger,
		maxConnections: maxConnections,
		ids:            ids,
		opts:           opts,
		sessions:       make(map[string]*session.Session),
		routes:         make(map[string]*session.Session),
		cooldown:       cooldown,
	}
	if cooldown > 0 {
		r.rejected = gocache.New(cooldown, cooldown)
	}
	return r
}

// Admit wraps conn in a new Session and starts reading from it. Dead sessions
// are reaped first. If the registry is at capacity, the address is cooling down
// after a failed handshake or already has a live session, conn is closed and
// nil is returned.
func (r *Registry) Admit(conn *net.TCPConn) *session.Session {
	r.Reap()

	remote := conn.RemoteAddr().(*net.TCPAddr)
	if r.isCoolingDown(remote.IP) {
		r.Logger.Debugf("refused %v: cooling down after a failed handshake", remote)
		_ = conn.Close()
		return nil
	}

	key := remote.String()
	r.mu.Lock()
	if len(r.sessions) >= r.maxConnections {
		r.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	if existing, ok := r.sessions[key]; ok && !existing.IsClosed() {
		r.mu.Unlock()
		r.Logger.Infof("rejected second connection from %v", key)
		_ = conn.Close()
		return nil
	}
	s := session.New(r.ids.Next(), conn, r.opts)
	r.sessions[key] = s
	r.mu.Unlock()

	go s.Serve()
	r.Logger.Infof("accepted connection %d from %v", s.ID(), key)
	return s
}

// Route indexes s under the UDP return address it was given during onboarding
// so datagrams from that address reach it. Sessions without a UDP address are
// ignored.
func (r *Registry) Route(s *session.Session) {
	addr := s.UDPAddr()
	if addr == nil {
		return
	}
	key := routeKey(addr)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.routes[key]; ok && existing != s && !existing.IsClosed() {
		r.Logger.Warnf("session %d takes over udp route %s from session %d", s.ID(), key, existing.ID())
	}
	r.routes[key] = s
}

// Lookup returns the live session for a remote address, or nil if there is
// none. UDP addresses only match routes added with Route and TCP addresses only
// match session endpoints, since the two port spaces are unrelated.
func (r *Registry) Lookup(addr net.Addr) *session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s *session.Session
	switch addr := addr.(type) {
	case *net.UDPAddr:
		s = r.routes[routeKey(addr)]
	case *net.TCPAddr:
		s = r.sessions[addr.String()]
	}
	if s == nil || s.IsClosed() {
		return nil
	}
	return s
}

// routeKey normalizes addr so IPv4 addresses read from an IPv6 socket match
// the ones taken from TCP endpoints.
func routeKey(addr *net.UDPAddr) string {
	ip := addr.IP
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return (&net.UDPAddr{IP: ip, Port: addr.Port, Zone: addr.Zone}).String()
}

// Reap removes closed sessions and returns how many were removed.
func (r *Registry) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	reaped := 0
	for key, s := range r.sessions {
		if s.IsClosed() {
			delete(r.sessions, key)
			reaped++
		}
	}
	for key, s := range r.routes {
		if s.IsClosed() {
			delete(r.routes, key)
		}
	}
	return reaped
}

// Live returns the number of tracked sessions that are still open.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := 0
	for _, s := range r.sessions {
		if !s.IsClosed() {
			live++
		}
	}
	return live
}

// Sessions returns a snapshot of the tracked sessions.
func (r *Registry) Sessions() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Penalize refuses new connections from the IP of s for the configured
// cooldown. It is a no-op when the cooldown is disabled.
func (r *Registry) Penalize(s *session.Session) {
	if r.rejected == nil {
		return
	}
	r.rejected.SetDefault(s.RemoteAddr().IP.String(), struct{}{})
}

func (r *Registry) isCoolingDown(ip net.IP) bool {
	if r.rejected == nil {
		return false
	}
	_, found := r.rejected.Get(ip.String())
	return found
}

// CloseAll closes every tracked session.
func (r *Registry) CloseAll() {
	for _, s := range r.Sessions() {
		_ = s.Close()
	}
	r.Reap()
}

// Run admits every connection arriving on conns and passes the resulting
// sessions on to out until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, conns <-chan *net.TCPConn, out chan<- *session.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case conn := <-conns:
			s := r.Admit(conn)
			if s == nil {
				continue
			}
			select {
			case out <- s:
			case <-ctx.Done():
				_ = s.Close()
				return
			}
		}
	}
}

// Dispatcher forwards received datagrams to the session they belong to.
type Dispatcher struct {
	Registry *Registry
	Logger   *logrus.Logger
}

// Run takes datagrams from in until ctx is cancelled. Datagrams from addresses
// without a live session are dropped; they are most likely from a client that
// has since reconnected.
func (d *Dispatcher) Run(ctx context.Context, in <-chan transport.Datagram) {
	for {
		select {
		case <-ctx.Done():
			return
		case datagram := <-in:
			d.Dispatch(datagram)
		}
	}
}

// Dispatch routes a single datagram and reports whether a session took it.
func (d *Dispatcher) Dispatch(datagram transport.Datagram) bool {
	s := d.Registry.Lookup(datagram.Addr)
	if s == nil {
		return false
	}
	s.UnwrapPacket(datagram.Payload)
	return true
}
