package onboarding

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dcrodman/invaders/internal/command"
	"github.com/dcrodman/invaders/internal/core"
	"github.com/dcrodman/invaders/internal/player"
	"github.com/dcrodman/invaders/internal/session"
	"github.com/dcrodman/invaders/internal/transport"
)

const testTimeout = 100 * time.Millisecond

type nopSubmitter struct{}

func (nopSubmitter) Submit(transport.Datagram) bool { return true }

type recordingRegistry struct {
	mu        sync.Mutex
	penalized []int64
	routed    []int64
}

func (r *recordingRegistry) Route(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routed = append(r.routed, s.ID())
}

func (r *recordingRegistry) Penalize(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.penalized = append(r.penalized, s.ID())
}

// newTestSession returns a serving session and a reader over the client side
// of its connection.
func newTestSession(t *testing.T, id int64) (*session.Session, *net.TCPConn, *bufio.Reader) {
	t.Helper()
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("error initializing test listener: %v", err)
	}
	defer listener.Close()

	client, err := net.DialTCP("tcp", nil, listener.Addr().(*net.TCPAddr))
	if err != nil {
		t.Fatalf("error initializing test connection: %v", err)
	}
	conn, err := listener.AcceptTCP()
	if err != nil {
		t.Fatalf("error accepting test connection: %v", err)
	}

	s := session.New(id, conn, session.Options{Logger: core.NewDiscardLogger(), Datagrams: nopSubmitter{}})
	go s.Serve()
	t.Cleanup(func() {
		s.Close()
		client.Close()
	})
	return s, client, bufio.NewReader(client)
}

// answer reads the assigned id and replies with the given lines.
func answer(t *testing.T, client *net.TCPConn, reader *bufio.Reader, reply func(id int64) []command.Command) {
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Errorf("error reading id assignment: %v", err)
		return
	}
	cmd, err := command.DecodeClient(line)
	if err != nil {
		t.Errorf("error decoding id assignment: %v", err)
		return
	}
	assign, ok := cmd.(command.AssignID)
	if !ok {
		t.Errorf("first command want = assign-id, got = %s", cmd.Kind())
		return
	}
	for _, c := range reply(assign.ID) {
		data, _ := command.EncodeLine(c)
		// The server may already have given up on a late reply.
		if _, err := client.Write(data); err != nil {
			return
		}
	}
}

func TestOnboarder_Handshake(t *testing.T) {
	s, client, reader := newTestSession(t, 42)
	go answer(t, client, reader, func(id int64) []command.Command {
		return []command.Command{command.ConfigurePlayer{ID: id, Name: "alice", TeamSize: 2, UDPPort: 6001}}
	})

	penalizer := &recordingRegistry{}
	o := &Onboarder{Timeout: testTimeout, Penalizer: penalizer, Router: penalizer, Logger: core.NewDiscardLogger()}
	p, err := o.Handshake(context.Background(), s)
	if err != nil {
		t.Fatalf("Handshake() returned an unexpected error: %v", err)
	}

	if !p.IsOnline() {
		t.Error("onboarded player should be online")
	}
	if p.Session().UDPAddr() == nil || p.Session().UDPAddr().Port != 6001 {
		t.Errorf("udp chain not attached: %v", p.Session().UDPAddr())
	}
	if p.Name() != "Alice" || p.TeamSize() != 2 {
		t.Errorf("identity not bound: name = %s, team size = %d", p.Name(), p.TeamSize())
	}
	if len(penalizer.penalized) != 0 {
		t.Errorf("successful handshake should not penalize, got %v", penalizer.penalized)
	}
	if len(penalizer.routed) != 1 || penalizer.routed[0] != 42 {
		t.Errorf("onboarded session should be routed once, got %v", penalizer.routed)
	}
}

func TestOnboarder_HandshakeRejects(t *testing.T) {
	tests := []struct {
		name  string
		reply func(id int64) []command.Command
	}{
		{
			name:  "no reply",
			reply: func(int64) []command.Command { return nil },
		},
		{
			name: "two replies",
			reply: func(id int64) []command.Command {
				cfg := command.ConfigurePlayer{ID: id, Name: "a", TeamSize: 1, UDPPort: 6001}
				return []command.Command{cfg, cfg}
			},
		},
		{
			name: "wrong kind",
			reply: func(id int64) []command.Command {
				return []command.Command{command.Shoot{ID: id}}
			},
		},
		{
			name: "malformed configuration",
			reply: func(id int64) []command.Command {
				return []command.Command{command.ConfigurePlayer{ID: id, Name: "a", TeamSize: 1}}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, client, reader := newTestSession(t, 7)
			go answer(t, client, reader, tt.reply)

			penalizer := &recordingRegistry{}
			o := &Onboarder{Timeout: testTimeout, Penalizer: penalizer, Router: penalizer, Logger: core.NewDiscardLogger()}
			p, err := o.Handshake(context.Background(), s)
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("Handshake() want ErrRejected, got player %v, error %v", p, err)
			}
			if !s.IsClosed() {
				t.Error("rejected session should be closed")
			}
			if len(penalizer.penalized) != 1 || penalizer.penalized[0] != 7 {
				t.Errorf("rejected session should be penalized once, got %v", penalizer.penalized)
			}
			if len(penalizer.routed) != 0 {
				t.Errorf("rejected session should not be routed, got %v", penalizer.routed)
			}
		})
	}
}

func TestOnboarder_HandshakeLateReply(t *testing.T) {
	s, client, reader := newTestSession(t, 8)
	go answer(t, client, reader, func(id int64) []command.Command {
		time.Sleep(3 * testTimeout)
		return []command.Command{command.ConfigurePlayer{ID: id, Name: "slow", TeamSize: 1, UDPPort: 6001}}
	})

	o := &Onboarder{Timeout: testTimeout, Logger: core.NewDiscardLogger()}
	if _, err := o.Handshake(context.Background(), s); !errors.Is(err, ErrRejected) {
		t.Fatalf("Handshake() with a late reply want ErrRejected, got %v", err)
	}
	if !s.IsClosed() {
		t.Error("rejected session should be closed")
	}
}

func TestOnboarder_Run(t *testing.T) {
	s, client, reader := newTestSession(t, 3)
	go answer(t, client, reader, func(id int64) []command.Command {
		return []command.Command{command.ConfigurePlayer{ID: id, Name: "bob", TeamSize: 1, UDPPort: 6002}}
	})

	in := make(chan *session.Session, 1)
	out := make(chan *player.Player, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := &Onboarder{Timeout: testTimeout, Logger: core.NewDiscardLogger()}
	go o.Run(ctx, in, out)
	in <- s

	select {
	case p := <-out:
		if p.ID() != 3 || p.Name() != "Bob" {
			t.Errorf("Run() produced %v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onboarded player")
	}
}
