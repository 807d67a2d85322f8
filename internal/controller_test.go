package internal

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dcrodman/invaders/internal/client"
	"github.com/dcrodman/invaders/internal/command"
	"github.com/dcrodman/invaders/internal/core"
)

func testConfig() *core.Config {
	cfg := core.DefaultConfig()
	cfg.Hostname = "127.0.0.1"
	cfg.Port = 0
	cfg.Handshake.Timeout = 200 * time.Millisecond
	cfg.Matchmaker.ReapInterval = 20 * time.Millisecond
	cfg.Game.InvaderMoveInterval = time.Hour
	cfg.Game.BulletMoveInterval = time.Hour
	cfg.Game.InvaderShotInterval = time.Hour
	return cfg
}

func startController(t *testing.T) (*Controller, context.CancelFunc) {
	t.Helper()
	c := &Controller{Config: testConfig(), Logger: core.NewDiscardLogger()}
	ready := c.Ready()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("Start() returned early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server to start")
	}

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	}
	t.Cleanup(stop)
	return c, stop
}

func dial(t *testing.T, c *Controller, name string, teamSize int) *client.Client {
	t.Helper()
	cl, err := client.Dial(context.Background(), c.Addr().String(), client.Options{
		Name:     name,
		TeamSize: teamSize,
		Logger:   core.NewDiscardLogger(),
	})
	if err != nil {
		t.Fatalf("error connecting client: %v", err)
	}
	go func() { _ = cl.Run(context.Background()) }()
	t.Cleanup(func() { cl.Close() })
	return cl
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitClosed(t *testing.T, what string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestController_TwoPlayerGame(t *testing.T) {
	c, stop := startController(t)

	alice := dial(t, c, "alice", 2)
	eventually(t, "alice to queue", func() bool { return c.Status().Waiting[2] == 1 })
	bob := dial(t, c, "bob", 2)

	waitClosed(t, "alice's game to start", alice.Started())
	waitClosed(t, "bob's game to start", bob.Started())

	if n := len(c.Status().Games); n != 1 {
		t.Fatalf("expected exactly one game, got %d", n)
	}
	if n := c.Status().Waiting[2]; n != 0 {
		t.Errorf("expected the team bucket to be empty, has %d", n)
	}

	want := []command.RosterEntry{{ID: alice.ID(), Name: "Alice"}, {ID: bob.ID(), Name: "Bob"}}
	for _, cl := range []*client.Client{alice, bob} {
		if diff := cmp.Diff(want, cl.State().Roster); diff != "" {
			t.Errorf("roster mismatch (-want +got):\n%s", diff)
		}
	}

	// Spawns travel over UDP, so wait for both ships to show up on both clients.
	var shipID int64
	var ship client.Entity
	eventually(t, "alice's ship", func() bool {
		var ok bool
		shipID, ship, ok = alice.Ship()
		_, _, bobOK := bob.Ship()
		return ok && bobOK
	})

	if err := alice.MoveLeft(); err != nil {
		t.Fatalf("MoveLeft() returned error: %v", err)
	}
	wantX := max(ship.X-c.Config.Game.PlayerSpeed, c.Config.Game.GuardX)
	for name, cl := range map[string]*client.Client{"alice": alice, "bob": bob} {
		eventually(t, name+" to see alice move", func() bool {
			return cl.State().Entities[shipID].X == wantX
		})
		if y := cl.State().Entities[shipID].Y; y != ship.Y {
			t.Errorf("%s sees alice at y=%d, want %d", name, y, ship.Y)
		}
	}

	stop()
	waitClosed(t, "alice's game to end", alice.Over())
	waitClosed(t, "bob's game to end", bob.Over())
}

func TestController_SilentClientIsDropped(t *testing.T) {
	c, _ := startController(t)

	conn, err := net.Dial("tcp", c.Addr().String())
	if err != nil {
		t.Fatalf("error connecting: %v", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("error reading the id assignment: %v", err)
	}
	cmd, err := command.DecodeClient(line)
	if err != nil {
		t.Fatalf("error decoding the id assignment: %v", err)
	}
	if cmd.Kind() != command.AssignIDKind {
		t.Fatalf("expected %s, got %s", command.AssignIDKind, cmd.Kind())
	}

	// Never answer; the server hangs up once the handshake times out.
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := reader.ReadBytes('\n'); err == nil {
		t.Error("expected the connection to be closed")
	} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
		t.Error("the server never closed the silent connection")
	}
	eventually(t, "the session to be reaped", func() bool { return c.Status().Sessions == 0 })
}

func TestController_FinishedGameIsRecorded(t *testing.T) {
	c, _ := startController(t)

	alice := dial(t, c, "alice", 1)
	waitClosed(t, "alice's game to start", alice.Started())

	games := c.Status().Games
	if len(games) != 1 {
		t.Fatalf("expected exactly one game, got %d", len(games))
	}
	id := games[0].GameID

	alice.Close()
	eventually(t, "the game to be recorded", func() bool { return c.Status().Finished == 1 })

	match, err := c.FindMatch(id)
	if err != nil {
		t.Fatalf("FindMatch() returned error: %v", err)
	}
	if match == nil {
		t.Fatalf("FindMatch(%s) found nothing", id)
	}
	if match.Outcome != "abandoned" {
		t.Errorf("expected an abandoned game, got %s", match.Outcome)
	}
	if len(match.Scores) != 1 || match.Scores[0].Name != "Alice" {
		t.Errorf("unexpected scores %+v", match.Scores)
	}
}
