// Package client is a headless game client. It performs the onboarding
// handshake, mirrors the world the server broadcasts and sends player input.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/invaders/internal/command"
)

// Entity is the client's copy of one world entity.
type Entity struct {
	Category command.Category
	X, Y     int
}

// State is a copy of everything the client has been told about its game.
type State struct {
	ID       int64
	Roster   []command.RosterEntry
	Entities map[int64]Entity
	Scores   map[int64]int
	Started  bool
	Over     bool
	// Outcome is "won", "lost" or empty if the game ended without a result.
	Outcome string
	Frames  int
}

// Options describes how the client introduces itself to the server.
type Options struct {
	Name     string
	TeamSize int
	Logger   logrus.FieldLogger
}

// Client is one connection to a game server.
type Client struct {
	opts   Options
	logger logrus.FieldLogger

	tcp    *net.TCPConn
	udp    *net.UDPConn
	server *net.UDPAddr

	writeMu sync.Mutex

	mu      sync.Mutex
	state   State
	started chan struct{}
	over    chan struct{}
	frames  chan struct{}
}

// Dial connects to the server at address over TCP and binds a local UDP socket
// for best-effort traffic in both directions.
func Dial(ctx context.Context, address string, opts Options) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", address, err)
	}
	tcp := conn.(*net.TCPConn)

	remote := tcp.RemoteAddr().(*net.TCPAddr)
	local := tcp.LocalAddr().(*net.TCPAddr)
	udp, err := net.ListenUDP("udp", &net.UDPAddr{IP: local.IP})
	if err != nil {
		tcp.Close()
		return nil, fmt.Errorf("error binding udp socket: %w", err)
	}

	return &Client{
		opts:   opts,
		logger: opts.Logger,
		tcp:    tcp,
		udp:    udp,
		server: &net.UDPAddr{IP: remote.IP, Port: remote.Port, Zone: remote.Zone},
		state: State{
			Entities: make(map[int64]Entity),
			Scores:   make(map[int64]int),
		},
		started: make(chan struct{}),
		over:    make(chan struct{}),
		frames:  make(chan struct{}, 1),
	}, nil
}

// Run reads commands from both transports until the server closes the stream
// or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	go c.readDatagrams()

	scanner := bufio.NewScanner(c.tcp)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		c.handle(scanner.Bytes())
	}
	c.Close()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (c *Client) readDatagrams() {
	buf := make([]byte, 64*1024)
	for {
		n, _, err := c.udp.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.logger.Debugf("error reading datagram: %v", err)
			continue
		}
		c.handle(buf[:n])
	}
}

func (c *Client) handle(data []byte) {
	cmd, err := command.DecodeClient(data)
	if err != nil {
		c.logger.Warnf("dropping message from server: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := cmd.ExecuteOn(&mirror{client: c}); err != nil {
		c.logger.Warnf("error executing %s: %v", cmd.Kind(), err)
	}
}

// MoveLeft, MoveRight and Shoot send player input over UDP.
func (c *Client) MoveLeft() error  { return c.sendDatagram(command.MoveLeft{ID: c.ID()}) }
func (c *Client) MoveRight() error { return c.sendDatagram(command.MoveRight{ID: c.ID()}) }
func (c *Client) Shoot() error     { return c.sendDatagram(command.Shoot{ID: c.ID()}) }

func (c *Client) sendDatagram(cmd command.ServerCommand) error {
	data, err := command.Encode(cmd)
	if err != nil {
		return err
	}
	_, err = c.udp.WriteToUDP(data, c.server)
	return err
}

func (c *Client) sendLine(cmd command.ServerCommand) error {
	data, err := command.EncodeLine(cmd)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.tcp.Write(data)
	return err
}

func (c *Client) ID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.ID
}

// UDPAddr is the local address datagrams from the server arrive on.
func (c *Client) UDPAddr() *net.UDPAddr { return c.udp.LocalAddr().(*net.UDPAddr) }

// Started is closed when the game begins.
func (c *Client) Started() <-chan struct{} { return c.started }

// Over is closed when the game ends.
func (c *Client) Over() <-chan struct{} { return c.over }

// Frames receives a value after each flush-screen, dropping frames nobody waits for.
func (c *Client) Frames() <-chan struct{} { return c.frames }

// State returns a copy of the mirrored game state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Roster = append([]command.RosterEntry(nil), c.state.Roster...)
	s.Entities = make(map[int64]Entity, len(c.state.Entities))
	for id, e := range c.state.Entities {
		s.Entities[id] = e
	}
	s.Scores = make(map[int64]int, len(c.state.Scores))
	for id, score := range c.state.Scores {
		s.Scores[id] = score
	}
	return s
}

// Ship returns the id and position of this client's own entity, assuming the
// server spawns ships in roster order.
func (c *Client) Ship() (int64, Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shipLocked()
}

func (c *Client) shipLocked() (int64, Entity, bool) {
	index := -1
	for i, entry := range c.state.Roster {
		if entry.ID == c.state.ID {
			index = i
		}
	}
	if index < 0 {
		return 0, Entity{}, false
	}

	var ships []int64
	for id, e := range c.state.Entities {
		if e.Category == command.HumanPlayer {
			ships = append(ships, id)
		}
	}
	if len(ships) != len(c.state.Roster) {
		return 0, Entity{}, false
	}
	// Ships are spawned in roster order and so carry increasing ids.
	slices.Sort(ships)
	id := ships[index]
	return id, c.state.Entities[id], true
}

func (c *Client) Close() error {
	c.udp.Close()
	return c.tcp.Close()
}
