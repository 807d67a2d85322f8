// Package player defines the identified player a session becomes once it has
// completed onboarding.
package player

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dcrodman/invaders/internal/command"
	"github.com/dcrodman/invaders/internal/session"
)

// MaxNameLength is the longest display name kept; longer names are truncated.
const MaxNameLength = 16

// Player is an onboarded session plus the identity the client declared.
type Player struct {
	session *session.Session

	mu       sync.RWMutex
	name     string
	teamSize int
	udpAddr  *net.UDPAddr
}

// New wraps a session that has not been configured yet.
func New(s *session.Session) *Player {
	return &Player{session: s}
}

// ID is the id assigned to the player's session.
func (p *Player) ID() int64 { return p.session.ID() }

// Session returns the player's connection.
func (p *Player) Session() *session.Session { return p.session }

func (p *Player) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// TeamSize is the team size the player declared.
func (p *Player) TeamSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.teamSize
}

// UDPAddr is the address best-effort commands are sent to.
func (p *Player) UDPAddr() *net.UDPAddr {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.udpAddr
}

// IsOnline reports whether the player's session is still open.
func (p *Player) IsOnline() bool { return !p.session.IsClosed() }

func (p *Player) Send(cmd command.Command) error { return p.session.Send(cmd) }
func (p *Player) Flush() error                   { return p.session.Flush() }
func (p *Player) SendNow(cmd command.Command) error {
	return p.session.SendNow(cmd)
}

// ReadCommands drains the commands received from the player.
func (p *Player) ReadCommands() []command.ServerCommand { return p.session.ReadCommands() }

// Close closes the player's session.
func (p *Player) Close() error { return p.session.Close() }

func (p *Player) String() string {
	return fmt.Sprintf("%s (%d)", p.Name(), p.ID())
}

// Configure executes cmd in the player's onboarding context. Only
// configure-player is accepted there.
func (p *Player) Configure(cmd command.ServerCommand) error {
	return cmd.ExecuteOn(&configContext{player: p})
}

// configContext executes server-bound commands against a player that is still
// being onboarded.
type configContext struct {
	player *Player
}

func (c *configContext) ConfigurePlayer(cmd command.ConfigurePlayer) error {
	p := c.player
	if cmd.ID != p.ID() {
		return fmt.Errorf("configure-player for id %d sent by player %d", cmd.ID, p.ID())
	}
	if cmd.UDPPort <= 0 || cmd.UDPPort > 65535 {
		return fmt.Errorf("invalid udp port %d", cmd.UDPPort)
	}

	name := NormalizeName(cmd.Name)
	if name == "" {
		name = fmt.Sprintf("Player %d", p.ID())
	}
	addr := p.session.SetUDPChain(cmd.UDPPort)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
	p.teamSize = cmd.TeamSize
	p.udpAddr = addr
	return nil
}

func (c *configContext) MoveLeft(command.MoveLeft) error   { return command.ErrUnexpected }
func (c *configContext) MoveRight(command.MoveRight) error { return command.ErrUnexpected }
func (c *configContext) Shoot(command.Shoot) error         { return command.ErrUnexpected }

// NormalizeName collapses whitespace, truncates to MaxNameLength runes and title
// cases a display name, leaving letters after the first of each word alone.
func NormalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if runes := []rune(name); len(runes) > MaxNameLength {
		name = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	return cases.Title(language.English, cases.NoLower).String(name)
}
