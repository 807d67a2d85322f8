package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/dcrodman/invaders/internal/command"
)

var errForeignID = errors.New("command names another player")

// inputContext applies one member's queued commands to its ship.
type inputContext struct {
	game   *Game
	member Member
	now    time.Time
}

// ship returns the member's entity, or nil once it has been shot down.
func (c *inputContext) ship(id int64) (*Entity, error) {
	if id != c.member.ID() {
		return nil, fmt.Errorf("%w: got %d, want %d", errForeignID, id, c.member.ID())
	}
	return c.game.ships[id], nil
}

func (c *inputContext) ConfigurePlayer(command.ConfigurePlayer) error {
	return command.ErrUnexpected
}

func (c *inputContext) MoveLeft(cmd command.MoveLeft) error {
	ship, err := c.ship(cmd.ID)
	if err != nil || ship == nil {
		return err
	}
	c.game.moveShip(ship, -c.game.cfg.PlayerSpeed)
	return nil
}

func (c *inputContext) MoveRight(cmd command.MoveRight) error {
	ship, err := c.ship(cmd.ID)
	if err != nil || ship == nil {
		return err
	}
	c.game.moveShip(ship, c.game.cfg.PlayerSpeed)
	return nil
}

func (c *inputContext) Shoot(cmd command.Shoot) error {
	ship, err := c.ship(cmd.ID)
	if err != nil || ship == nil {
		return err
	}
	if limiter, ok := c.game.limiters[cmd.ID]; ok && !limiter.AllowN(c.now, 1) {
		return nil
	}

	g := c.game
	w, h := g.factory.Size(command.PlayerBullet)
	bullet := g.factory.New(command.PlayerBullet, ship.CenterX()-w/2, ship.Y-h)
	bullet.Owner = cmd.ID
	g.spawn(bullet)
	return nil
}

// moveShip shifts ship horizontally, keeping it inside the guard margins.
func (g *Game) moveShip(ship *Entity, dx int) {
	x := ship.X + dx
	x = max(x, g.cfg.GuardX)
	x = min(x, g.cfg.FrameWidth-g.cfg.GuardX-ship.Width)
	if x == ship.X {
		return
	}
	ship.X = x
	g.broadcast(command.MoveEntity{ID: ship.ID, X: ship.X, Y: ship.Y})
}
