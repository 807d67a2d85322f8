package game

import (
	"fmt"

	"github.com/dcrodman/invaders/internal/command"
	"github.com/dcrodman/invaders/internal/core"
)

// Entity is one object in a game world. Width and Height never change once
// the entity has been built.
type Entity struct {
	ID       int64
	Category command.Category
	X, Y     int
	Width    int
	Height   int
	// Owner is the player id behind a human-player entity or a player bullet.
	Owner int64
}

func (e *Entity) Right() int   { return e.X + e.Width }
func (e *Entity) Bottom() int  { return e.Y + e.Height }
func (e *Entity) CenterX() int { return e.X + e.Width/2 }

func (e *Entity) String() string {
	return fmt.Sprintf("%s#%d(%d,%d)", e.Category, e.ID, e.X, e.Y)
}

func (e *Entity) spawn() command.SpawnEntity {
	return command.SpawnEntity{ID: e.ID, Category: e.Category, X: e.X, Y: e.Y}
}

// Collides reports whether the bounding boxes of a and b overlap.
func Collides(a, b *Entity) bool {
	return a.X < b.Right() && b.X < a.Right() &&
		a.Y < b.Bottom() && b.Y < a.Bottom()
}

// Factory builds entities of every category with the dimensions from the
// game configuration. Ids handed out by one Factory are never reused.
type Factory struct {
	sizes  map[command.Category][2]int
	lastID int64
}

func NewFactory(cfg core.GameConfig) *Factory {
	return &Factory{
		sizes: map[command.Category][2]int{
			command.Invader:       {cfg.InvaderWidth, cfg.InvaderHeight},
			command.HumanPlayer:   {cfg.PlayerWidth, cfg.PlayerHeight},
			command.Shield:        {cfg.ShieldWidth, cfg.ShieldHeight},
			command.PlayerBullet:  {cfg.BulletWidth, cfg.BulletHeight},
			command.InvaderBullet: {cfg.BulletWidth, cfg.BulletHeight},
		},
	}
}

// Size returns the width and height of entities in category c.
func (f *Factory) Size(c command.Category) (int, int) {
	s := f.sizes[c]
	return s[0], s[1]
}

// New returns a fresh entity of category c with its top-left corner at (x, y).
func (f *Factory) New(c command.Category, x, y int) *Entity {
	f.lastID++
	w, h := f.Size(c)
	return &Entity{ID: f.lastID, Category: c, X: x, Y: y, Width: w, Height: h}
}
