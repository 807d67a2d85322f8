package game

import (
	"github.com/dcrodman/invaders/internal/command"
)

// World holds every live entity of one game, grouped by category in the
// order they were added.
type World struct {
	entities map[command.Category][]*Entity
}

func NewWorld() *World {
	w := &World{entities: make(map[command.Category][]*Entity)}
	for _, c := range command.Categories {
		w.entities[c] = nil
	}
	return w
}

func (w *World) Add(e *Entity) {
	w.entities[e.Category] = append(w.entities[e.Category], e)
}

// Remove drops e from the world. It reports false if e was not present.
func (w *World) Remove(e *Entity) bool {
	list := w.entities[e.Category]
	for i, candidate := range list {
		if candidate.ID == e.ID {
			w.entities[e.Category] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Entities returns a copy of the entities in category c.
func (w *World) Entities(c command.Category) []*Entity {
	list := w.entities[c]
	out := make([]*Entity, len(list))
	copy(out, list)
	return out
}

func (w *World) Len(c command.Category) int {
	return len(w.entities[c])
}

// Counts returns the number of live entities per category.
func (w *World) Counts() map[command.Category]int {
	counts := make(map[command.Category]int, len(w.entities))
	for c, list := range w.entities {
		counts[c] = len(list)
	}
	return counts
}

// Translate shifts every entity of category c by (dx, dy).
func (w *World) Translate(c command.Category, dx, dy int) {
	for _, e := range w.entities[c] {
		e.X += dx
		e.Y += dy
	}
}

// Extent returns the leftmost X, rightmost edge and lowest edge of category c.
// ok is false when the category is empty.
func (w *World) Extent(c command.Category) (left, right, bottom int, ok bool) {
	list := w.entities[c]
	if len(list) == 0 {
		return 0, 0, 0, false
	}
	left, right, bottom = list[0].X, list[0].Right(), list[0].Bottom()
	for _, e := range list[1:] {
		left = min(left, e.X)
		right = max(right, e.Right())
		bottom = max(bottom, e.Bottom())
	}
	return left, right, bottom, true
}
