package game

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dcrodman/invaders/internal/command"
	"github.com/dcrodman/invaders/internal/core"
)

// ErrEmptyRoster is returned when a game is started without players.
var ErrEmptyRoster = errors.New("game has no players")

// Member is a player as seen by the game loop.
type Member interface {
	ID() int64
	Name() string
	IsOnline() bool
	Send(cmd command.Command) error
	Flush() error
	ReadCommands() []command.ServerCommand
	Close() error
}

// Outcome is the state a game finished in.
type Outcome int

const (
	Running Outcome = iota
	Won
	Lost
	// Abandoned games ended because every player left or the server stopped.
	Abandoned
)

func (o Outcome) String() string {
	switch o {
	case Running:
		return "running"
	case Won:
		return "won"
	case Lost:
		return "lost"
	case Abandoned:
		return "abandoned"
	}
	return "unknown"
}

// PlayerResult is one roster entry with the score it finished with.
type PlayerResult struct {
	ID    int64
	Name  string
	Score int
}

// Result summarizes a game once Run returns.
type Result struct {
	GameID  string
	Outcome Outcome
	Ticks   int64
	Players []PlayerResult
	Started time.Time
	Ended   time.Time
}

// Snapshot is a point-in-time view of a running game.
type Snapshot struct {
	GameID   string
	Outcome  Outcome
	Ticks    int64
	Players  []PlayerResult
	Entities map[command.Category]int
}

// Game simulates one match for a fixed team. All of its state is owned by the
// goroutine calling Run; the mutex only guards Snapshot readers.
type Game struct {
	ID     string
	cfg    core.GameConfig
	logger logrus.FieldLogger

	mu       sync.Mutex
	members  []Member
	roster   []Member
	world    *World
	factory  *Factory
	ships    map[int64]*Entity
	scores   map[int64]int
	limiters map[int64]*rate.Limiter
	rng      *rand.Rand

	direction   int
	playerLine  int
	invaderGate *gate
	bulletGate  *gate
	shotGate    *gate

	ticks   int64
	outcome Outcome
	started time.Time
	ended   time.Time
}

// New builds a game for the given roster. The world is laid out by Start.
func New(roster []Member, cfg core.GameConfig, logger logrus.FieldLogger) *Game {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	id := uuid.NewString()
	return &Game{
		ID:         id,
		cfg:        cfg,
		logger:     logger.WithField("game", id),
		members:    slices.Clone(roster),
		roster:     slices.Clone(roster),
		world:      NewWorld(),
		factory:    NewFactory(cfg),
		ships:      make(map[int64]*Entity),
		scores:     make(map[int64]int),
		limiters:   make(map[int64]*rate.Limiter),
		rng:        rand.New(rand.NewSource(seed)),
		direction:  1,
		playerLine: cfg.FrameHeight - cfg.GuardY - cfg.PlayerHeight,
	}
}

// Run plays the game to completion, ticking at the configured interval. A
// cancelled context abandons the game and closes every remaining player.
func (g *Game) Run(ctx context.Context) (Result, error) {
	if err := g.Start(time.Now()); err != nil {
		return Result{}, err
	}

	ticker := time.NewTicker(g.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.Abandon(time.Now())
			return g.Result(), nil
		case now := <-ticker.C:
			if g.Step(now) {
				return g.Result(), nil
			}
		}
	}
}

// Start lays out the world and announces the match to the roster.
func (g *Game) Start(now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.roster) == 0 {
		return ErrEmptyRoster
	}
	g.started = now
	g.invaderGate = newGate(g.cfg.InvaderMoveInterval, now)
	g.bulletGate = newGate(g.cfg.BulletMoveInterval, now)
	g.shotGate = newGate(g.cfg.InvaderShotInterval, now)

	g.layout()

	entries := make([]command.RosterEntry, len(g.roster))
	for i, m := range g.roster {
		entries[i] = command.RosterEntry{ID: m.ID(), Name: m.Name()}
		g.scores[m.ID()] = 0
		if g.cfg.ShotsPerSecond > 0 {
			g.limiters[m.ID()] = rate.NewLimiter(rate.Limit(g.cfg.ShotsPerSecond), 1)
		}
	}
	g.broadcast(command.Roster{Entries: entries})
	g.broadcast(command.GameStart{})
	for _, c := range command.Categories {
		for _, e := range g.world.Entities(c) {
			g.broadcast(e.spawn())
		}
	}
	g.broadcast(command.FlushScreen{})
	g.flush()

	g.logger.Infof("started game with %d players", len(g.roster))
	return nil
}

func (g *Game) layout() {
	cfg := g.cfg
	field := cfg.FrameWidth - 2*cfg.GuardX

	// The formation covers three quarters of the field so it has room to sweep.
	spacing := max(cfg.InvaderWidth+1, field*3/4/max(cfg.InvaderColumns, 1))
	rowSpacing := cfg.InvaderHeight * 3 / 2
	for r := 0; r < cfg.InvaderRows; r++ {
		for c := 0; c < cfg.InvaderColumns; c++ {
			g.world.Add(g.factory.New(command.Invader, cfg.GuardX+c*spacing, cfg.GuardY+r*rowSpacing))
		}
	}

	slot := field / len(g.roster)
	for i, m := range g.roster {
		left := cfg.GuardX + i*slot

		ship := g.factory.New(command.HumanPlayer, left+(slot-cfg.PlayerWidth)/2, g.playerLine)
		ship.Owner = m.ID()
		g.ships[m.ID()] = ship
		g.world.Add(ship)

		if cfg.ShieldsPerPlayer < 1 {
			continue
		}
		sub := slot / cfg.ShieldsPerPlayer
		for j := 0; j < cfg.ShieldsPerPlayer; j++ {
			x := left + j*sub + (sub-cfg.ShieldWidth)/2
			g.world.Add(g.factory.New(command.Shield, x, g.playerLine-3*cfg.ShieldHeight))
		}
	}
}

// Step advances the simulation to now and reports whether the game is over.
// Once a game has ended further calls do nothing.
func (g *Game) Step(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.outcome != Running {
		return true
	}
	g.ticks++

	g.applyInput(now)
	if len(g.roster) == 0 {
		g.finish(Abandoned, now)
		return true
	}

	if g.invaderGate.open(now) {
		g.moveInvaders()
	}
	if g.outcome == Running {
		if g.bulletGate.open(now) {
			g.moveBullets()
		}
		if g.shotGate.open(now) {
			g.invaderShoot()
		}
		g.detectCollisions()
		switch {
		case g.world.Len(command.Invader) == 0:
			g.outcome = Won
		case len(g.ships) == 0:
			g.outcome = Lost
		}
	}

	g.broadcast(command.FlushScreen{})
	if g.outcome != Running {
		g.finish(g.outcome, now)
		return true
	}
	g.flush()
	return false
}

// Abandon ends a running game without a result and closes every player.
func (g *Game) Abandon(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outcome == Running {
		g.finish(Abandoned, now)
	}
}

func (g *Game) finish(outcome Outcome, now time.Time) {
	g.outcome = outcome
	g.ended = now

	switch outcome {
	case Won:
		g.broadcast(command.GameWon{})
	case Lost:
		g.broadcast(command.GameLost{})
	}
	g.broadcast(command.GameOver{})
	g.flush()

	for _, m := range g.roster {
		if err := m.Close(); err != nil {
			g.logger.Debugf("error closing player %d: %v", m.ID(), err)
		}
	}
	g.logger.Infof("game %s after %d ticks", outcome, g.ticks)
}

func (g *Game) applyInput(now time.Time) {
	live := make([]Member, 0, len(g.roster))
	var gone []Member
	for _, m := range g.roster {
		if m.IsOnline() {
			live = append(live, m)
		} else {
			gone = append(gone, m)
		}
	}
	g.roster = live
	for _, m := range gone {
		g.drop(m)
	}

	for _, m := range g.roster {
		ctx := &inputContext{game: g, member: m, now: now}
		for _, cmd := range m.ReadCommands() {
			if err := cmd.ExecuteOn(ctx); err != nil {
				g.logger.Debugf("ignoring %s from player %d: %v", cmd.Kind(), m.ID(), err)
			}
		}
	}
}

func (g *Game) drop(m Member) {
	g.logger.Infof("player %d left the game", m.ID())
	if ship, ok := g.ships[m.ID()]; ok {
		g.wipe(ship)
	}
	delete(g.limiters, m.ID())
}

func (g *Game) moveInvaders() {
	left, right, _, ok := g.world.Extent(command.Invader)
	if !ok {
		return
	}

	dx := g.direction * g.cfg.InvaderSpeedX
	if right+dx > g.cfg.FrameWidth-g.cfg.GuardX || left+dx < g.cfg.GuardX {
		g.direction = -g.direction
		g.world.Translate(command.Invader, 0, g.cfg.InvaderStepY)
		g.broadcast(command.TranslateGroup{Category: command.Invader, DY: g.cfg.InvaderStepY})

		if _, _, bottom, _ := g.world.Extent(command.Invader); bottom >= g.playerLine {
			g.outcome = Lost
		}
		return
	}

	g.world.Translate(command.Invader, dx, 0)
	g.broadcast(command.TranslateGroup{Category: command.Invader, DX: dx})
}

func (g *Game) moveBullets() {
	speed := g.cfg.BulletSpeed

	if g.world.Len(command.InvaderBullet) > 0 {
		g.world.Translate(command.InvaderBullet, 0, speed)
		g.broadcast(command.TranslateGroup{Category: command.InvaderBullet, DY: speed})
		for _, b := range g.world.Entities(command.InvaderBullet) {
			if b.Y >= g.cfg.FrameHeight-g.cfg.GuardY {
				g.wipe(b)
			}
		}
	}

	if g.world.Len(command.PlayerBullet) > 0 {
		g.world.Translate(command.PlayerBullet, 0, -speed)
		g.broadcast(command.TranslateGroup{Category: command.PlayerBullet, DY: -speed})
		for _, b := range g.world.Entities(command.PlayerBullet) {
			if b.Bottom() <= g.cfg.GuardY {
				g.wipe(b)
			}
		}
	}
}

// shooters returns the lowest invader of every column, ordered left to right.
func (g *Game) shooters() []*Entity {
	lowest := make(map[int]*Entity)
	for _, e := range g.world.Entities(command.Invader) {
		if cur, ok := lowest[e.X]; !ok || e.Bottom() > cur.Bottom() {
			lowest[e.X] = e
		}
	}
	candidates := make([]*Entity, 0, len(lowest))
	for _, e := range lowest {
		candidates = append(candidates, e)
	}
	slices.SortFunc(candidates, func(a, b *Entity) int { return a.X - b.X })
	return candidates
}

func (g *Game) invaderShoot() {
	candidates := g.shooters()
	if len(candidates) == 0 {
		return
	}
	shooter := candidates[g.rng.Intn(len(candidates))]
	w, _ := g.factory.Size(command.InvaderBullet)
	g.spawn(g.factory.New(command.InvaderBullet, shooter.CenterX()-w/2, shooter.Bottom()))
}

func (g *Game) detectCollisions() {
	g.collide(command.Invader, command.Shield, func(_, _ *Entity) (bool, bool) {
		return false, true
	})
	g.collide(command.PlayerBullet, command.InvaderBullet, func(_, _ *Entity) (bool, bool) {
		return true, true
	})
	g.collide(command.PlayerBullet, command.Invader, func(bullet, _ *Entity) (bool, bool) {
		g.credit(bullet.Owner)
		return true, true
	})
	g.collide(command.InvaderBullet, command.Shield, func(_, _ *Entity) (bool, bool) {
		return true, true
	})
	g.collide(command.InvaderBullet, command.HumanPlayer, func(_, ship *Entity) (bool, bool) {
		g.logger.Debugf("player %d was shot down", ship.Owner)
		return true, true
	})
}

// collide calls hit for every overlapping pair of live entities from
// categories a and b. hit reports which of the pair it destroyed.
func (g *Game) collide(a, b command.Category, hit func(x, y *Entity) (bool, bool)) {
	targets := g.world.Entities(b)
	dead := make(map[int64]bool)

	for _, x := range g.world.Entities(a) {
		for _, y := range targets {
			if dead[y.ID] || !Collides(x, y) {
				continue
			}
			killX, killY := hit(x, y)
			if killY {
				dead[y.ID] = true
				g.wipe(y)
			}
			if killX {
				g.wipe(x)
				break
			}
		}
	}
}

func (g *Game) credit(owner int64) {
	g.scores[owner] += g.cfg.InvaderScore
	g.broadcast(command.ScoreChange{ID: owner, Score: g.scores[owner]})
}

func (g *Game) spawn(e *Entity) {
	g.world.Add(e)
	g.broadcast(e.spawn())
}

func (g *Game) wipe(e *Entity) {
	if !g.world.Remove(e) {
		return
	}
	if e.Category == command.HumanPlayer {
		delete(g.ships, e.Owner)
	}
	g.broadcast(command.WipeEntity{ID: e.ID})
}

func (g *Game) broadcast(cmd command.Command) {
	for _, m := range g.roster {
		if err := m.Send(cmd); err != nil {
			g.logger.Debugf("error sending %s to player %d: %v", cmd.Kind(), m.ID(), err)
		}
	}
}

func (g *Game) flush() {
	for _, m := range g.roster {
		if err := m.Flush(); err != nil {
			g.logger.Debugf("error flushing player %d: %v", m.ID(), err)
		}
	}
}

// Members returns the roster the game was started with.
func (g *Game) Members() []Member {
	return slices.Clone(g.members)
}

func (g *Game) Result() Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Result{
		GameID:  g.ID,
		Outcome: g.outcome,
		Ticks:   g.ticks,
		Players: g.playerResults(),
		Started: g.started,
		Ended:   g.ended,
	}
}

func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		GameID:   g.ID,
		Outcome:  g.outcome,
		Ticks:    g.ticks,
		Players:  g.playerResults(),
		Entities: g.world.Counts(),
	}
}

func (g *Game) playerResults() []PlayerResult {
	results := make([]PlayerResult, len(g.members))
	for i, m := range g.members {
		results[i] = PlayerResult{ID: m.ID(), Name: m.Name(), Score: g.scores[m.ID()]}
	}
	return results
}
