// Package matchmaker groups onboarded players into teams by declared team size
// and runs a game for every team that fills up.
package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/invaders/internal/core"
	"github.com/dcrodman/invaders/internal/game"
	"github.com/dcrodman/invaders/internal/player"
)

var (
	ErrInvalidTeamSize = errors.New("invalid team size")
	ErrStopped         = errors.New("matchmaker is not running")
)

// Recorder stores the results of finished games.
type Recorder interface {
	Record(result game.Result) error
}

// Player is an onboarded player waiting for a team. *player.Player is the one
// the server queues.
type Player interface {
	game.Member
	TeamSize() int
}

// run tracks one in-flight game.
type run struct {
	game   *game.Game
	done   chan struct{}
	result game.Result
	err    error
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Matchmaker keeps one bucket of waiting players per team size. Buckets and the
// list of running games are guarded by a single mutex.
type Matchmaker struct {
	Logger logrus.FieldLogger

	maxTeamSize  int
	reapInterval time.Duration
	gameConfig   core.GameConfig
	recorder     Recorder

	mu      sync.Mutex
	ctx     context.Context
	buckets map[int][]Player
	runs    []*run
	games   sync.WaitGroup
}

// New returns a Matchmaker for cfg. recorder may be nil if results should not
// be kept.
func New(cfg *core.Config, recorder Recorder, logger logrus.FieldLogger) *Matchmaker {
	return &Matchmaker{
		Logger:       logger,
		maxTeamSize:  cfg.Matchmaker.MaxTeamSize,
		reapInterval: cfg.Matchmaker.ReapInterval,
		gameConfig:   cfg.Game,
		recorder:     recorder,
		buckets:      make(map[int][]Player),
	}
}

// Run onboards every player received on in until ctx is cancelled, while a
// separate worker reaps finished games. Waiting players are closed and running
// games are abandoned on the way out.
func (m *Matchmaker) Run(ctx context.Context, in <-chan *player.Player) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	var reaper sync.WaitGroup
	reaper.Add(1)
	go func() {
		defer reaper.Done()
		m.reapEvery(ctx)
	}()
	defer m.stop()
	defer reaper.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			if err := m.Onboard(p); err != nil {
				m.Logger.Warnf("could not onboard %v: %v", p, err)
			}
		}
	}
}

// reapEvery reaps finished games on every tick of the reap interval until ctx
// is cancelled.
func (m *Matchmaker) reapEvery(ctx context.Context) {
	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap()
		}
	}
}

func (m *Matchmaker) stop() {
	m.mu.Lock()
	m.ctx = nil
	for k, bucket := range m.buckets {
		closeAll(bucket)
		delete(m.buckets, k)
	}
	m.mu.Unlock()

	m.games.Wait()
	m.Reap()
}

// Onboard adds p to the bucket for its declared team size. When the bucket
// fills, its players are removed and a game is started for them.
func (m *Matchmaker) Onboard(p Player) error {
	k := p.TeamSize()
	if k < 1 || k > m.maxTeamSize {
		_ = p.Close()
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidTeamSize, k, m.maxTeamSize)
	}

	m.mu.Lock()
	bucket := online(append(m.buckets[k], p))
	if len(bucket) < k {
		m.buckets[k] = bucket
		m.mu.Unlock()
		m.Logger.Debugf("%v waiting for a team of %d (%d/%d)", p, k, len(bucket), k)
		return nil
	}
	m.buckets[k] = nil
	err := m.spawnLocked(bucket)
	m.mu.Unlock()

	if err != nil {
		closeAll(bucket)
		return err
	}
	return nil
}

func (m *Matchmaker) spawnLocked(team []Player) error {
	if m.ctx == nil || m.ctx.Err() != nil {
		return ErrStopped
	}

	members := make([]game.Member, len(team))
	for i, p := range team {
		members[i] = p
	}
	r := &run{
		game: game.New(members, m.gameConfig, m.Logger),
		done: make(chan struct{}),
	}
	m.runs = append(m.runs, r)

	m.games.Add(1)
	go m.play(m.ctx, r)
	return nil
}

func (m *Matchmaker) play(ctx context.Context, r *run) {
	defer m.games.Done()
	defer close(r.done)
	defer func() {
		if err := recover(); err != nil {
			r.err = fmt.Errorf("game %s panicked: %v\n%s", r.game.ID, err, debug.Stack())
		}
	}()
	r.result, r.err = r.game.Run(ctx)
}

// Reap removes finished games, logging any failures and recording results.
// It returns the number of games removed.
func (m *Matchmaker) Reap() int {
	m.mu.Lock()
	var done []*run
	running := m.runs[:0]
	for _, r := range m.runs {
		if r.finished() {
			done = append(done, r)
		} else {
			running = append(running, r)
		}
	}
	m.runs = running
	m.mu.Unlock()

	for _, r := range done {
		if r.err != nil {
			m.Logger.Errorf("game %s failed: %v", r.game.ID, r.err)
			closeAll(r.game.Members())
			continue
		}
		if m.recorder != nil {
			if err := m.recorder.Record(r.result); err != nil {
				m.Logger.Errorf("error recording game %s: %v", r.game.ID, err)
			}
		}
	}
	return len(done)
}

// Waiting returns the number of players queued for teams of size k.
func (m *Matchmaker) Waiting(k int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets[k])
}

// Games returns the games that have not been reaped yet.
func (m *Matchmaker) Games() []*game.Game {
	m.mu.Lock()
	defer m.mu.Unlock()
	games := make([]*game.Game, len(m.runs))
	for i, r := range m.runs {
		games[i] = r.game
	}
	return games
}

func online(players []Player) []Player {
	live := players[:0]
	for _, p := range players {
		if p.IsOnline() {
			live = append(live, p)
		}
	}
	return live
}

func closeAll[T game.Member](players []T) {
	for _, p := range players {
		_ = p.Close()
	}
}
