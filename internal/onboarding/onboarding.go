// Package onboarding promotes freshly admitted sessions into configured players.
//
// The handshake is single-shot: the server sends the new session its id, waits
// a fixed time, and then expects to find exactly one configure-player command
// in the session's inbound queue. Anything else closes the session.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/invaders/internal/command"
	"github.com/dcrodman/invaders/internal/player"
	"github.com/dcrodman/invaders/internal/session"
)

// ErrRejected wraps every reason a handshake fails.
var ErrRejected = errors.New("handshake rejected")

// Penalizer is notified of sessions that failed the handshake.
type Penalizer interface {
	Penalize(s *session.Session)
}

// Router makes an onboarded session reachable through its UDP return address.
type Router interface {
	Route(s *session.Session)
}

// Onboarder runs handshakes for new sessions.
type Onboarder struct {
	Timeout   time.Duration
	Penalizer Penalizer
	Router    Router
	Logger    *logrus.Logger
}

// Handshake assigns s its id and waits Timeout for the configuration reply. On
// failure the session is closed and the error wraps ErrRejected.
func (o *Onboarder) Handshake(ctx context.Context, s *session.Session) (*player.Player, error) {
	p, err := o.handshake(ctx, s)
	if err != nil {
		_ = s.Close()
		if o.Penalizer != nil {
			o.Penalizer.Penalize(s)
		}
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if o.Router != nil {
		o.Router.Route(s)
	}
	return p, nil
}

func (o *Onboarder) handshake(ctx context.Context, s *session.Session) (*player.Player, error) {
	if err := s.SendNow(command.AssignID{ID: s.ID()}); err != nil {
		return nil, fmt.Errorf("sending id: %w", err)
	}

	timer := time.NewTimer(o.Timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.Done():
		return nil, session.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	cmds := s.ReadCommands()
	if len(cmds) != 1 {
		return nil, fmt.Errorf("expected one configure-player command, got %d commands", len(cmds))
	}
	if cmds[0].Kind() != command.ConfigurePlayerKind {
		return nil, fmt.Errorf("expected configure-player, got %s", cmds[0].Kind())
	}

	p := player.New(s)
	if err := p.Configure(cmds[0]); err != nil {
		return nil, err
	}
	return p, nil
}

// Run performs a handshake for every session arriving on in, each on its own
// goroutine, and passes onboarded players on to out. It returns once ctx is
// cancelled and every started handshake has finished.
func (o *Onboarder) Run(ctx context.Context, in <-chan *session.Session, out chan<- *player.Player) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-in:
			wg.Add(1)
			go func() {
				defer wg.Done()
				o.onboard(ctx, s, out)
			}()
		}
	}
}

func (o *Onboarder) onboard(ctx context.Context, s *session.Session, out chan<- *player.Player) {
	p, err := o.Handshake(ctx, s)
	if err != nil {
		s.Logger().Infof("onboarding failed: %v", err)
		return
	}
	s.Logger().Infof("onboarded %s declaring team size %d", p, p.TeamSize())

	select {
	case out <- p:
	case <-ctx.Done():
		_ = p.Close()
	}
}
