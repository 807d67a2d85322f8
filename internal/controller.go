package internal

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/invaders/internal/command"
	"github.com/dcrodman/invaders/internal/core"
	"github.com/dcrodman/invaders/internal/core/debug"
	"github.com/dcrodman/invaders/internal/game"
	"github.com/dcrodman/invaders/internal/ledger"
	"github.com/dcrodman/invaders/internal/matchmaker"
	"github.com/dcrodman/invaders/internal/onboarding"
	"github.com/dcrodman/invaders/internal/player"
	"github.com/dcrodman/invaders/internal/registry"
	"github.com/dcrodman/invaders/internal/session"
	"github.com/dcrodman/invaders/internal/transport"
)

const sessionWriteTimeout = 2 * time.Second

// Controller is the main entrypoint for the server. It's responsible for initializing
// any shared resources (such as the ledger and logging), wiring the pipeline from
// accepted sockets to running games, and shutting all of it down.
type Controller struct {
	Config *core.Config
	// Logger is created from Config when left nil.
	Logger *logrus.Logger

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	shutdown sync.Once
	ready    chan struct{}

	acceptor   *transport.TCPAcceptor
	receiver   *transport.UDPReceiver
	sender     *transport.UDPSender
	registry   *registry.Registry
	matchmaker *matchmaker.Matchmaker
	ledger     *ledger.Ledger
}

// Status is a summary of what the server is doing.
type Status struct {
	Address  string
	Sessions int
	Waiting  map[int]int
	Games    []game.Snapshot
	// Finished is the number of games in the ledger.
	Finished int64
}

// Start binds the transports and runs every service until ctx is cancelled or
// Shutdown is called.
func (c *Controller) Start(ctx context.Context) error {
	c.readyChan()

	if c.Logger == nil {
		logger, err := core.NewLogger(c.Config)
		if err != nil {
			return fmt.Errorf("error initializing logger: %w", err)
		}
		c.Logger = logger
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer c.Shutdown()

	if err := c.listen(); err != nil {
		return err
	}

	var err error
	c.ledger, err = ledger.Open(c.Config.Ledger.DSN, c.Config.Debugging.Enabled)
	if err != nil {
		return err
	}

	// Start any debug utilities if we're configured to do so.
	if c.Config.Debugging.Enabled {
		debug.StartPprofServer(ctx, c.Logger, c.Config.Debugging.PprofPort)
	}

	c.run(ctx)
	return nil
}

func (c *Controller) listen() error {
	cfg := c.Config

	var err error
	c.acceptor, err = transport.ListenTCP(cfg.ListenAddress(), cfg.MaxConnections, c.Logger)
	if err != nil {
		return fmt.Errorf("error starting tcp listener: %w", err)
	}

	// The UDP socket shares the port the TCP listener ended up with.
	udpAddress := net.JoinHostPort(cfg.Hostname, fmt.Sprint(c.acceptor.Addr().Port))
	c.receiver, err = transport.ListenUDP(udpAddress, cfg.Transport.DatagramQueueSize, cfg.Transport.MaxDatagramSize, c.Logger)
	if err != nil {
		return fmt.Errorf("error starting udp receiver: %w", err)
	}

	c.sender, err = transport.NewUDPSender(cfg.Transport.DatagramQueueSize, c.Logger)
	if err != nil {
		return fmt.Errorf("error starting udp sender: %w", err)
	}
	return nil
}

func (c *Controller) run(ctx context.Context) {
	cfg := c.Config

	opts := session.Options{
		Policy:           command.Policy{LANMode: cfg.LANMode},
		InboundQueueSize: cfg.Transport.InboundQueueSize,
		WriteTimeout:     sessionWriteTimeout,
		Datagrams:        c.sender,
		Logger:           c.Logger,
	}
	c.registry = registry.New(cfg.MaxConnections, cfg.Handshake.RejectCooldown, &core.IDGenerator{}, opts, c.Logger)
	dispatcher := &registry.Dispatcher{Registry: c.registry, Logger: c.Logger}
	onboarder := &onboarding.Onboarder{
		Timeout:   cfg.Handshake.Timeout,
		Penalizer: c.registry,
		Router:    c.registry,
		Logger:    c.Logger,
	}
	c.matchmaker = matchmaker.New(cfg, c.ledger, c.Logger)

	sessions := make(chan *session.Session)
	players := make(chan *player.Player)

	services := []func(){
		func() { c.acceptor.Run(ctx) },
		func() { c.receiver.Run(ctx) },
		func() { c.sender.Run(ctx) },
		func() { c.registry.Run(ctx, c.acceptor.Connections(), sessions) },
		func() { dispatcher.Run(ctx, c.receiver.Datagrams()) },
		func() { onboarder.Run(ctx, sessions, players) },
		func() { c.matchmaker.Run(ctx, players) },
	}
	for _, service := range services {
		c.wg.Add(1)
		go func(run func()) {
			defer c.wg.Done()
			run()
		}(service)
	}

	c.Logger.Infof("server listening on %v", c.acceptor.Addr())
	close(c.ready)

	<-ctx.Done()
	c.wg.Wait()
}

func (c *Controller) readyChan() chan struct{} {
	if c.ready == nil {
		c.ready = make(chan struct{})
	}
	return c.ready
}

// Ready is closed once every service is running. Call Ready before Start.
func (c *Controller) Ready() <-chan struct{} {
	return c.readyChan()
}

// Addr returns the address the server is listening on. It is only valid once
// Ready has been closed.
func (c *Controller) Addr() *net.TCPAddr {
	return c.acceptor.Addr()
}

// Status reports the current sessions, queued players and games. Like Addr it
// is only valid once Ready has been closed.
func (c *Controller) Status() Status {
	status := Status{
		Address:  c.acceptor.Addr().String(),
		Sessions: c.registry.Live(),
		Waiting:  make(map[int]int),
	}
	for k := 1; k <= c.Config.Matchmaker.MaxTeamSize; k++ {
		if n := c.matchmaker.Waiting(k); n > 0 {
			status.Waiting[k] = n
		}
	}
	for _, g := range c.matchmaker.Games() {
		status.Games = append(status.Games, g.Snapshot())
	}
	finished, err := c.ledger.CountMatches()
	if err != nil {
		c.Logger.Errorf("error counting matches: %v", err)
	}
	status.Finished = finished
	return status
}

// TopScores returns the best scores recorded since the server started.
func (c *Controller) TopScores(limit int) ([]ledger.Score, error) {
	return c.ledger.TopScores(limit)
}

// FindMatch looks up a finished game by id. It returns nil if the game is not
// in the ledger.
func (c *Controller) FindMatch(id string) (*ledger.Match, error) {
	return c.ledger.FindMatch(id)
}

// Shutdown stops every service, closes every session and waits for running
// games to be abandoned. It is safe to call more than once.
func (c *Controller) Shutdown() {
	c.shutdown.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()

		if c.acceptor != nil {
			_ = c.acceptor.Close()
		}
		if c.receiver != nil {
			_ = c.receiver.Close()
		}
		if c.sender != nil {
			_ = c.sender.Close()
		}
		if c.registry != nil {
			c.registry.CloseAll()
		}
		if c.ledger != nil {
			if err := c.ledger.Close(); err != nil {
				c.Logger.Errorf("error closing ledger: %v", err)
			}
		}
		if c.Logger != nil {
			c.Logger.Info("server shut down")
		}
	})
}
