package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/dcrodman/invaders/internal/client"
	"github.com/dcrodman/invaders/internal/core"
)

func botCommand() *cli.Command {
	return &cli.Command{
		Name:        "bot",
		Usage:       "invaders bot",
		Description: "Connects headless players that move and shoot at random until their game ends.",
		Action:      bots,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "Address of the game server",
				Value:   "localhost:4321",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Name prefix for the bots",
				Value: "bot",
			},
			&cli.IntFlag{
				Name:    "team-size",
				Aliases: []string{"t"},
				Usage:   "Team size every bot declares",
				Value:   1,
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Number of bots to connect",
				Value:   1,
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Time between bot actions",
				Value: 100 * time.Millisecond,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Bot log level",
				Value: "warn",
			},
		},
	}
}

func bots(cc *cli.Context) error {
	cfg := core.DefaultConfig()
	cfg.LogLevel = cc.String("log-level")
	logger, err := core.NewLogger(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cc.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	for i := 1; i <= cc.Int("count"); i++ {
		opts := client.Options{
			Name:     fmt.Sprintf("%s %d", cc.String("name"), i),
			TeamSize: cc.Int("team-size"),
			Logger:   logger.WithField("bot", i),
		}
		c, err := client.Dial(ctx, cc.String("address"), opts)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(c *client.Client, seed int64) {
			defer wg.Done()
			play(ctx, c, opts.Name, cc.Duration("interval"), rand.New(rand.NewSource(seed)))
		}(c, time.Now().UnixNano()+int64(i))
	}
	wg.Wait()
	return nil
}

func play(ctx context.Context, c *client.Client, name string, interval time.Duration, rng *rand.Rand) {
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-c.Started():
	case err := <-done:
		color.Red("%s: disconnected before the game started: %v", name, err)
		return
	}
	color.Cyan("%s: game started", name)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.Over():
			report(c, name)
			<-done
			return
		case err := <-done:
			color.Yellow("%s: disconnected: %v", name, err)
			return
		case <-ticker.C:
			var err error
			switch rng.Intn(3) {
			case 0:
				err = c.MoveLeft()
			case 1:
				err = c.MoveRight()
			default:
				err = c.Shoot()
			}
			if err != nil {
				color.Yellow("%s: %v", name, err)
			}
		}
	}
}

func report(c *client.Client, name string) {
	state := c.State()
	switch state.Outcome {
	case "won":
		color.Green("%s: game won, score %d", name, state.Scores[state.ID])
	case "lost":
		color.Red("%s: game lost, score %d", name, state.Scores[state.ID])
	default:
		color.Yellow("%s: game over after %d frames", name, state.Frames)
	}
}
