package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dcrodman/invaders/internal"
	"github.com/dcrodman/invaders/internal/console"
	"github.com/dcrodman/invaders/internal/core"
)

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:        "server",
		Usage:       "invaders server",
		Description: "Runs the game server.",
		Action:      server,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the directory containing the server config file",
				EnvVars: []string{"INVADERS_CONFIG"},
				Value:   "./",
			},
			&cli.BoolFlag{
				Name:  "console",
				Usage: "Read operator commands (status, scores, dump, quit) from stdin",
				Value: true,
			},
		},
	}
}

func server(cc *cli.Context) error {
	configPath := cc.String("config")
	config, err := core.LoadConfig(configPath)
	if err != nil {
		return err
	}
	fmt.Println("using configuration directory:", configPath)

	// Bind the Controller to one top-level server context so that we can shut down cleanly.
	ctx, cancel := context.WithCancel(cc.Context)
	defer cancel()

	// Register a SIGTERM handler so that Ctrl-C will shut the server down gracefully.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go exitHandler(cancel, signals)

	controller := &internal.Controller{Config: config}
	if cc.Bool("console") {
		ready := controller.Ready()
		go func() {
			select {
			case <-ready:
				console.New(controller, os.Stdout).Run(os.Stdin)
			case <-ctx.Done():
			}
		}()
	}

	if err := controller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("shut down")
	return nil
}

func exitHandler(cancelFn func(), c chan os.Signal) {
	<-c
	fmt.Println("waiting to shut down gracefully...")
	cancelFn()

	<-c
	fmt.Println("hard exiting (killed)")
	os.Exit(1)
}
