// The invaders command runs the game server, headless bot clients and a
// traffic sniffer for offline captures.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Printf("invaders error: %v\n", err)
		os.Exit(1)
	}
}

func app() *cli.App {
	app := cli.NewApp()
	app.Name = "invaders"
	app.Usage = "cooperative multiplayer space invaders"
	app.Commands = []*cli.Command{
		serverCommand(),
		botCommand(),
		sniffCommand(),
	}
	return app
}
