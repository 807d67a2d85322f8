// Package console reads operator commands for a running server from a text
// stream, usually stdin.
package console

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"

	"github.com/dcrodman/invaders/internal"
	"github.com/dcrodman/invaders/internal/ledger"
)

const topScores = 10

// Server is what the console can ask of a running server.
type Server interface {
	Status() internal.Status
	TopScores(limit int) ([]ledger.Score, error)
	FindMatch(id string) (*ledger.Match, error)
	Shutdown()
}

// Console executes one command per input line.
type Console struct {
	server Server
	out    io.Writer

	titleColor *color.Color
	infoColor  *color.Color
	warnColor  *color.Color
	scoreColor *color.Color
}

// New returns a console writing to out. Colors are disabled when out is not a
// terminal, as decided by the color package.
func New(server Server, out io.Writer) *Console {
	return &Console{
		server:     server,
		out:        out,
		titleColor: color.New(color.FgCyan, color.Bold),
		infoColor:  color.New(color.FgWhite),
		warnColor:  color.New(color.FgYellow),
		scoreColor: color.New(color.FgGreen, color.Bold),
	}
}

// Run reads commands from in until it is exhausted or a quit command shuts the
// server down. It reports whether the server was shut down.
func (c *Console) Run(in io.Reader) bool {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if c.Execute(scanner.Text()) {
			return true
		}
	}
	return false
}

// Execute runs a single command line and reports whether it shut the server down.
func (c *Console) Execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch cmd, args := strings.ToLower(fields[0]), fields[1:]; cmd {
	case "quit", "exit":
		c.titleColor.Fprintln(c.out, "shutting down")
		c.server.Shutdown()
		return true
	case "status":
		c.printStatus()
	case "scores":
		c.printScores()
	case "match":
		if len(args) != 1 {
			c.warnColor.Fprintln(c.out, "usage: match <game id>")
			break
		}
		c.printMatch(args[0])
	case "dump":
		spew.Fdump(c.out, c.server.Status())
	case "help":
		c.infoColor.Fprintln(c.out, "commands: status, scores, match <game id>, dump, quit")
	default:
		c.warnColor.Fprintf(c.out, "unknown command %q, try help\n", cmd)
	}
	return false
}

func (c *Console) printStatus() {
	status := c.server.Status()
	c.titleColor.Fprintf(c.out, "listening on %s\n", status.Address)
	c.infoColor.Fprintf(c.out, "sessions: %d\n", status.Sessions)

	sizes := make([]int, 0, len(status.Waiting))
	for k := range status.Waiting {
		sizes = append(sizes, k)
	}
	sort.Ints(sizes)
	for _, k := range sizes {
		c.infoColor.Fprintf(c.out, "waiting for a team of %d: %d\n", k, status.Waiting[k])
	}

	c.infoColor.Fprintf(c.out, "finished games: %d\n", status.Finished)
	c.infoColor.Fprintf(c.out, "games: %d\n", len(status.Games))
	for _, g := range status.Games {
		names := make([]string, len(g.Players))
		for i, p := range g.Players {
			names[i] = fmt.Sprintf("%s (%d)", p.Name, p.Score)
		}
		c.infoColor.Fprintf(c.out, "  %s %s tick %d: %s\n", g.GameID, g.Outcome, g.Ticks, strings.Join(names, ", "))
	}
}

func (c *Console) printScores() {
	scores, err := c.server.TopScores(topScores)
	if err != nil {
		c.warnColor.Fprintf(c.out, "error reading scores: %v\n", err)
		return
	}
	if len(scores) == 0 {
		c.infoColor.Fprintln(c.out, "no games finished yet")
		return
	}
	for i, s := range scores {
		c.scoreColor.Fprintf(c.out, "%2d. %-16s %6d\n", i+1, s.Name, s.Points)
	}
}

func (c *Console) printMatch(id string) {
	match, err := c.server.FindMatch(id)
	if err != nil {
		c.warnColor.Fprintf(c.out, "error reading match: %v\n", err)
		return
	}
	if match == nil {
		c.warnColor.Fprintf(c.out, "no finished game %s\n", id)
		return
	}
	c.titleColor.Fprintf(c.out, "%s %s after %d ticks (%s)\n", match.ID, match.Outcome, match.Ticks,
		match.EndedAt.Sub(match.StartedAt).Round(time.Millisecond))
	for _, s := range match.Scores {
		c.scoreColor.Fprintf(c.out, "  %-16s %6d\n", s.Name, s.Points)
	}
}
