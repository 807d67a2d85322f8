// Package command defines the messages exchanged between the game server and its
// clients, their JSON wire encoding and the transport each one prefers.
package command

import "fmt"

// Kind is the discriminator carried in the "kind" field of every message.
type Kind string

// Server-bound kinds.
const (
	ConfigurePlayerKind Kind = "configure-player"
	MoveLeftKind        Kind = "move-left"
	MoveRightKind       Kind = "move-right"
	ShootKind           Kind = "shoot"
)

// Client-bound kinds.
const (
	AssignIDKind       Kind = "assign-id"
	GameStartKind      Kind = "game-start"
	GameOverKind       Kind = "game-over"
	GameWonKind        Kind = "game-won"
	GameLostKind       Kind = "game-lost"
	ScoreChangeKind    Kind = "score-change"
	SpawnEntityKind    Kind = "spawn-entity"
	MoveEntityKind     Kind = "move-entity"
	WipeEntityKind     Kind = "wipe-entity"
	TranslateGroupKind Kind = "translate-group"
	FlushScreenKind    Kind = "flush-screen"
	RosterKind         Kind = "roster"
)

// Affinity is the transport a command prefers.
type Affinity int

const (
	// Reliable commands travel over the client's TCP stream.
	Reliable Affinity = iota
	// BestEffort commands travel as UDP datagrams when the client has a UDP route.
	BestEffort
)

func (a Affinity) String() string {
	switch a {
	case Reliable:
		return "reliable"
	case BestEffort:
		return "best-effort"
	default:
		return fmt.Sprintf("Affinity(%d)", int(a))
	}
}

var affinities = map[Kind]Affinity{
	ConfigurePlayerKind: Reliable,
	MoveLeftKind:        BestEffort,
	MoveRightKind:       BestEffort,
	ShootKind:           BestEffort,

	AssignIDKind:       Reliable,
	GameStartKind:      Reliable,
	GameOverKind:       Reliable,
	GameWonKind:        Reliable,
	GameLostKind:       Reliable,
	RosterKind:         Reliable,
	ScoreChangeKind:    BestEffort,
	SpawnEntityKind:    BestEffort,
	MoveEntityKind:     BestEffort,
	WipeEntityKind:     BestEffort,
	TranslateGroupKind: BestEffort,
	FlushScreenKind:    BestEffort,
}

// AffinityOf returns the fixed transport affinity of a kind. Unknown kinds are
// treated as Reliable.
func AffinityOf(k Kind) Affinity {
	if a, ok := affinities[k]; ok {
		return a
	}
	return Reliable
}

// Command is any message that can be put on the wire.
type Command interface {
	Kind() Kind
}

// Policy resolves the transport a command is actually sent with.
type Policy struct {
	// LANMode downgrades every BestEffort command to Reliable.
	LANMode bool
}

// Affinity returns the effective affinity of cmd under the policy.
func (p Policy) Affinity(cmd Command) Affinity {
	if p.LANMode {
		return Reliable
	}
	return AffinityOf(cmd.Kind())
}
