package command

import "errors"

// ErrUnexpected is returned by a handler asked to execute a command that has no
// meaning in its context, e.g. a movement command during onboarding.
var ErrUnexpected = errors.New("command not expected in this context")

// ServerHandler is implemented by every context that executes server-bound
// commands. Adding a server-bound kind adds a method here, so every context has
// to decide what to do with it.
type ServerHandler interface {
	ConfigurePlayer(cmd ConfigurePlayer) error
	MoveLeft(cmd MoveLeft) error
	MoveRight(cmd MoveRight) error
	Shoot(cmd Shoot) error
}

// ServerCommand is the closed set of commands a client may send to the server.
type ServerCommand interface {
	Command
	ExecuteOn(h ServerHandler) error
	serverBound()
}

// ConfigurePlayer is a client's answer to AssignID.
type ConfigurePlayer struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	TeamSize int    `json:"teamSize"`
	UDPPort  int    `json:"udpPort"`
}

func (ConfigurePlayer) Kind() Kind                        { return ConfigurePlayerKind }
func (c ConfigurePlayer) ExecuteOn(h ServerHandler) error { return h.ConfigurePlayer(c) }
func (ConfigurePlayer) serverBound()                      {}

// MoveLeft asks the server to move the sender's ship left by one step.
type MoveLeft struct {
	ID int64 `json:"id"`
}

func (MoveLeft) Kind() Kind                        { return MoveLeftKind }
func (c MoveLeft) ExecuteOn(h ServerHandler) error { return h.MoveLeft(c) }
func (MoveLeft) serverBound()                      {}

// MoveRight asks the server to move the sender's ship right by one step.
type MoveRight struct {
	ID int64 `json:"id"`
}

func (MoveRight) Kind() Kind                        { return MoveRightKind }
func (c MoveRight) ExecuteOn(h ServerHandler) error { return h.MoveRight(c) }
func (MoveRight) serverBound()                      {}

// Shoot asks the server to fire a bullet from the sender's ship.
type Shoot struct {
	ID int64 `json:"id"`
}

func (Shoot) Kind() Kind                        { return ShootKind }
func (c Shoot) ExecuteOn(h ServerHandler) error { return h.Shoot(c) }
func (Shoot) serverBound()                      {}
