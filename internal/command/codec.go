package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrCommandNotFound is returned when a message names a kind that is not in
	// the catalog of the decoding side.
	ErrCommandNotFound = errors.New("command not found")
	// ErrSyntax is returned for payloads that are not a well formed command.
	ErrSyntax = errors.New("malformed command")
)

// padding is stripped from the end of every payload before decoding. UDP
// payloads may be zero-padded to a fixed buffer size and TCP lines end in a newline.
const padding = "\x00 \t\r\n"

// Catalog is the fixed set of kinds one side of the connection accepts.
type Catalog struct {
	name  string
	kinds map[Kind]func([]byte) (Command, error)
}

// ServerBound contains the commands the server accepts from clients.
var ServerBound = &Catalog{
	name: "server-bound",
	kinds: map[Kind]func([]byte) (Command, error){
		ConfigurePlayerKind: decodeAs[ConfigurePlayer],
		MoveLeftKind:        decodeAs[MoveLeft],
		MoveRightKind:       decodeAs[MoveRight],
		ShootKind:           decodeAs[Shoot],
	},
}

// ClientBound contains the commands clients accept from the server.
var ClientBound = &Catalog{
	name: "client-bound",
	kinds: map[Kind]func([]byte) (Command, error){
		AssignIDKind:       decodeAs[AssignID],
		GameStartKind:      decodeAs[GameStart],
		GameOverKind:       decodeAs[GameOver],
		GameWonKind:        decodeAs[GameWon],
		GameLostKind:       decodeAs[GameLost],
		ScoreChangeKind:    decodeAs[ScoreChange],
		SpawnEntityKind:    decodeAs[SpawnEntity],
		MoveEntityKind:     decodeAs[MoveEntity],
		WipeEntityKind:     decodeAs[WipeEntity],
		TranslateGroupKind: decodeAs[TranslateGroup],
		FlushScreenKind:    decodeAs[FlushScreen],
		RosterKind:         decodeAs[Roster],
	},
}

func decodeAs[T Command](data []byte) (Command, error) {
	var cmd T
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Name returns the name of the catalog, for logging.
func (c *Catalog) Name() string { return c.name }

// Decode parses one message. The returned error wraps ErrSyntax or
// ErrCommandNotFound; either way only this message is lost.
func (c *Catalog) Decode(data []byte) (Command, error) {
	data = bytes.TrimRight(data, padding)

	var header struct {
		Kind *Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if header.Kind == nil {
		return nil, fmt.Errorf("%w: missing kind", ErrSyntax)
	}

	decode, ok := c.kinds[*header.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not %s", ErrCommandNotFound, *header.Kind, c.name)
	}
	cmd, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSyntax, *header.Kind, err)
	}
	return cmd, nil
}

// DecodeServer decodes a message sent by a client.
func DecodeServer(data []byte) (ServerCommand, error) {
	cmd, err := ServerBound.Decode(data)
	if err != nil {
		return nil, err
	}
	return cmd.(ServerCommand), nil
}

// DecodeClient decodes a message sent by the server.
func DecodeClient(data []byte) (ClientCommand, error) {
	cmd, err := ClientBound.Decode(data)
	if err != nil {
		return nil, err
	}
	return cmd.(ClientCommand), nil
}

// Encode serializes cmd as a single JSON object with its kind spliced in as the
// first field. The result carries no trailing newline.
func Encode(cmd Command) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", cmd.Kind(), err)
	}
	kind, err := json.Marshal(cmd.Kind())
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", cmd.Kind(), err)
	}

	out := make([]byte, 0, len(payload)+len(kind)+9)
	out = append(out, `{"kind":`...)
	out = append(out, kind...)
	if len(payload) > 2 {
		out = append(out, ',')
	}
	return append(out, payload[1:]...), nil
}

// EncodeLine is Encode followed by the newline that frames messages on TCP.
func EncodeLine(cmd Command) ([]byte, error) {
	data, err := Encode(cmd)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
