package command

// Category names a kind of entity in a game world.
type Category string

const (
	Invader       Category = "invader"
	HumanPlayer   Category = "human-player"
	Shield        Category = "shield"
	PlayerBullet  Category = "player-bullet"
	InvaderBullet Category = "invader-bullet"
)

// Categories lists every entity category in a fixed order.
var Categories = []Category{Invader, HumanPlayer, Shield, PlayerBullet, InvaderBullet}

// ClientHandler is implemented by every context that executes client-bound commands.
type ClientHandler interface {
	AssignID(cmd AssignID) error
	GameStart(cmd GameStart) error
	GameOver(cmd GameOver) error
	GameWon(cmd GameWon) error
	GameLost(cmd GameLost) error
	ScoreChange(cmd ScoreChange) error
	SpawnEntity(cmd SpawnEntity) error
	MoveEntity(cmd MoveEntity) error
	WipeEntity(cmd WipeEntity) error
	TranslateGroup(cmd TranslateGroup) error
	FlushScreen(cmd FlushScreen) error
	Roster(cmd Roster) error
}

// ClientCommand is the closed set of commands the server may send to a client.
type ClientCommand interface {
	Command
	ExecuteOn(h ClientHandler) error
	clientBound()
}

// AssignID tells a freshly connected client the id it was given.
type AssignID struct {
	ID int64 `json:"id"`
}

func (AssignID) Kind() Kind                        { return AssignIDKind }
func (c AssignID) ExecuteOn(h ClientHandler) error { return h.AssignID(c) }
func (AssignID) clientBound()                      {}

type GameStart struct{}

func (GameStart) Kind() Kind                        { return GameStartKind }
func (c GameStart) ExecuteOn(h ClientHandler) error { return h.GameStart(c) }
func (GameStart) clientBound()                      {}

type GameOver struct{}

func (GameOver) Kind() Kind                        { return GameOverKind }
func (c GameOver) ExecuteOn(h ClientHandler) error { return h.GameOver(c) }
func (GameOver) clientBound()                      {}

type GameWon struct{}

func (GameWon) Kind() Kind                        { return GameWonKind }
func (c GameWon) ExecuteOn(h ClientHandler) error { return h.GameWon(c) }
func (GameWon) clientBound()                      {}

type GameLost struct{}

func (GameLost) Kind() Kind                        { return GameLostKind }
func (c GameLost) ExecuteOn(h ClientHandler) error { return h.GameLost(c) }
func (GameLost) clientBound()                      {}

// ScoreChange carries a player's new total score.
type ScoreChange struct {
	ID    int64 `json:"id"`
	Score int   `json:"score"`
}

func (ScoreChange) Kind() Kind                        { return ScoreChangeKind }
func (c ScoreChange) ExecuteOn(h ClientHandler) error { return h.ScoreChange(c) }
func (ScoreChange) clientBound()                      {}

// SpawnEntity announces a new entity in the world.
type SpawnEntity struct {
	ID       int64    `json:"id"`
	Category Category `json:"category"`
	X        int      `json:"x"`
	Y        int      `json:"y"`
}

func (SpawnEntity) Kind() Kind                        { return SpawnEntityKind }
func (c SpawnEntity) ExecuteOn(h ClientHandler) error { return h.SpawnEntity(c) }
func (SpawnEntity) clientBound()                      {}

// MoveEntity sets the absolute position of one entity.
type MoveEntity struct {
	ID int64 `json:"id"`
	X  int   `json:"x"`
	Y  int   `json:"y"`
}

func (MoveEntity) Kind() Kind                        { return MoveEntityKind }
func (c MoveEntity) ExecuteOn(h ClientHandler) error { return h.MoveEntity(c) }
func (MoveEntity) clientBound()                      {}

// WipeEntity removes one entity from the world.
type WipeEntity struct {
	ID int64 `json:"id"`
}

func (WipeEntity) Kind() Kind                        { return WipeEntityKind }
func (c WipeEntity) ExecuteOn(h ClientHandler) error { return h.WipeEntity(c) }
func (WipeEntity) clientBound()                      {}

// TranslateGroup shifts every entity of a category by the same offset.
type TranslateGroup struct {
	Category Category `json:"category"`
	DX       int      `json:"dx"`
	DY       int      `json:"dy"`
}

func (TranslateGroup) Kind() Kind                        { return TranslateGroupKind }
func (c TranslateGroup) ExecuteOn(h ClientHandler) error { return h.TranslateGroup(c) }
func (TranslateGroup) clientBound()                      {}

// FlushScreen marks the end of one simulation tick.
type FlushScreen struct{}

func (FlushScreen) Kind() Kind                        { return FlushScreenKind }
func (c FlushScreen) ExecuteOn(h ClientHandler) error { return h.FlushScreen(c) }
func (FlushScreen) clientBound()                      {}

// RosterEntry pairs a player id with its display name.
type RosterEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Roster lists the players of a match in roster order.
type Roster struct {
	Entries []RosterEntry `json:"entries"`
}

func (Roster) Kind() Kind                        { return RosterKind }
func (c Roster) ExecuteOn(h ClientHandler) error { return h.Roster(c) }
func (Roster) clientBound()                      {}
