package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dcrodman/invaders/internal/game"
)

// Match is one finished game.
type Match struct {
	ID        string `gorm:"primaryKey"`
	Outcome   string `gorm:"not null"`
	Ticks     int64
	StartedAt time.Time
	EndedAt   time.Time
	Scores    []Score `gorm:"foreignKey:MatchID"`
}

// Score is the result of one player in a Match.
type Score struct {
	ID       uint64 `gorm:"primaryKey"`
	MatchID  string `gorm:"index; not null"`
	PlayerID int64
	Name     string
	Points   int
}

// Ledger keeps the results of finished games for the lifetime of the process.
type Ledger struct {
	db *gorm.DB
}

// Open connects to the sqlite database at dsn and migrates the schema.
func Open(dsn string, debug bool) (*Ledger, error) {
	// By default only log errors but enable full SQL query prints-to-console with debug mode
	log := logger.Default.LogMode(logger.Error)
	if debug {
		log = logger.Default.LogMode(logger.Info)
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	// Every connection to an in-memory database sees its own empty copy.
	database, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("error while getting current connection: %w", err)
	}
	database.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Match{}, &Score{}); err != nil {
		return nil, fmt.Errorf("error auto migrating db: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record stores the result of a finished game along with its players' scores.
func (l *Ledger) Record(result game.Result) error {
	match := &Match{
		ID:        result.GameID,
		Outcome:   result.Outcome.String(),
		Ticks:     result.Ticks,
		StartedAt: result.Started,
		EndedAt:   result.Ended,
	}
	for _, p := range result.Players {
		match.Scores = append(match.Scores, Score{PlayerID: p.ID, Name: p.Name, Points: p.Score})
	}
	if err := l.db.Create(match).Error; err != nil {
		return fmt.Errorf("error recording match %s: %w", result.GameID, err)
	}
	return nil
}

// FindMatch returns the match with the given id, or nil if there is none.
func (l *Ledger) FindMatch(id string) (*Match, error) {
	var match Match
	err := l.db.Preload("Scores").First(&match, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &match, nil
}

// TopScores returns up to limit scores, highest first.
func (l *Ledger) TopScores(limit int) ([]Score, error) {
	var scores []Score
	err := l.db.Order("points desc").Order("id").Limit(limit).Find(&scores).Error
	return scores, err
}

// CountMatches returns how many matches have been recorded.
func (l *Ledger) CountMatches() (int64, error) {
	var n int64
	err := l.db.Model(&Match{}).Count(&n).Error
	return n, err
}

func (l *Ledger) Close() error {
	database, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("error while getting current connection: %w", err)
	}
	if err := database.Close(); err != nil {
		return fmt.Errorf("error while closing database connection: %w", err)
	}
	return nil
}
