package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the server
// components. It is loaded once on startup and handed to each component.
type Config struct {
	// Hostname or IP address on which the servers will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Port shared by the TCP listener and the UDP receive socket.
	Port int `mapstructure:"port"`
	// Maximum number of concurrent sessions the server will allow.
	MaxConnections int `mapstructure:"max_connections"`
	// Forces every command onto the reliable transport.
	LANMode bool `mapstructure:"lan_mode"`
	// Full path to file to which logs will be written. Blank will write to stdout.
	LogFilePath string `mapstructure:"log_file_path"`
	// Minimum level of a log required to be written. Options: debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`

	Handshake struct {
		// How long a new session has to answer the identity assignment.
		Timeout time.Duration `mapstructure:"timeout"`
		// How long an address that failed the handshake is refused. Zero disables it.
		RejectCooldown time.Duration `mapstructure:"reject_cooldown"`
	} `mapstructure:"handshake"`

	Transport struct {
		// Capacity of each session's inbound command queue.
		InboundQueueSize int `mapstructure:"inbound_queue_size"`
		// Capacity of the UDP receive and send queues.
		DatagramQueueSize int `mapstructure:"datagram_queue_size"`
		// Largest datagram the receiver will read.
		MaxDatagramSize int `mapstructure:"max_datagram_size"`
	} `mapstructure:"transport"`

	Matchmaker struct {
		// Largest team size a player may declare.
		MaxTeamSize int `mapstructure:"max_team_size"`
		// How often finished games are collected.
		ReapInterval time.Duration `mapstructure:"reap_interval"`
	} `mapstructure:"matchmaker"`

	Ledger struct {
		// Data source for the match ledger. Defaults to a private in-memory database.
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"ledger"`

	Game GameConfig `mapstructure:"game"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		Enabled bool `mapstructure:"enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
	} `mapstructure:"debugging"`
}

// GameConfig holds the tunables of a single match.
type GameConfig struct {
	FrameWidth  int `mapstructure:"frame_width"`
	FrameHeight int `mapstructure:"frame_height"`
	// Horizontal distance from the frame edges that entities may not cross.
	GuardX int `mapstructure:"guard_x"`
	// Vertical distance from the top and bottom edges of the frame.
	GuardY int `mapstructure:"guard_y"`

	InvaderRows    int `mapstructure:"invader_rows"`
	InvaderColumns int `mapstructure:"invader_columns"`
	InvaderWidth   int `mapstructure:"invader_width"`
	InvaderHeight  int `mapstructure:"invader_height"`
	// Horizontal distance an invader moves per step.
	InvaderSpeedX int `mapstructure:"invader_speed_x"`
	// Vertical distance the formation descends when it reverses.
	InvaderStepY int `mapstructure:"invader_step_y"`

	PlayerWidth  int `mapstructure:"player_width"`
	PlayerHeight int `mapstructure:"player_height"`
	PlayerSpeed  int `mapstructure:"player_speed"`

	ShieldsPerPlayer int `mapstructure:"shields_per_player"`
	ShieldWidth      int `mapstructure:"shield_width"`
	ShieldHeight     int `mapstructure:"shield_height"`

	BulletWidth  int `mapstructure:"bullet_width"`
	BulletHeight int `mapstructure:"bullet_height"`
	BulletSpeed  int `mapstructure:"bullet_speed"`

	// Points credited for shooting down one invader.
	InvaderScore int `mapstructure:"invader_score"`

	TickInterval        time.Duration `mapstructure:"tick_interval"`
	InvaderMoveInterval time.Duration `mapstructure:"invader_move_interval"`
	BulletMoveInterval  time.Duration `mapstructure:"bullet_move_interval"`
	InvaderShotInterval time.Duration `mapstructure:"invader_shot_interval"`

	// Shots a player may fire per second. Zero means unlimited.
	ShotsPerSecond float64 `mapstructure:"shots_per_second"`
	// Seed for the shooter selection. Zero seeds from the clock.
	Seed int64 `mapstructure:"seed"`
}

const envVarPrefix = "INVADERS"

var defaults = map[string]interface{}{
	"hostname":                       "0.0.0.0",
	"port":                           4321,
	"max_connections":                12,
	"lan_mode":                       false,
	"log_file_path":                  "",
	"log_level":                      "info",
	"handshake.timeout":              time.Second,
	"handshake.reject_cooldown":      time.Duration(0),
	"transport.inbound_queue_size":   256,
	"transport.datagram_queue_size":  1024,
	"transport.max_datagram_size":    1024,
	"matchmaker.max_team_size":       4,
	"matchmaker.reap_interval":       500 * time.Millisecond,
	"ledger.dsn":                     "file::memory:",
	"game.frame_width":               800,
	"game.frame_height":              600,
	"game.guard_x":                   20,
	"game.guard_y":                   30,
	"game.invader_rows":              5,
	"game.invader_columns":           11,
	"game.invader_width":             30,
	"game.invader_height":            20,
	"game.invader_speed_x":           10,
	"game.invader_step_y":            20,
	"game.player_width":              40,
	"game.player_height":             20,
	"game.player_speed":              8,
	"game.shields_per_player":        2,
	"game.shield_width":              40,
	"game.shield_height":             20,
	"game.bullet_width":              4,
	"game.bullet_height":             10,
	"game.bullet_speed":              8,
	"game.invader_score":             10,
	"game.tick_interval":             16 * time.Millisecond,
	"game.invader_move_interval":     500 * time.Millisecond,
	"game.bullet_move_interval":      30 * time.Millisecond,
	"game.invader_shot_interval":     time.Second,
	"game.shots_per_second":          2.0,
	"game.seed":                      int64(0),
	"debugging.enabled":              false,
	"debugging.pprof_port":           4040,
}

// LoadConfig reads config.yaml from configPath (if one exists) on top of the
// built-in defaults. Nested options can be overridden with environment variables,
// e.g. game.frame_width can be set using INVADERS_GAME_FRAME_WIDTH.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	for _, k := range v.AllKeys() {
		envVar := envVarPrefix + "_" + strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVar, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config object: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() *Config {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	config := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(config)
	return config
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.MaxConnections < 1:
		return fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections)
	case c.Matchmaker.MaxTeamSize < 1:
		return fmt.Errorf("matchmaker.max_team_size must be positive, got %d", c.Matchmaker.MaxTeamSize)
	case c.Handshake.Timeout <= 0:
		return fmt.Errorf("handshake.timeout must be positive, got %v", c.Handshake.Timeout)
	case c.Game.TickInterval <= 0:
		return fmt.Errorf("game.tick_interval must be positive, got %v", c.Game.TickInterval)
	case c.Game.FrameWidth <= 2*c.Game.GuardX || c.Game.FrameHeight <= 2*c.Game.GuardY:
		return fmt.Errorf("game frame %dx%d is smaller than its guard margins", c.Game.FrameWidth, c.Game.FrameHeight)
	}

	// Entities with an empty box never collide and ones that cannot move stall the game.
	positive := []struct {
		key   string
		value int
	}{
		{"game.invader_width", c.Game.InvaderWidth},
		{"game.invader_height", c.Game.InvaderHeight},
		{"game.invader_speed_x", c.Game.InvaderSpeedX},
		{"game.invader_step_y", c.Game.InvaderStepY},
		{"game.player_width", c.Game.PlayerWidth},
		{"game.player_height", c.Game.PlayerHeight},
		{"game.player_speed", c.Game.PlayerSpeed},
		{"game.shield_width", c.Game.ShieldWidth},
		{"game.shield_height", c.Game.ShieldHeight},
		{"game.bullet_width", c.Game.BulletWidth},
		{"game.bullet_height", c.Game.BulletHeight},
		{"game.bullet_speed", c.Game.BulletSpeed},
	}
	for _, field := range positive {
		if field.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", field.key, field.value)
		}
	}
	return nil
}

// ListenAddress returns the host:port both transports bind to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Port)
}
