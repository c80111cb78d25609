// Package config loads the daemon configuration from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/edumarques81/beebridge/internal/domain/pathmap"
)

// AppName names the config and cache directories.
const AppName = "beebridge"

// ErrInvalid classifies validation failures of core settings.
var ErrInvalid = errors.New("invalid configuration")

// Config is the daemon configuration.
type Config struct {
	Commands            CommandsConfig      `yaml:"commands"`
	Communication       CommunicationConfig `yaml:"communication"`
	MediaControls       MediaControlsConfig `yaml:"media_controls"`
	RPC                 RPCConfig           `yaml:"rpc"`
	MusicFileMapper     Rules               `yaml:"music_file_mapper"`
	TemporaryFileMapper Rules               `yaml:"temporary_file_mapper"`
	DetachOnStop        bool                `yaml:"detach_on_stop"`
	ExitWithPlugin      bool                `yaml:"exit_with_plugin"`
	Status              StatusConfig        `yaml:"status"`
	Logging             LoggingConfig       `yaml:"logging"`
}

// CommandsConfig describes how to run the remote player.
type CommandsConfig struct {
	WineCommand    string `yaml:"wine_command"`
	WinePrefix     string `yaml:"wine_prefix"`
	PlayerLocation string `yaml:"player_location"`
	WatchProcess   bool   `yaml:"watch_process"`
}

// CommunicationConfig locates the shared directory.
type CommunicationConfig struct {
	Directory string `yaml:"directory"`
}

// MediaControlsConfig configures the host media session.
type MediaControlsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	SeekAmount       int           `yaml:"seek_amount"` // seconds
	SendVolume       bool          `yaml:"send_volume"`
	VolumeAckTimeout time.Duration `yaml:"volume_ack_timeout"`
	NotifyCommand    string        `yaml:"notify_command"`
}

// RPCConfig configures the rich presence mirror.
type RPCConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ClientID  string `yaml:"client_id"`
	Service   string `yaml:"service"`
	CachePath string `yaml:"cache_path"`
	// OnlineCovers looks up covers on MusicBrainz for tracks without artwork.
	OnlineCovers bool `yaml:"online_covers"`
}

// StatusConfig configures the optional status server.
type StatusConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Listen             string   `yaml:"listen"`
	MaxExternalClients int      `yaml:"max_external_clients"` // 0 = loopback only
	AllowedOrigins     []string `yaml:"allowed_origins"`
}

// Equal reports whether both status sections are the same.
func (s StatusConfig) Equal(o StatusConfig) bool {
	return s.Enabled == o.Enabled &&
		s.Listen == o.Listen &&
		s.MaxExternalClients == o.MaxExternalClients &&
		slices.Equal(s.AllowedOrigins, o.AllowedOrigins)
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  bool   `yaml:"file"`
}

// Rule is one path mapping rule.
type Rule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Rules accepts either a single mapping or a list of mappings.
type Rules []Rule

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Rules) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		var one Rule
		if err := value.Decode(&one); err != nil {
			return err
		}
		*r = Rules{one}
		return nil
	case yaml.SequenceNode:
		var many []Rule
		if err := value.Decode(&many); err != nil {
			return err
		}
		*r = many
		return nil
	default:
		// A type error keeps the default rules instead of failing the document
		return &yaml.TypeError{Errors: []string{
			fmt.Sprintf("line %d: path mapper must be a mapping or a list of mappings", value.Line),
		}}
	}
}

// MarshalYAML writes a single rule as a plain mapping.
func (r Rules) MarshalYAML() (interface{}, error) {
	if len(r) == 1 {
		return r[0], nil
	}
	return []Rule(r), nil
}

func (r Rules) pathRules() []pathmap.Rule {
	out := make([]pathmap.Rule, len(r))
	for i, rule := range r {
		out[i] = pathmap.Rule{From: rule.From, To: rule.To}
	}
	return out
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Commands: CommandsConfig{
			WineCommand:    "wine",
			WinePrefix:     "{home_dir}/.wine",
			PlayerLocation: "C:/Program Files/MusicBee/MusicBee.exe",
		},
		Communication: CommunicationConfig{
			Directory: "/tmp/musicbee-mediakeys",
		},
		MediaControls: MediaControlsConfig{
			Enabled:          true,
			SeekAmount:       5,
			SendVolume:       true,
			VolumeAckTimeout: 2 * time.Second,
			NotifyCommand:    "/VolumeDown",
		},
		RPC: RPCConfig{
			ClientID: "942300665726767144",
			Service:  "litterbox",
		},
		MusicFileMapper:     Rules{{From: "C:/Users/{username}/Music", To: "{home_dir}/Music"}},
		TemporaryFileMapper: Rules{{From: "C:/", To: "{wine_prefix}/drive_c/"}},
		Status: StatusConfig{
			Listen:             "127.0.0.1:3002",
			MaxExternalClients: 4,
			AllowedOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  true,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/beebridge/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, AppName, "config.yaml")
}

// Load reads the file at path over the defaults. A missing file yields the
// defaults. Unusable settings fall back to their defaults or disable the
// feature that needs them, with an error log; only an unreadable document or
// a missing communication directory is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 -- the config path is provided by the operator
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", path).Msg("No config file, using defaults")
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var problems []error
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		// Unknown keys and mistyped values leave the rest of the document
		// decoded; the affected settings keep their defaults.
		var typeErr *yaml.TypeError
		if !errors.As(err, &typeErr) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		for _, msg := range typeErr.Errors {
			problems = append(problems, errors.New(msg))
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	problems = append(problems, cfg.DisableBroken()...)
	for _, problem := range problems {
		log.Error().Err(problem).Str("path", path).Msg("Configuration error")
	}
	return cfg, nil
}

// Validate checks the settings the daemon cannot run without.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Communication.Directory) == "" {
		return fmt.Errorf("%w: communication.directory is required", ErrInvalid)
	}
	return nil
}

// DisableBroken resets unusable settings to their defaults, switches off
// optional features whose settings are unusable, and returns the reasons.
func (c *Config) DisableBroken() []error {
	var problems []error
	def := Default()

	if c.MediaControls.SeekAmount <= 0 {
		problems = append(problems, fmt.Errorf("media_controls.seek_amount %d must be positive, using %d",
			c.MediaControls.SeekAmount, def.MediaControls.SeekAmount))
		c.MediaControls.SeekAmount = def.MediaControls.SeekAmount
	}
	if c.MediaControls.VolumeAckTimeout <= 0 {
		problems = append(problems, fmt.Errorf("media_controls.volume_ack_timeout %v must be positive, using %v",
			c.MediaControls.VolumeAckTimeout, def.MediaControls.VolumeAckTimeout))
		c.MediaControls.VolumeAckTimeout = def.MediaControls.VolumeAckTimeout
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil || c.Logging.Level == "" {
		problems = append(problems, fmt.Errorf("logging.level %q is not a log level, using %q",
			c.Logging.Level, def.Logging.Level))
		c.Logging.Level = def.Logging.Level
	}

	if c.RPC.Enabled {
		switch {
		case strings.TrimSpace(c.RPC.ClientID) == "":
			problems = append(problems, errors.New("rpc.client_id is required, presence disabled"))
			c.RPC.Enabled = false
		case c.RPC.Service != "litterbox" && c.RPC.Service != "imgur":
			problems = append(problems, fmt.Errorf("rpc.service %q is not litterbox or imgur, presence disabled", c.RPC.Service))
			c.RPC.Enabled = false
		}
	}
	if c.Status.MaxExternalClients < 0 {
		problems = append(problems, fmt.Errorf("status.max_external_clients %d is negative, using %d",
			c.Status.MaxExternalClients, def.Status.MaxExternalClients))
		c.Status.MaxExternalClients = def.Status.MaxExternalClients
	}
	if len(c.Status.AllowedOrigins) == 0 {
		c.Status.AllowedOrigins = def.Status.AllowedOrigins
	}
	if c.Status.Enabled {
		if _, _, err := net.SplitHostPort(c.Status.Listen); err != nil {
			problems = append(problems, fmt.Errorf("status.listen: %w, status server disabled", err))
			c.Status.Enabled = false
		}
	}
	if c.Commands.WatchProcess && strings.TrimSpace(c.Commands.PlayerLocation) == "" {
		problems = append(problems, errors.New("commands.watch_process needs commands.player_location"))
		c.Commands.WatchProcess = false
	}
	return problems
}

// SeekAmount returns the relative seek step.
func (c *Config) SeekAmount() time.Duration {
	return time.Duration(c.MediaControls.SeekAmount) * time.Second
}

// Tables returns the path mapping rule tables.
func (c *Config) Tables() pathmap.Tables {
	return pathmap.Tables{
		Music: c.MusicFileMapper.pathRules(),
		Other: c.TemporaryFileMapper.pathRules(),
	}
}

// Vars resolves the template variables. The wine prefix may itself use
// {home_dir} and {username}.
func (c *Config) Vars() (pathmap.Vars, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return pathmap.Vars{}, fmt.Errorf("home directory: %w", err)
	}
	v := pathmap.Vars{HomeDir: home, Username: username()}
	prefix, err := pathmap.Expand(c.Commands.WinePrefix, v)
	if err != nil {
		return v, fmt.Errorf("commands.wine_prefix: %w", err)
	}
	v.WinePrefix = prefix
	return v, nil
}

// WinePrefix returns the expanded wine prefix, or the raw value when it
// cannot be expanded.
func (c *Config) WinePrefix() string {
	v, err := c.Vars()
	if err != nil {
		return c.Commands.WinePrefix
	}
	return v.WinePrefix
}

func username() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

// CachePath returns the upload cache database path.
func (c *Config) CachePath() string {
	if c.RPC.CachePath != "" {
		return c.RPC.CachePath
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, AppName, "uploads.db")
}

// LogFile returns the path of the log file in the communication directory.
func (c *Config) LogFile() string {
	return filepath.Join(c.Communication.Directory, "handler.log")
}

// WriteDefault writes the default configuration to path unless a file is
// already there.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return renameio.WriteFile(path, data, 0644)
}
