package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Backends for the record store.
const (
	BackendGoogle = "google"
	BackendLocal  = "local"
)

// Config models spiceledger.yml.
type Config struct {
	Sheet struct {
		Backend         string `yaml:"backend"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		CredentialsEnv  string `yaml:"credentials_env"`
		CredentialsFile string `yaml:"credentials_file"`
		Tabs            struct {
			Scores  string `yaml:"scores"`
			Logs    string `yaml:"logs"`
			Players string `yaml:"players"`
			Leaders string `yaml:"leaders"`
		} `yaml:"tabs"`
	} `yaml:"sheet"`
	Game struct {
		MinPlayers        int `yaml:"min_players"`
		MaxPlayers        int `yaml:"max_players"`
		Agents            int `yaml:"agents"`
		SwordmasterAgents int `yaml:"swordmaster_agents"`
		DraftSize         int `yaml:"draft_size"`
	} `yaml:"game"`
	Server struct {
		Addr       string `yaml:"addr"`
		AuthSecret string `yaml:"auth_secret"`
	} `yaml:"server"`
	Webhooks struct {
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	} `yaml:"webhooks"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with sl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Sheet.Backend {
	case BackendGoogle, BackendLocal:
	default:
		return fmt.Errorf("config.sheet.backend must be %q or %q", BackendGoogle, BackendLocal)
	}
	if c.Sheet.Backend == BackendGoogle && c.Sheet.SpreadsheetID == "" {
		return fmt.Errorf("config.sheet.spreadsheet_id is required for the google backend")
	}
	for name, tab := range map[string]string{
		"scores":  c.Sheet.Tabs.Scores,
		"logs":    c.Sheet.Tabs.Logs,
		"players": c.Sheet.Tabs.Players,
		"leaders": c.Sheet.Tabs.Leaders,
	} {
		if tab == "" {
			return fmt.Errorf("config.sheet.tabs.%s is required", name)
		}
	}
	if c.Game.MinPlayers < 1 {
		return fmt.Errorf("config.game.min_players must be at least 1")
	}
	if c.Game.MaxPlayers < c.Game.MinPlayers {
		return fmt.Errorf("config.game.max_players must be >= min_players")
	}
	if c.Game.Agents < 1 {
		return fmt.Errorf("config.game.agents must be at least 1")
	}
	if c.Game.SwordmasterAgents < c.Game.Agents {
		return fmt.Errorf("config.game.swordmaster_agents must be >= agents")
	}
	if c.Game.DraftSize < 1 {
		return fmt.Errorf("config.game.draft_size must be at least 1")
	}
	if c.Webhooks.PollIntervalSeconds < 0 {
		return fmt.Errorf("config.webhooks.poll_interval_seconds must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "spiceledger.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `sheet:
  backend: local
  spreadsheet_id: ""
  credentials_env: GOOGLE_CREDENTIALS_JSON
  credentials_file: credentials.json
  tabs:
    scores: Scores
    logs: Logs
    players: Player Names
    leaders: Leader Names

game:
  min_players: 2
  max_players: 4
  agents: 2
  swordmaster_agents: 3
  draft_size: 7

server:
  addr: :3001
  auth_secret: ""

webhooks:
  poll_interval_seconds: 5
`
