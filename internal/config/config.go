package config

import (
	"fmt"
	"path/filepath"
)

type Config struct {
	Server   ServerConfig
	Remote   RemoteConfig
	Storage  StorageConfig
	Tracker  TrackerConfig
	Classify ClassifyConfig
	Block    BlockConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type RemoteConfig struct {
	BaseURL     string
	RealtimeURL string
}

type StorageConfig struct {
	DataDir       string
	QueueCapacity int
}

type TrackerConfig struct {
	TickSeconds       int
	MaxSessionSeconds int
	FocusGraceSeconds int
}

type ClassifyConfig struct {
	ProductiveKeywords  string // comma-separated
	DistractingKeywords string
}

type BlockConfig struct {
	Mode      string // "soft" or "hard"
	RulesPath string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4321,
		},
		Remote: RemoteConfig{
			BaseURL:     "https://api.focusd.app/v1",
			RealtimeURL: "wss://api.focusd.app/v1/realtime",
		},
		Storage: StorageConfig{
			DataDir:       dataDir,
			QueueCapacity: 500,
		},
		Tracker: TrackerConfig{
			TickSeconds:       30,
			MaxSessionSeconds: 65,
			FocusGraceSeconds: 5,
		},
		Block: BlockConfig{
			Mode:      "soft",
			RulesPath: filepath.Join(dataDir, "focusd.hosts"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON backend at
// $XDG_CONFIG_HOME/focusd/config.json, then applies FOCUSD_* environment
// overrides. The local API token is a secret and comes from the environment
// only.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if cfg.Server.APIToken == "" {
		return Config{}, fmt.Errorf("missing required config: local API token. " +
			"Set it via environment variable FOCUSD_API_TOKEN")
	}
	if cfg.Block.Mode != "soft" && cfg.Block.Mode != "hard" {
		return Config{}, fmt.Errorf("invalid block.mode %q: must be soft or hard", cfg.Block.Mode)
	}

	return cfg, nil
}
