package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "FOCUSD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "FOCUSD_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "remote.base_url", typ: kString, env: "FOCUSD_REMOTE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Remote.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.BaseURL },
	},
	{
		key: "remote.realtime_url", typ: kString, env: "FOCUSD_REMOTE_REALTIME_URL",
		apply:   func(cfg *Config, v any) { cfg.Remote.RealtimeURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.RealtimeURL },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FOCUSD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.queue_capacity", typ: kInt, env: "FOCUSD_STORAGE_QUEUE_CAPACITY",
		apply:   func(cfg *Config, v any) { cfg.Storage.QueueCapacity = v.(int) },
		extract: func(cfg Config) any { return cfg.Storage.QueueCapacity },
	},
	{
		key: "tracker.tick_seconds", typ: kInt, env: "FOCUSD_TRACKER_TICK_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Tracker.TickSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Tracker.TickSeconds },
	},
	{
		key: "tracker.max_session_seconds", typ: kInt, env: "FOCUSD_TRACKER_MAX_SESSION_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Tracker.MaxSessionSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Tracker.MaxSessionSeconds },
	},
	{
		key: "tracker.focus_grace_seconds", typ: kInt, env: "FOCUSD_TRACKER_FOCUS_GRACE_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Tracker.FocusGraceSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Tracker.FocusGraceSeconds },
	},
	{
		key: "classify.productive_keywords", typ: kString, env: "FOCUSD_CLASSIFY_PRODUCTIVE_KEYWORDS",
		apply:   func(cfg *Config, v any) { cfg.Classify.ProductiveKeywords = v.(string) },
		extract: func(cfg Config) any { return cfg.Classify.ProductiveKeywords },
	},
	{
		key: "classify.distracting_keywords", typ: kString, env: "FOCUSD_CLASSIFY_DISTRACTING_KEYWORDS",
		apply:   func(cfg *Config, v any) { cfg.Classify.DistractingKeywords = v.(string) },
		extract: func(cfg Config) any { return cfg.Classify.DistractingKeywords },
	},
	{
		key: "block.mode", typ: kString, env: "FOCUSD_BLOCK_MODE",
		apply:   func(cfg *Config, v any) { cfg.Block.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Block.Mode },
	},
	{
		key: "block.rules_path", typ: kString, env: "FOCUSD_BLOCK_RULES_PATH",
		apply:   func(cfg *Config, v any) { cfg.Block.RulesPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Block.RulesPath },
	},
	{
		key: "log.level", typ: kString, env: "FOCUSD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
