package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

type Config struct {
	LogLevel string `json:"log_level"`
	Daemon   struct {
		BaseURL   string `json:"base_url"`
		Directory string `json:"directory"`
		Token     string `json:"token"`
	} `json:"daemon"`
	Reconnect struct {
		InitialDelayMS int     `json:"initial_delay_ms"`
		MaxDelayMS     int     `json:"max_delay_ms"`
		Multiplier     float64 `json:"multiplier"`
		IdleTimeoutMS  int     `json:"idle_timeout_ms"`
	} `json:"reconnect"`
	Resync struct {
		Schedule  string `json:"schedule"`
		OnConnect bool   `json:"on_connect"`
	} `json:"resync"`
}

// DefaultPath returns ~/.agentlink/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".agentlink", "config.json")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{LogLevel: "info"}
	cfg.Daemon.BaseURL = "http://127.0.0.1:4096"
	cfg.Reconnect.InitialDelayMS = 100
	cfg.Reconnect.MaxDelayMS = 30000
	cfg.Reconnect.Multiplier = 2.0
	cfg.Reconnect.IdleTimeoutMS = 45000
	cfg.Resync.Schedule = "@every 5m"
	cfg.Resync.OnConnect = true
	return cfg
}

// Load reads the config file at path. The file may contain comments and
// trailing commas. A missing file is created with defaults. Environment
// variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if v := os.Getenv("AGENTLINK_URL"); v != "" {
		cfg.Daemon.BaseURL = v
	}
	if v := os.Getenv("AGENTLINK_DIRECTORY"); v != "" {
		cfg.Daemon.Directory = v
	}
	if v := os.Getenv("AGENTLINK_TOKEN"); v != "" {
		cfg.Daemon.Token = v
	}
	if v := os.Getenv("AGENTLINK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// InitialDelay, MaxDelay and IdleTimeout convert the millisecond settings.
func (c *Config) InitialDelay() time.Duration {
	return time.Duration(c.Reconnect.InitialDelayMS) * time.Millisecond
}

func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Reconnect.MaxDelayMS) * time.Millisecond
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Reconnect.IdleTimeoutMS) * time.Millisecond
}

// ToMap converts cfg into a generic nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns every setting as a flat dot-key map, with secrets
// masked when mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// readRaw loads the file at path as a generic map, keeping keys the Config
// struct does not know about.
func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

// GetValue returns the value stored under a dot-separated key. The file is
// created with defaults if it does not exist yet.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under a dot-separated key in an existing config
// file. Values that parse as JSON (numbers, booleans) keep their type;
// anything else is stored as a string.
func SetValue(path, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty config key")
	}
	m, err := readRaw(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	flat := Flatten(m)
	flat[key] = parsed

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}
