package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/calvinalkan/sharedtable/pkg/sharedtable"
	"github.com/tailscale/hujson"
)

// Config holds the defaults tablectl falls back to when "new" is invoked
// without an explicit flag. Fields left at their zero value fall through to
// the next config source, and finally to the built-in default.
type Config struct {
	Capacity   uint32 `json:"capacity,omitempty"`
	KeyWidth   uint32 `json:"key_width,omitempty"`   //nolint:tagliatelle // snake_case for config file
	ValueWidth uint32 `json:"value_width,omitempty"` //nolint:tagliatelle // snake_case for config file
	Hash       string `json:"hash,omitempty"`
}

// ConfigFileName is the default project-local config file name.
const ConfigFileName = ".tablectl.json"

func defaultConfig() Config {
	return Config{Capacity: 1024, KeyWidth: 64, ValueWidth: 256, Hash: "murmur2"}
}

// LoadConfig merges the built-in default, the user's global config
// ($XDG_CONFIG_HOME/tablectl/config.json or ~/.config/tablectl/config.json),
// and a project config file (.tablectl.json in workDir), highest precedence
// last. Config files are JSONC (comments and trailing commas allowed).
func LoadConfig(workDir string) (Config, error) {
	cfg := defaultConfig()

	if path := globalConfigPath(); path != "" {
		overlay, loaded, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = mergeConfig(cfg, overlay)
		}
	}

	overlay, loaded, err := loadConfigFile(filepath.Join(workDir, ConfigFileName))
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = mergeConfig(cfg, overlay)
	}

	return cfg, nil
}

func globalConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tablectl", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "tablectl", "config.json")
}

func loadConfigFile(path string) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled, not request-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("tablectl: read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("tablectl: invalid JSONC in %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("tablectl: invalid config %s: %w", path, err)
	}

	return cfg, true, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Capacity != 0 {
		base.Capacity = overlay.Capacity
	}

	if overlay.KeyWidth != 0 {
		base.KeyWidth = overlay.KeyWidth
	}

	if overlay.ValueWidth != 0 {
		base.ValueWidth = overlay.ValueWidth
	}

	if overlay.Hash != "" {
		base.Hash = overlay.Hash
	}

	return base
}

func hashByName(name string) (sharedtable.HashFunc, error) {
	switch name {
	case "", "murmur2":
		return sharedtable.MurmurHash2, nil
	case "fnv1a64":
		return sharedtable.FNV1a64, nil
	default:
		return nil, fmt.Errorf("tablectl: unknown hash %q (want murmur2 or fnv1a64)", name)
	}
}
