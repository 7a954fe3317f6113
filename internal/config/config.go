// Package config loads application configuration by layering
// defaults, the JSON config file, environment variables, and
// command-line flags.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	NoBrowser    bool          `json:"no_browser"`
	DataDir      string        `json:"data_dir"`
	DBPath       string        `json:"-"`
	ImportDir    string        `json:"-"`
	WriteTimeout time.Duration `json:"-"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	dataDir := filepath.Join(home, ".practicelog")
	return Config{
		Host:         "127.0.0.1",
		Port:         8080,
		DataDir:      dataDir,
		DBPath:       filepath.Join(dataDir, "practice.db"),
		ImportDir:    filepath.Join(dataDir, "imports"),
		WriteTimeout: 30 * time.Second,
	}, nil
}

// Load builds a Config by layering: defaults < config file < env < flags.
// The provided FlagSet must already be parsed by the caller.
// Only flags that were explicitly set override the lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := LoadMinimal()
	if err != nil {
		return cfg, err
	}
	applyFlags(&cfg, fs)
	return cfg, nil
}

// LoadMinimal builds a Config from defaults, env, and config file,
// without parsing CLI flags. Use this for subcommands that manage
// their own flag sets.
func LoadMinimal() (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	// The data dir env var must win before the config file is
	// located inside it.
	cfg.loadEnv()

	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	// Env overrides file values for host and port.
	cfg.loadEnv()
	cfg.DBPath = filepath.Join(cfg.DataDir, "practice.db")
	cfg.ImportDir = filepath.Join(cfg.DataDir, "imports")
	return cfg, nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		Host      string `json:"host"`
		Port      int    `json:"port"`
		NoBrowser *bool  `json:"no_browser"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.NoBrowser != nil {
		c.NoBrowser = *file.NoBrowser
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("PRACTICELOG_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("PRACTICELOG_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("PRACTICELOG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to Load.
func RegisterServeFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8080, "Port to listen on")
	fs.String("data-dir", "", "Data directory (database, imports)")
	fs.Bool(
		"no-browser", false,
		"Don't open browser on startup",
	)
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(f.Value.String())
		case "data-dir":
			cfg.DataDir = f.Value.String()
			cfg.DBPath = filepath.Join(cfg.DataDir, "practice.db")
			cfg.ImportDir = filepath.Join(cfg.DataDir, "imports")
		case "no-browser":
			cfg.NoBrowser = f.Value.String() == "true"
		}
	})
}
