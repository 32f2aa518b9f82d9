// Package config loads retention's configuration.
//
// Precedence, highest first: RETENTION_* environment variables, the
// config file (~/.config/retention/config.yaml or ./retention.yaml),
// then built-in defaults. A .env file in the working directory is loaded
// into the environment by the CLI before this package runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LogConfig controls file logging for long-running modes.
type LogConfig struct {
	// File is the log file path; empty logs to stderr only.
	File string `mapstructure:"file" yaml:"file"`
	// MaxSizeMB rotates the file when it exceeds this size.
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is how many rotated files to keep.
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// MaxAgeDays drops rotated files older than this.
	MaxAgeDays int `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// ServerConfig configures the bundled reference server (`ret serve`).
type ServerConfig struct {
	Addr   string `mapstructure:"addr" yaml:"addr"`
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// Config is the full configuration surface.
type Config struct {
	// DataDir holds the local cache database and session file.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// RemoteURL is the base URL of the remote persistence service.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	// SyncInterval is the periodic resync/retry interval.
	SyncInterval time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`
	// HTTPTimeout bounds each remote call.
	HTTPTimeout time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`

	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := defaultDataDir()
	return Config{
		DataDir:      dataDir,
		RemoteURL:    "http://localhost:3001",
		SyncInterval: 5 * time.Minute,
		HTTPTimeout:  10 * time.Second,
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
		Server: ServerConfig{
			Addr:   ":3001",
			DBPath: filepath.Join(dataDir, "server.db"),
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".retention"
	}
	return filepath.Join(home, ".local", "share", "retention")
}

// Load reads configuration from the config file (if any) and the
// environment, over the defaults. configFile may be empty to use the
// standard search paths.
func Load(configFile string) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("remote_url", def.RemoteURL)
	v.SetDefault("sync_interval", def.SyncInterval)
	v.SetDefault("http_timeout", def.HTTPTimeout)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.max_size_mb", def.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", def.Log.MaxBackups)
	v.SetDefault("log.max_age_days", def.Log.MaxAgeDays)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.db_path", def.Server.DBPath)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "retention"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RETENTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if configFile != "" {
			return Config{}, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
		// No config file on the search paths is fine; anything else
		// (unreadable, malformed) is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration as YAML to path,
// refusing to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "retention.yaml"
	}
	return filepath.Join(home, ".config", "retention", "config.yaml")
}

// CachePath returns the local cache database path under the data dir.
func (c Config) CachePath() string {
	return filepath.Join(c.DataDir, "retention.db")
}
