// Package app provides the application initialization and wiring.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	DataDir     string `mapstructure:"data_dir"`
	SourcesFile string `mapstructure:"sources_file"`

	State struct {
		Path       string `mapstructure:"path"`
		SkewMargin string `mapstructure:"skew_margin"`
	} `mapstructure:"state"`

	History struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"history"`

	Run struct {
		Workers int `mapstructure:"workers"`
	} `mapstructure:"run"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   struct {
			Enabled    bool   `mapstructure:"enabled"`
			Path       string `mapstructure:"path"`
			MaxSize    int    `mapstructure:"max_size"`
			MaxBackups int    `mapstructure:"max_backups"`
			MaxAge     int    `mapstructure:"max_age"`
		} `mapstructure:"file"`
	} `mapstructure:"logging"`
}

// DefaultDataDir returns the default data directory path.
// Uses ~/.rotavault for user installations, /var/lib/rotavault as fallback.
func DefaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".rotavault")
	}
	return "/var/lib/rotavault"
}

// ConfigureViper sets up viper with standard config file search paths.
// Config file: rotavault.yaml
// Search paths (in order): /etc/rotavault, ~/.config/rotavault, current directory
func ConfigureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("rotavault")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/rotavault")
		v.AddConfigPath("$HOME/.config/rotavault")
		v.AddConfigPath(".")
	}
}

// initConfig loads configuration from file.
func initConfig(configPath string) (Config, error) {
	v := viper.New()
	if err := loadConfig(v, configPath); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// loadConfig loads configuration from file and sets defaults.
func loadConfig(v *viper.Viper, configPath string) error {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("sources_file", "") // defaults to {data_dir}/sources.yaml when empty
	v.SetDefault("state.path", "")   // defaults to {data_dir}/lastrun when empty
	v.SetDefault("state.skew_margin", "2s")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "") // defaults to {data_dir}/history.db when empty
	v.SetDefault("run.workers", 4)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)

	ConfigureViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("ROTAVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return nil
}

// resolveDataDir returns the configured data directory or the default.
func resolveDataDir(cfg Config) string {
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	return DefaultDataDir()
}

func resolveSourcesFile(cfg Config) string {
	if cfg.SourcesFile != "" {
		return cfg.SourcesFile
	}
	return filepath.Join(resolveDataDir(cfg), "sources.yaml")
}

func resolveStatePath(cfg Config) string {
	if cfg.State.Path != "" {
		return cfg.State.Path
	}
	return filepath.Join(resolveDataDir(cfg), "lastrun")
}

func resolveHistoryPath(cfg Config) string {
	if cfg.History.Path != "" {
		return cfg.History.Path
	}
	return filepath.Join(resolveDataDir(cfg), "history.db")
}
