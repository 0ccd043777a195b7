package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wesm/coursesync/internal/logging"
)

const (
	configFileName = "config.json"
	envPrefix      = "COURSESYNC"
	dataDirEnv     = envPrefix + "_DATA_DIR"
)

// Config holds all application configuration.
type Config struct {
	Host            string         `mapstructure:"host"`
	Port            int            `mapstructure:"port"`
	DataDir         string         `mapstructure:"-"`
	DBPath          string         `mapstructure:"-"`
	DefaultsPath    string         `mapstructure:"defaults_path"`
	ListingPath     string         `mapstructure:"listing_path"`
	SessionID       string         `mapstructure:"session_id"`
	ExecutorCommand string         `mapstructure:"executor_command"`
	WatchExternal   bool           `mapstructure:"watch_external"`
	WriteTimeout    time.Duration  `mapstructure:"write_timeout"`
	Logging         logging.Config `mapstructure:"logging"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	return Config{
		Host:          "127.0.0.1",
		Port:          8090,
		DataDir:       filepath.Join(home, ".coursesync"),
		SessionID:     "default",
		WatchExternal: true,
		WriteTimeout:  30 * time.Second,
		Logging:       logging.Config{Level: "info"},
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

// LoadMinimal builds a Config from defaults, config file and
// env, without parsing CLI flags. Use this for subcommands that
// manage their own flag sets.
func LoadMinimal() (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	dataDir, err := ResolveDataDir()
	if err != nil {
		return cfg, err
	}
	cfg.DataDir = dataDir

	v := newViper(cfg)
	if err := v.ReadInConfig(); err != nil &&
		!errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	cfg.resolvePaths()
	return cfg, nil
}

// newViper registers every key with its default so that
// environment variables are seen by Unmarshal.
func newViper(cfg Config) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(filepath.Join(cfg.DataDir, configFileName))
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("defaults_path", cfg.DefaultsPath)
	v.SetDefault("listing_path", cfg.ListingPath)
	v.SetDefault("session_id", cfg.SessionID)
	v.SetDefault("executor_command", cfg.ExecutorCommand)
	v.SetDefault("watch_external", cfg.WatchExternal)
	v.SetDefault("write_timeout", cfg.WriteTimeout)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
	return v
}

func (c *Config) resolvePaths() {
	c.DBPath = filepath.Join(c.DataDir, "progress.db")
	if c.DefaultsPath == "" {
		c.DefaultsPath = filepath.Join(c.DataDir, "defaults.db")
	}
	if c.ListingPath == "" {
		c.ListingPath = filepath.Join(c.DataDir, "listing.json")
	}
}

// ConfigPath returns the config file location.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.DataDir, configFileName)
}

// ResolveDataDir returns the effective data directory by applying
// defaults and environment overrides, without reading any files.
func ResolveDataDir() (string, error) {
	cfg, err := Default()
	if err != nil {
		return "", err
	}
	if v := os.Getenv(dataDirEnv); v != "" {
		cfg.DataDir = v
	}
	return cfg.DataDir, nil
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to Load.
func RegisterServeFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8090, "Port to listen on")
	fs.String("listing", "", "Course listing JSON file")
	fs.String("session", "default", "Session whose selections to sync")
	fs.String(
		"executor", "",
		"Command that downloads triggered entries (entries JSON on stdin)",
	)
	fs.Bool(
		"watch-external", true,
		"Pick up progress written by other processes",
	)
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
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
		case "listing":
			cfg.ListingPath = f.Value.String()
		case "session":
			cfg.SessionID = f.Value.String()
		case "executor":
			cfg.ExecutorCommand = f.Value.String()
		case "watch-external":
			cfg.WatchExternal = f.Value.String() == "true"
		case "log-level":
			cfg.Logging.Level = f.Value.String()
		}
	})
}
