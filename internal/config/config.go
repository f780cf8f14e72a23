// Package config resolves runtime settings from flags, the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/maloquacious/gamingdb/internal/store"
)

// Keys double as environment variable names once upper-cased.
const (
	KeyPort            = "port"
	KeyAdminPort       = "admin_port"
	KeyDBPath          = "db_path"
	KeyProbeTimeout    = "probe_timeout"
	KeyShutdownTimeout = "shutdown_timeout"
	KeyExitAfter       = "exit_after"
	KeyLogLevel        = "log_level"
)

const (
	DefaultPort            = 5001
	DefaultAdminPort       = 8383
	DefaultProbeTimeout    = 2 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultLogLevel        = "info"
	DefaultDBPath          = store.DefaultDBFile
)

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"port":             KeyPort,
	"admin-port":       KeyAdminPort,
	"db":               KeyDBPath,
	"probe-timeout":    KeyProbeTimeout,
	"shutdown-timeout": KeyShutdownTimeout,
	"exit-after":       KeyExitAfter,
	"log-level":        KeyLogLevel,
}

// Config holds the resolved settings.
type Config struct {
	Port            int
	AdminPort       int
	DBPath          string
	ProbeTimeout    time.Duration
	ShutdownTimeout time.Duration
	ExitAfter       time.Duration
	LogLevel        string
}

// New returns a viper instance with defaults set and the environment bound.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyAdminPort, DefaultAdminPort)
	v.SetDefault(KeyDBPath, store.GetDBPath(store.GetStorePath()))
	v.SetDefault(KeyProbeTimeout, DefaultProbeTimeout)
	v.SetDefault(KeyShutdownTimeout, DefaultShutdownTimeout)
	v.SetDefault(KeyExitAfter, time.Duration(0))
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.AutomaticEnv()
	return v
}

// LoadDotEnv reads files (".env" when none are given) into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// BindFlags binds every known flag present in fs to its config key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// Load resolves and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	var err error

	if cfg.Port, err = portValue(v, KeyPort, false); err != nil {
		return cfg, err
	}
	if cfg.AdminPort, err = portValue(v, KeyAdminPort, true); err != nil {
		return cfg, err
	}
	if cfg.ProbeTimeout, err = durationValue(v, KeyProbeTimeout); err != nil {
		return cfg, err
	}
	if cfg.ProbeTimeout <= 0 {
		return cfg, fmt.Errorf("%s must be positive", KeyProbeTimeout)
	}
	if cfg.ShutdownTimeout, err = durationValue(v, KeyShutdownTimeout); err != nil {
		return cfg, err
	}
	if cfg.ExitAfter, err = durationValue(v, KeyExitAfter); err != nil {
		return cfg, err
	}

	cfg.DBPath, err = store.ResolveDBPath(v.GetString(KeyDBPath))
	if err != nil {
		return cfg, err
	}

	cfg.LogLevel = v.GetString(KeyLogLevel)
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	return cfg, nil
}

func portValue(v *viper.Viper, key string, allowZero bool) (int, error) {
	port, err := cast.ToIntE(v.Get(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v.GetString(key), err)
	}
	if port < 0 || port > 65535 || (port == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s %d: out of range", key, port)
	}
	return port, nil
}

func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	d, err := cast.ToDurationE(v.Get(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v.GetString(key), err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %s: negative", key, d)
	}
	return d, nil
}
