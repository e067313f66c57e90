// Package config provides functionality for managing configuration options
// for the client and the ERP stand-in server using a config file, environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/atinyakov/TimeKeeper/internal/models"
)

// EnvPrefix prefixes every environment override, e.g. TIMEKEEPER_STORE_DSN.
const EnvPrefix = "TIMEKEEPER"

// Options holds the configuration values for the application.
type Options struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	Store   StoreOptions   `mapstructure:"store"`
	Remote  RemoteOptions  `mapstructure:"remote"`
	Monitor MonitorOptions `mapstructure:"monitor"`
	Server  ServerOptions  `mapstructure:"server"`

	// Config is the path of the file the options were read from, empty if none.
	Config string `mapstructure:"-"`
}

// StoreOptions configures the local store.
type StoreOptions struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `mapstructure:"dsn"`
	// CheckpointInterval controls how often the sqlite WAL is truncated; zero disables it.
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`
}

// RemoteOptions configures the ERP transport.
type RemoteOptions struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	PushTimeout     time.Duration `mapstructure:"push_timeout"`
	CAFile          string        `mapstructure:"ca_file"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
	ScriptID        string        `mapstructure:"script_id"`
	DeployID        string        `mapstructure:"deploy_id"`
}

// MonitorOptions configures the connectivity monitor.
type MonitorOptions struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

// ServerUser is an account accepted by the stand-in password-grant endpoint.
type ServerUser struct {
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	EmployeeID string `mapstructure:"employee_id"`
}

// ServerOptions configures the ERP stand-in server.
type ServerOptions struct {
	Addr             string                    `mapstructure:"addr"`
	TLSCert          string                    `mapstructure:"tls_cert"`
	TLSKey           string                    `mapstructure:"tls_key"`
	AccountID        string                    `mapstructure:"account_id"`
	NonceWindow      time.Duration             `mapstructure:"nonce_window"`
	Users            []ServerUser              `mapstructure:"users"`
	TokenCredentials []models.TokenCredentials `mapstructure:"token_credentials"`
	Projects         []models.Project          `mapstructure:"projects"`
}

// Defaults returns a fresh copy of the default values keyed by their config path.
func Defaults() map[string]any {
	return map[string]any{
		"log_level": "info",

		"store.driver":              "sqlite",
		"store.dsn":                 defaultDataPath(),
		"store.checkpoint_interval": "10m",

		"remote.timeout":          "30s",
		"remote.push_timeout":     "30s",
		"remote.ca_file":          "",
		"remote.breaker_failures": 3,
		"remote.breaker_cooldown": "30s",
		"remote.script_id":        "customscript_time_entry_restlet",
		"remote.deploy_id":        "customdeploy_time_entry_restlet",

		"monitor.probe_interval": "15s",
		"monitor.probe_timeout":  "5s",

		"server.addr":         "localhost:8080",
		"server.tls_cert":     "",
		"server.tls_key":      "",
		"server.account_id":   "1234567",
		"server.nonce_window": "5m",
		"server.users": []map[string]any{
			{"username": "demo", "password": "demo", "employee_id": "42"},
		},
		"server.token_credentials": []map[string]any{},
		"server.projects": []map[string]any{
			{"id": "1", "name": "Project A", "customer": "Customer 1"},
			{"id": "2", "name": "Project B", "customer": "Customer 2"},
			{"id": "3", "name": "Project C", "customer": "Customer 3"},
		},
	}
}

// Load reads the configuration. The file path comes from the argument or, when empty,
// from the TIMEKEEPER_CONFIG environment variable; a missing file is not an error.
// Environment variables override file values, which override defaults. A .env file
// in the working directory is loaded first without overriding variables already set.
func Load(path string) (*Options, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error while reading .env: %w", err)
	}

	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error while reading config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config file: %w", err)
		} else {
			path = ""
		}
	}

	var options Options
	if err := v.Unmarshal(&options); err != nil {
		return nil, fmt.Errorf("error while parsing config: %w", err)
	}
	options.Config = path

	if err := options.validate(); err != nil {
		return nil, err
	}
	return &options, nil
}

func (o *Options) validate() error {
	switch o.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported store driver %q", o.Store.Driver)
	}
	if o.Store.DSN == "" {
		return errors.New("store dsn is required")
	}
	if o.Remote.PushTimeout <= 0 {
		return errors.New("remote push_timeout must be positive")
	}
	if o.Monitor.ProbeInterval <= 0 {
		return errors.New("monitor probe_interval must be positive")
	}
	return nil
}

// defaultDataPath places the sqlite file under the user config directory,
// falling back to the working directory.
func defaultDataPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "timekeeper.db"
	}
	return filepath.Join(dir, "timekeeper", "timekeeper.db")
}
