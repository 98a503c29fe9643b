// Package config loads relay settings from defaults, an optional relay.yaml,
// a .env file and the process environment, in increasing priority, with
// command-line flags on top.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultHost      = "127.0.0.1"
	DefaultPort      = 31979
	DefaultExitGrace = 3 * time.Second
)

type Config struct {
	Host    string        `mapstructure:"sio_host"`
	Port    int           `mapstructure:"sio_port"`
	URL     string        `mapstructure:"sio_url"`
	Relay   RelayConfig   `mapstructure:"relay"`
	Static  StaticConfig  `mapstructure:"static"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type RelayConfig struct {
	ExcludeOrigin bool          `mapstructure:"exclude_origin"`
	ExitGrace     time.Duration `mapstructure:"exit_grace"`
	QueueSize     int           `mapstructure:"queue_size"`
	SendBuffer    int           `mapstructure:"send_buffer"`
}

type StaticConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	File   string `mapstructure:"file"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Addr is the listen address of the relay.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"host":           "sio_host",
	"port":           "sio_port",
	"url":            "sio_url",
	"exclude-origin": "relay.exclude_origin",
	"exit-grace":     "relay.exit_grace",
	"static-dir":     "static.dir",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// Load builds the configuration. path names an optional YAML file; when empty,
// relay.yaml is searched in the working directory and ./config. flags may be
// nil; any flag listed in flagKeys that is present and changed wins over
// every other source.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if cfg.URL == "" {
		cfg.URL = "http://" + cfg.Addr()
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sio_host", DefaultHost)
	v.SetDefault("sio_port", DefaultPort)
	v.SetDefault("sio_url", "")

	v.SetDefault("relay.exclude_origin", false)
	v.SetDefault("relay.exit_grace", DefaultExitGrace)
	v.SetDefault("relay.queue_size", 1000)
	v.SetDefault("relay.send_buffer", 256)

	v.SetDefault("static.dir", "./web")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.enabled", true)
}

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Host == "" {
		errs = append(errs, errors.New("sio_host is required"))
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("sio_port %d is out of range 1-65535", cfg.Port))
	}
	if cfg.Relay.ExitGrace < 0 {
		errs = append(errs, fmt.Errorf("relay.exit_grace %s must not be negative", cfg.Relay.ExitGrace))
	}
	if cfg.Relay.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("relay.queue_size %d must be positive", cfg.Relay.QueueSize))
	}
	if cfg.Relay.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("relay.send_buffer %d must be positive", cfg.Relay.SendBuffer))
	}
	switch cfg.Log.Output {
	case "stdout", "stderr":
	case "file":
		if cfg.Log.File == "" {
			errs = append(errs, errors.New("log.file is required when log.output is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("log.output %q is invalid; valid values: stdout, stderr, file", cfg.Log.Output))
	}

	return errors.Join(errs...)
}
