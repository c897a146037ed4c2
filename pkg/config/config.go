// Package config loads the ping service configuration from an HCL file,
// the environment and command line overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultListenAddr        = ":8080"
	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 5 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	defaultShutdownTimeout   = 15 * time.Second
	defaultBindTimeout       = 30 * time.Second

	FormatText = "text"
	FormatJSON = "json"
)

// Env looks up an environment variable the way os.LookupEnv does.
type Env func(key string) (string, bool)

type Config struct {
	Server ServerConfig
	Log    LogConfig
}

type ServerConfig struct {
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	BindTimeout       time.Duration
	Metrics           bool
}

type LogConfig struct {
	Level  string
	Format string
}

// fileConfig mirrors the on-disk HCL layout. Pointers distinguish unset
// keys from zero values.
type fileConfig struct {
	Server *serverBlock `hcl:"server"`
	Log    *logBlock    `hcl:"log"`
}

type serverBlock struct {
	ListenAddr        string `hcl:"listen_addr"`
	ReadHeaderTimeout string `hcl:"read_header_timeout"`
	ReadTimeout       string `hcl:"read_timeout"`
	WriteTimeout      string `hcl:"write_timeout"`
	IdleTimeout       string `hcl:"idle_timeout"`
	ShutdownTimeout   string `hcl:"shutdown_timeout"`
	BindTimeout       string `hcl:"bind_timeout"`
	Metrics           *bool  `hcl:"metrics"`
}

type logBlock struct {
	Level  string `hcl:"level"`
	Format string `hcl:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:        defaultListenAddr,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			ReadTimeout:       defaultReadTimeout,
			WriteTimeout:      defaultWriteTimeout,
			IdleTimeout:       defaultIdleTimeout,
			ShutdownTimeout:   defaultShutdownTimeout,
			BindTimeout:       defaultBindTimeout,
			Metrics:           true,
		},
		Log: LogConfig{
			Level:  logrus.InfoLevel.String(),
			Format: FormatText,
		},
	}
}

// Load reads the HCL file at path on top of the defaults. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read config file")
	}
	if err := cfg.decode(string(data)); err != nil {
		return nil, errors.Wrapf(err, "could not parse config file %s", path)
	}
	return cfg, nil
}

// Parse decodes HCL configuration text on top of the defaults.
func Parse(text string) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(text); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(text string) error {
	var fc fileConfig
	if err := hcl.Decode(&fc, text); err != nil {
		return errors.Wrap(err, "invalid HCL")
	}

	if s := fc.Server; s != nil {
		if s.ListenAddr != "" {
			c.Server.ListenAddr = s.ListenAddr
		}
		durations := []struct {
			key string
			raw string
			dst *time.Duration
		}{
			{"read_header_timeout", s.ReadHeaderTimeout, &c.Server.ReadHeaderTimeout},
			{"read_timeout", s.ReadTimeout, &c.Server.ReadTimeout},
			{"write_timeout", s.WriteTimeout, &c.Server.WriteTimeout},
			{"idle_timeout", s.IdleTimeout, &c.Server.IdleTimeout},
			{"shutdown_timeout", s.ShutdownTimeout, &c.Server.ShutdownTimeout},
			{"bind_timeout", s.BindTimeout, &c.Server.BindTimeout},
		}
		for _, d := range durations {
			if d.raw == "" {
				continue
			}
			v, err := time.ParseDuration(d.raw)
			if err != nil {
				return errors.Wrapf(err, "server.%s", d.key)
			}
			*d.dst = v
		}
		if s.Metrics != nil {
			c.Server.Metrics = *s.Metrics
		}
	}

	if l := fc.Log; l != nil {
		if l.Level != "" {
			c.Log.Level = l.Level
		}
		if l.Format != "" {
			c.Log.Format = l.Format
		}
	}

	return c.Validate()
}

// ApplyEnv overrides values from PING_* variables. PORT is honoured when
// PING_LISTEN_ADDR is not set, as most platforms inject it.
func (c *Config) ApplyEnv(env Env) error {
	if env == nil {
		env = os.LookupEnv
	}
	if v, ok := env("PING_LISTEN_ADDR"); ok && v != "" {
		c.Server.ListenAddr = v
	} else if v, ok := env("PORT"); ok && v != "" {
		c.Server.ListenAddr = ":" + v
	}
	if v, ok := env("PING_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := env("PING_LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	return c.Validate()
}

// Validate checks values that cannot be checked while decoding.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr must not be empty")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		return errors.Errorf("log.format must be %q or %q, got %q", FormatText, FormatJSON, c.Log.Format)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.Server.BindTimeout < 0 {
		return errors.New("server.bind_timeout must not be negative")
	}
	return nil
}

// String renders the effective configuration in the file's HCL layout.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("server {\n")
	fmt.Fprintf(&b, "  listen_addr         = %q\n", c.Server.ListenAddr)
	fmt.Fprintf(&b, "  read_header_timeout = %q\n", c.Server.ReadHeaderTimeout)
	fmt.Fprintf(&b, "  read_timeout        = %q\n", c.Server.ReadTimeout)
	fmt.Fprintf(&b, "  write_timeout       = %q\n", c.Server.WriteTimeout)
	fmt.Fprintf(&b, "  idle_timeout        = %q\n", c.Server.IdleTimeout)
	fmt.Fprintf(&b, "  shutdown_timeout    = %q\n", c.Server.ShutdownTimeout)
	fmt.Fprintf(&b, "  bind_timeout        = %q\n", c.Server.BindTimeout)
	fmt.Fprintf(&b, "  metrics             = %t\n", c.Server.Metrics)
	b.WriteString("}\n")
	b.WriteString("log {\n")
	fmt.Fprintf(&b, "  level  = %q\n", c.Log.Level)
	fmt.Fprintf(&b, "  format = %q\n", c.Log.Format)
	b.WriteString("}\n")
	return b.String()
}
