package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/airhacks/ping/api/hello"
	"github.com/airhacks/ping/api/ping"
	"github.com/airhacks/ping/pkg/config"
	"github.com/airhacks/ping/pkg/log"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func newApp(stdout, stderr io.Writer, env hello.Env) *cli.App {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to an HCL configuration file",
		EnvVars: []string{"PING_CONFIG"},
	}

	return &cli.App{
		Name:      "ping",
		Usage:     "Cloud native greeting service",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API until interrupted",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "listen address, e.g. :8080"},
					&cli.StringFlag{Name: "log-level", Usage: "panic, fatal, error, warn, info, debug or trace"},
					&cli.StringFlag{Name: "log-format", Usage: "text or json"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c, env)
					if err != nil {
						return err
					}
					logger, err := log.FromConfig(cfg.Log, stderr)
					if err != nil {
						return err
					}
					logger.WithField("version", version).Info("Starting ping")
					if err := ping.NewServer(cfg.Server, logger, env).Run(c.Context); err != nil {
						logger.WithError(err).Error("Ping API failed")
						return err
					}
					logger.Info("Stopped")
					return nil
				},
			},
			{
				Name:  "config",
				Usage: "print the effective configuration",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c, env)
					if err != nil {
						return err
					}
					_, err = fmt.Fprint(stdout, cfg.String())
					return err
				},
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintln(stdout, version)
					return err
				},
			},
		},
	}
}

// loadConfig layers the config file, the environment and the command line
// flags, in increasing precedence.
func loadConfig(c *cli.Context, env hello.Env) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(config.Env(env)); err != nil {
		return nil, errors.Wrap(err, "invalid environment")
	}

	if c.IsSet("listen") {
		cfg.Server.ListenAddr = c.String("listen")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid flags")
	}
	return cfg, nil
}
