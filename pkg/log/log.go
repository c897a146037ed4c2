package log

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/airhacks/ping/pkg/config"
)

// New returns a logger writing to out at the given level and format.
func New(level, format string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	switch format {
	case config.FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	case config.FormatText, "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
	return logger, nil
}

// FromConfig builds the logger described by cfg.
func FromConfig(cfg config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	return New(cfg.Level, cfg.Format, out)
}
