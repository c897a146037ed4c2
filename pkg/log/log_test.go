package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airhacks/ping/pkg/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", config.FormatJSON, &buf)
	require.NoError(t, err)

	logger.WithField("subsystem", "test").Debug("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "test", entry["subsystem"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", config.FormatText, &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	assert.Empty(t, buf.String())
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("chatty", config.FormatText, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = New("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	logger, err := FromConfig(config.Default().Log, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
