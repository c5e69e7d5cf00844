package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismwall/prismd/internal/logging"
)

func TestNewWithWriter_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("dropped")
	logging.WithComponent(logger, "broker").Warn().Str("caller", "com.evil.app").Msg("denied")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "denied", line["message"])
	assert.Equal(t, "broker", line["component"])
	assert.Equal(t, "com.evil.app", line["caller"])
	assert.Equal(t, "prismd", line["app"])
}

func TestNewWithWriter_BadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Level: "chatty", Format: "json"}, &buf)

	logger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	logger.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Format: "json"}, &buf)

	ctx := logging.WithContext(context.Background(), logger)
	logging.FromContext(ctx).Info().Msg("from ctx")
	assert.Contains(t, buf.String(), "from ctx")
}

func TestNew_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prismd.log")
	logger, closer := logging.New(logging.Config{Level: "info", Format: "json", File: path})

	logger.Info().Str("caller", "com.evil.app").Msg("denied")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(b), &line))
	assert.Equal(t, "denied", line["message"])
	assert.Equal(t, "com.evil.app", line["caller"])

	rot := logging.RotatingFile(logging.Config{File: path})
	assert.Equal(t, 10, rot.MaxSize)
	assert.Equal(t, 2, rot.MaxBackups)
}

func TestNew_NoFileClosesCleanly(t *testing.T) {
	_, closer := logging.New(logging.Config{})
	assert.NoError(t, closer.Close())
}
