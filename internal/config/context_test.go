package config

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.NotNil(t, GetLogger(ctx))

	cfg := &Config{Dialect: "postgres"}
	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	ctx = NewContext(ctx, cfg, logger)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Same(t, logger, GetLogger(ctx))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	(&Config{LogFormat: "json"}).NewLogger(&buf).Debug("hidden")
	assert.Empty(t, buf.String())

	(&Config{LogFormat: "json", Verbose: true}).NewLogger(&buf).Debug("shown", "n", 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "DEBUG", rec["level"])

	buf.Reset()
	(&Config{LogFormat: "text"}).NewLogger(&buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}
