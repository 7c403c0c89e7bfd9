package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestRequestContext_LogsBaseFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "prod", "debug")

	rc := NewRequestContext(logger, "send_message", "sess-1")
	require.NotEmpty(t, rc.RequestID)

	rc.Error("suggest failed", errors.New("boom"), slog.Int64(LogFieldDuration, 12))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "suggest failed", entry["msg"])
	assert.Equal(t, rc.RequestID, entry[LogFieldRequestID])
	assert.Equal(t, "send_message", entry[LogFieldOperation])
	assert.Equal(t, "sess-1", entry[LogFieldSessionID])
	assert.Equal(t, "boom", entry["error"])
	assert.EqualValues(t, 12, entry[LogFieldDuration])
}

func TestRequestContext_OmitsEmptySession(t *testing.T) {
	var buf bytes.Buffer
	rc := NewRequestContext(NewLogger(&buf, "prod", "info"), "load_sessions", "")
	rc.Info("loaded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, ok := entry[LogFieldSessionID]
	assert.False(t, ok)
}

func TestRequestContext_DebugFilteredByLevel(t *testing.T) {
	var buf bytes.Buffer
	rc := NewRequestContext(NewLogger(&buf, "dev", "info"), "autocomplete", "")
	rc.Debug("hidden")
	assert.Empty(t, buf.String())

	rc.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestContextRoundTrip(t *testing.T) {
	rc := NewRequestContext(nil, "op", "s")
	ctx := WithRequestContext(context.Background(), rc)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, rc, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
