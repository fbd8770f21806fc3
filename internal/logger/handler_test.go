package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selflearning/apps/worker/internal/middleware"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var logMap map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logMap))
	return logMap
}

func TestContextHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := middleware.WithCorrelationID(context.Background(), "test-correlation-id")
	ctx = WithJobID(ctx, "job-1")

	logger.InfoContext(ctx, "test message")

	logMap := decode(t, &buf)
	assert.Equal(t, "test-correlation-id", logMap["correlation_id"])
	assert.Equal(t, "job-1", logMap["job_id"])
}

func TestContextHandler_WithAttrsKeepsContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil))).With("component", "orchestrator")

	logger.InfoContext(WithJobID(context.Background(), "job-2"), "drain finished")

	logMap := decode(t, &buf)
	assert.Equal(t, "orchestrator", logMap["component"])
	assert.Equal(t, "job-2", logMap["job_id"])
	_, hasCorrelation := logMap["correlation_id"]
	assert.False(t, hasCorrelation)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
