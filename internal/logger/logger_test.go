package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestStructuredLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(Config{Level: LevelDebug, Format: FormatJSON}, &buf)

	l.Info("token refreshed", "expires_at", "2024-01-01T00:00:00Z", "dangling")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "token refreshed", lines[0]["msg"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "2024-01-01T00:00:00Z", lines[0]["expires_at"])
	assert.NotContains(t, lines[0], "dangling")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(Config{Level: LevelWarn, Format: FormatJSON}, &buf)

	l.Info("hidden")
	l.Warn("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])

	l.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, l.GetLevel())
}

func TestWithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(Config{Level: LevelInfo, Format: FormatJSON}, &buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	l.WithContext(ctx).WithField("account_id", "123").Info("balances")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, "123", lines[0]["account_id"])
}

func TestLogHTTPRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(Config{Level: LevelInfo, Format: FormatJSON}, &buf)

	LogHTTPRequest(l, HTTPRequestInfo{Method: "GET", Path: "/health", StatusCode: 200, Latency: time.Millisecond})
	LogHTTPRequest(l, HTTPRequestInfo{Method: "POST", Path: "/orders/default", StatusCode: 400})
	LogHTTPRequest(l, HTTPRequestInfo{Method: "GET", Path: "/accounts/1/balances", StatusCode: 502, RequestID: "r"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "warning", lines[1]["level"])
	assert.Equal(t, "error", lines[2]["level"])
	assert.Equal(t, "GET /accounts/1/balances - 502", lines[2]["msg"])
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "********abcd", Redact("secret-abcd"))
	assert.Equal(t, "***", Redact("abc"))
	assert.Equal(t, "", Redact(""))
}
