package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"chat-assistant/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithAttachesContextIDs(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, config.LogConfig{Level: "info", Format: "json"}, false)

	ctx := WithTraceID(context.Background(), "t-1")
	ctx = WithClientID(ctx, "c-1")
	ctx = WithSessID(ctx, "s-1")
	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "t-1", line["trace_id"])
	assert.Equal(t, "c-1", line["client_id"])
	assert.Equal(t, "s-1", line["session_id"])
	assert.Equal(t, "t-1", TraceID(ctx))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "***", Redact("sk-1", false))
	assert.Equal(t, "sk-a...yz", Redact("sk-abcdefxyz", false))
	assert.Equal(t, "sk-abcdefxyz", Redact("sk-abcdefxyz", true))
}
