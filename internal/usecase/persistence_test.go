package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/model"
	"chat-assistant/internal/infra/kv"
)

func TestChatKey(t *testing.T) {
	chat := []model.ChatSnippet{model.UserSnippet("Hello"), model.AssistantSnippet("Hi there")}
	assert.Equal(t, "chat-Hello", ChatKey(KeyFirstMessage, "01J", chat))
	assert.Equal(t, "chat-01J", ChatKey(KeyConversationID, "01J", chat))
	assert.Equal(t, "chat-01J", ChatKey(KeyFirstMessage, "01J", nil))
}

func TestParseKeyStrategy(t *testing.T) {
	s, err := ParseKeyStrategy("")
	require.NoError(t, err)
	assert.Equal(t, KeyFirstMessage, s)

	s, err = ParseKeyStrategy("conversation_id")
	require.NoError(t, err)
	assert.Equal(t, KeyConversationID, s)

	_, err = ParseKeyStrategy("random")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestTranscriptRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	chat := []model.ChatSnippet{model.UserSnippet(`say "hi"`), model.AssistantSnippet("hi")}

	require.NoError(t, SaveTranscript(ctx, store, "chat-x", chat))
	raw, err := store.Get(ctx, "chat-x")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"text":"say \"hi\"","role":"user"},{"text":"hi","role":"assistant"}]`, string(raw))

	got, err := LoadTranscript(ctx, store, "chat-x")
	require.NoError(t, err)
	assert.Equal(t, chat, got)

	require.NoError(t, SaveTranscript(ctx, store, "chat-empty", nil))
	raw, _ = store.Get(ctx, "chat-empty")
	assert.Equal(t, "[]", string(raw))
}

func TestLoadAPIKey_CorruptValue(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	require.NoError(t, store.Set(ctx, KeyAPIKey, []byte("not-json")))

	key, err := LoadAPIKey(ctx, store)
	assert.Equal(t, "", key)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}
