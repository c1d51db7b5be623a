package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/model"
	"chat-assistant/internal/domain/ports/repository"
)

// Storage schema shared with the browser build of the assistant.
const (
	KeyAPIKey     = "api_key"
	ChatKeyPrefix = "chat-"
)

// KeyStrategy decides the key a finished transcript is written under.
type KeyStrategy int

const (
	// KeyFirstMessage keys by the text of the first user turn. Two
	// conversations opening with the same words overwrite each other.
	KeyFirstMessage KeyStrategy = iota
	// KeyConversationID keys by a ULID minted per conversation.
	KeyConversationID
)

func ParseKeyStrategy(s string) (KeyStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first_message":
		return KeyFirstMessage, nil
	case "conversation_id":
		return KeyConversationID, nil
	default:
		return KeyFirstMessage, fmt.Errorf("unknown persist key strategy %q: %w", s, domain.ErrInvalidArgument)
	}
}

// ChatKey returns the storage key for chat. It is only meaningful once chat
// holds at least one snippet.
func ChatKey(strategy KeyStrategy, conversationID string, chat []model.ChatSnippet) string {
	if strategy == KeyConversationID || len(chat) == 0 {
		return ChatKeyPrefix + conversationID
	}
	return ChatKeyPrefix + chat[0].Text
}

// LoadAPIKey returns "" with a nil error when no key was ever saved.
func LoadAPIKey(ctx context.Context, store repository.KeyValueStore) (string, error) {
	raw, err := store.Get(ctx, KeyAPIKey)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var key string
	if err := json.Unmarshal(raw, &key); err != nil {
		return "", domain.NewStorageError("decode", KeyAPIKey, err)
	}
	return key, nil
}

func SaveAPIKey(ctx context.Context, store repository.KeyValueStore, key string) error {
	raw, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("encode api key: %w", err)
	}
	return store.Set(ctx, KeyAPIKey, raw)
}

func SaveTranscript(ctx context.Context, store repository.KeyValueStore, key string, chat []model.ChatSnippet) error {
	if chat == nil {
		chat = []model.ChatSnippet{}
	}
	raw, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return store.Set(ctx, key, raw)
}

func LoadTranscript(ctx context.Context, store repository.KeyValueStore, key string) ([]model.ChatSnippet, error) {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var chat []model.ChatSnippet
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, domain.NewStorageError("decode", key, err)
	}
	return chat, nil
}
