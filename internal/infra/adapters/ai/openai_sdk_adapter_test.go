package ai_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/ports/adapter"
	ai "chat-assistant/internal/infra/adapters/ai"
)

const okCompletion = `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-3.5-turbo",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hi there"}}]}`

func TestOpenAISDKAdapter_Success(t *testing.T) {
	srv, c := newProvider(t, http.StatusOK, okCompletion)
	a := ai.NewOpenAISDKAdapter(srv.URL+"/v1", srv.Client())

	req := helloRequest()
	req.Messages = append(req.Messages,
		adapter.Message{Role: "assistant", Content: "Hi"},
		adapter.Message{Role: "user", Content: "How are you?"},
	)
	reply, err := a.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply)

	assert.Equal(t, "/v1/chat/completions", c.path)
	assert.Equal(t, "Bearer sk-test", c.auth)
	body := gjson.ParseBytes(c.body)
	assert.Equal(t, "gpt-3.5-turbo", body.Get("model").String())
	assert.Equal(t, 0.7, body.Get("temperature").Float())
	assert.Equal(t, "user", body.Get("messages.0.role").String())
	assert.Equal(t, "assistant", body.Get("messages.1.role").String())
	assert.Equal(t, "How are you?", body.Get("messages.2.content").String())
}

func TestOpenAISDKAdapter_Unauthorized(t *testing.T) {
	srv, _ := newProvider(t, http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	_, err := ai.NewOpenAISDKAdapter(srv.URL, srv.Client()).Complete(context.Background(), helloRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestOpenAISDKAdapter_ServerErrorNotRetried(t *testing.T) {
	srv, c := newProvider(t, http.StatusInternalServerError, `{"error":{"message":"down"}}`)

	_, err := ai.NewOpenAISDKAdapter(srv.URL, srv.Client()).Complete(context.Background(), helloRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderStatus)
	assert.Equal(t, 1, c.calls)
}

func TestOpenAISDKAdapter_MissingContent(t *testing.T) {
	srv, _ := newProvider(t, http.StatusOK, `{"choices":[{"index":0,"message":{"role":"assistant"}}]}`)
	_, err := ai.NewOpenAISDKAdapter(srv.URL, srv.Client()).Complete(context.Background(), helloRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}
