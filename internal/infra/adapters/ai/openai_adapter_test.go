package ai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/ports/adapter"
	ai "chat-assistant/internal/infra/adapters/ai"
)

type captured struct {
	method string
	path   string
	auth   string
	ctype  string
	body   []byte
	calls  int
}

func newProvider(t *testing.T, status int, respBody string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.calls++
		c.method = r.Method
		c.path = r.URL.Path
		c.auth = r.Header.Get("Authorization")
		c.ctype = r.Header.Get("Content-Type")
		c.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func helloRequest() adapter.CompletionRequest {
	return adapter.CompletionRequest{
		Messages:    []adapter.Message{{Role: "user", Content: "Hello"}},
		APIKey:      "sk-test",
		Model:       adapter.ModelV35,
		Temperature: 0.7,
	}
}

func TestEncodeRequestBody(t *testing.T) {
	b, err := ai.EncodeRequestBody(helloRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"gpt-3.5-turbo","messages":[{"role":"user","content":"Hello"}],"temperature":0.7}`, string(b))
}

func TestEncodeRequestBodyEscapesContent(t *testing.T) {
	tricky := "say \"hi\"\n\tand \\ done"
	req := adapter.CompletionRequest{
		Messages: []adapter.Message{
			{Role: "user", Content: tricky},
			{Role: "assistant", Content: "ok"},
			{Role: "user", Content: "again"},
		},
		Model:       adapter.ModelV4,
		Temperature: 0.7,
	}
	b, err := ai.EncodeRequestBody(req)
	require.NoError(t, err)

	var decoded struct {
		Model    string            `json:"model"`
		Messages []adapter.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "gpt-4", decoded.Model)
	require.Len(t, decoded.Messages, 3)
	assert.Equal(t, tricky, decoded.Messages[0].Content)
	assert.Equal(t, "assistant", decoded.Messages[1].Role)
	assert.Equal(t, "again", decoded.Messages[2].Content)
}

func TestEncodeRequestBodyEmptyTranscript(t *testing.T) {
	b, err := ai.EncodeRequestBody(adapter.CompletionRequest{Temperature: 0.7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"gpt-3.5-turbo","messages":[],"temperature":0.7}`, string(b))
}

func TestOpenAIAdapter_Success(t *testing.T) {
	srv, c := newProvider(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"Hi there"}}]}`)
	a := ai.NewOpenAIAdapter(srv.URL+"/v1/", srv.Client())

	reply, err := a.Complete(context.Background(), helloRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply)

	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/v1/chat/completions", c.path)
	assert.Equal(t, "Bearer sk-test", c.auth)
	assert.Equal(t, "application/json", c.ctype)
	assert.JSONEq(t, `{"model":"gpt-3.5-turbo","messages":[{"role":"user","content":"Hello"}],"temperature":0.7}`, string(c.body))
}

func TestOpenAIAdapter_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   error
		msg    string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided"}}`, domain.ErrUnauthorized, "Incorrect API key provided"},
		{"forbidden", http.StatusForbidden, ``, domain.ErrUnauthorized, ""},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, domain.ErrProviderStatus, "slow down"},
		{"server error", http.StatusInternalServerError, `oops`, domain.ErrProviderStatus, `body: "oops"`},
		{"gateway page", http.StatusBadGateway, `<html>Bad Gateway</html>`, domain.ErrProviderStatus, "Bad Gateway"},
		{"error without message", http.StatusBadRequest, `{"error":{"code":"bad"}}`, domain.ErrProviderStatus, `\"code\":\"bad\"`},
		{"not json", http.StatusOK, `<html>hello</html>`, domain.ErrMalformedResponse, ""},
		{"no choices", http.StatusOK, `{"choices":[]}`, domain.ErrMalformedResponse, ""},
		{"content missing", http.StatusOK, `{"choices":[{"message":{"role":"assistant"}}]}`, domain.ErrMalformedResponse, ""},
		{"content not string", http.StatusOK, `{"choices":[{"message":{"content":42}}]}`, domain.ErrMalformedResponse, ""},
		{"content null", http.StatusOK, `{"choices":[{"message":{"content":null}}]}`, domain.ErrMalformedResponse, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newProvider(t, tc.status, tc.body)
			a := ai.NewOpenAIAdapter(srv.URL, srv.Client())

			reply, err := a.Complete(context.Background(), helloRequest())
			require.Error(t, err)
			assert.Empty(t, reply)
			assert.ErrorIs(t, err, tc.kind)

			var ce *domain.CompletionError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.status, ce.StatusCode)
			if tc.msg != "" {
				assert.Contains(t, err.Error(), tc.msg)
			}
		})
	}
}

func TestOpenAIAdapter_LongErrorBodyIsTrimmed(t *testing.T) {
	srv, _ := newProvider(t, http.StatusServiceUnavailable, strings.Repeat("x", 5000))
	a := ai.NewOpenAIAdapter(srv.URL, srv.Client())

	_, err := a.Complete(context.Background(), helloRequest())
	require.ErrorIs(t, err, domain.ErrProviderStatus)
	assert.Contains(t, err.Error(), strings.Repeat("x", 200)+`"...`)
	assert.NotContains(t, err.Error(), strings.Repeat("x", 201))
}

func TestOpenAIAdapter_EmptyStringContentIsValid(t *testing.T) {
	srv, _ := newProvider(t, http.StatusOK, `{"choices":[{"message":{"content":""}}]}`)
	reply, err := ai.NewOpenAIAdapter(srv.URL, srv.Client()).Complete(context.Background(), helloRequest())
	require.NoError(t, err)
	assert.Equal(t, "", reply)
}

func TestOpenAIAdapter_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := ai.NewOpenAIAdapter(url, nil).Complete(context.Background(), helloRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestOpenAIAdapter_ContextTimeoutIsNetwork(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { <-block }))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ai.NewOpenAIAdapter(srv.URL, srv.Client()).Complete(ctx, helloRequest())
	assert.ErrorIs(t, err, domain.ErrNetwork)
}
