//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-assistant/internal/domain/model"
	"chat-assistant/internal/domain/ports/adapter"
	"chat-assistant/internal/domain/ports/repository"
	"chat-assistant/internal/infra/i18n"
	"chat-assistant/internal/infra/kv"
	"chat-assistant/internal/infra/worker"
	"chat-assistant/internal/usecase"
)

// newTestLogger creates a silent logger for tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(nil)
	return &logger
}

// gateAI holds every completion until release is closed.
type gateAI struct {
	release chan struct{}
}

func newGateAI() *gateAI { return &gateAI{release: make(chan struct{})} }

func (g *gateAI) Complete(ctx context.Context, req adapter.CompletionRequest) (string, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "Hi there", nil
}

type testEnv struct {
	srv  *httptest.Server
	auth *ClientAuth
	mem  *kv.Memory
	reg  *usecase.SessionRegistry
}

func newTestEnv(t *testing.T, ai adapter.CompletionClient) *testEnv {
	t.Helper()
	logger := newTestLogger()

	pool := worker.NewPool(2, logger)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	mem := kv.NewMemory()
	reg := usecase.NewSessionRegistry(func(clientID string) repository.KeyValueStore {
		return kv.NewNamespaced(mem, kv.ClientPrefix(clientID))
	}, ai, pool, usecase.DefaultSessionOptions(), logger)
	t.Cleanup(reg.CloseAll)

	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	require.NoError(t, err)

	auth := NewClientAuth("test-secret", false, time.Hour)
	s := NewServer(reg, auth, tr, Options{RequestTimeout: 5 * time.Second}, logger)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, auth: auth, mem: mem, reg: reg}
}

// bearer returns a token for a fresh client and its id.
func (e *testEnv) bearer(t *testing.T) (string, string) {
	t.Helper()
	id := ulid.Make().String()
	tok, err := e.auth.Token(id)
	require.NoError(t, err)
	return tok, id
}

func (e *testEnv) call(t *testing.T, tok, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeSnapshot(t *testing.T, data []byte) model.Snapshot {
	t.Helper()
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap
}

func decodeError(t *testing.T, data []byte) errorBody {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env.Error
}

func browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, newGateAI())

	resp, body := env.call(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, _ = env.call(t, "", http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIndexMintsClientCookie(t *testing.T) {
	env := newTestEnv(t, newGateAI())
	c := browser(t)

	resp, err := c.Get(env.srv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ChatGPT Assistant")
	assert.Contains(t, string(body), `href="/about"`)

	var minted *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == ClientCookie {
			minted = ck
		}
	}
	require.NotNil(t, minted)
	assert.True(t, minted.HttpOnly)

	// the jar replays the cookie: no second identity
	resp, err = c.Get(env.srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Cookies())
}

func TestAboutPage(t *testing.T) {
	env := newTestEnv(t, newGateAI())
	resp, body := env.call(t, "", http.MethodGet, "/about", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Back to chat")
}

func TestAPIRequiresClient(t *testing.T) {
	env := newTestEnv(t, newGateAI())

	resp, body := env.call(t, "", http.MethodGet, "/api/v1/session/", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	e := decodeError(t, body)
	assert.Equal(t, "unauthenticated", e.Code)
	assert.NotEmpty(t, e.Message)

	resp, _ = env.call(t, "not-a-token", http.MethodGet, "/api/v1/session/", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIQuestionRoundTrip(t *testing.T) {
	ai := newGateAI()
	env := newTestEnv(t, ai)
	tok, _ := env.bearer(t)

	resp, body := env.call(t, tok, http.MethodGet, "/api/v1/session/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeSnapshot(t, body)
	assert.Empty(t, snap.State.Chat)
	assert.Equal(t, model.PhaseIdle, snap.Phase)

	resp, body = env.call(t, tok, http.MethodPut, "/api/v1/session/question", questionRequest{Text: "Hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello", decodeSnapshot(t, body).State.CurrentQuestion)

	resp, body = env.call(t, tok, http.MethodPost, "/api/v1/session/submit", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	snap = decodeSnapshot(t, body)
	assert.Equal(t, model.PhaseAwaitingReply, snap.Phase)
	assert.Equal(t, []model.ChatSnippet{model.UserSnippet("Hello")}, snap.State.Chat)
	assert.Empty(t, snap.State.CurrentQuestion)

	text := "again"
	resp, body = env.call(t, tok, http.MethodPost, "/api/v1/session/submit", submitRequest{Text: &text})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "request_in_flight", decodeError(t, body).Code)

	resp, _ = env.call(t, tok, http.MethodPost, "/api/v1/session/reset", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(ai.release)
	require.Eventually(t, func() bool {
		_, body := env.call(t, tok, http.MethodGet, "/api/v1/session/", nil)
		s := decodeSnapshot(t, body)
		return s.Phase == model.PhaseIdle && len(s.State.Chat) == 2
	}, 2*time.Second, 10*time.Millisecond)

	_, body = env.call(t, tok, http.MethodGet, "/api/v1/session/", nil)
	snap = decodeSnapshot(t, body)
	assert.Equal(t, []model.ChatSnippet{
		model.UserSnippet("Hello"),
		model.AssistantSnippet("Hi there"),
	}, snap.State.Chat)
	assert.Nil(t, snap.Error)

	resp, body = env.call(t, tok, http.MethodPost, "/api/v1/session/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeSnapshot(t, body).State.Chat)
}

func TestAPISubmitBlankIsBadRequest(t *testing.T) {
	env := newTestEnv(t, newGateAI())
	tok, _ := env.bearer(t)

	text := "   "
	resp, body := env.call(t, tok, http.MethodPost, "/api/v1/session/submit", submitRequest{Text: &text})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := decodeError(t, body)
	assert.Equal(t, "invalid_argument", e.Code)
	assert.Equal(t, "Type a question first.", e.Message)
}

func TestAPIRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t, newGateAI())
	tok, _ := env.bearer(t)

	resp, body := env.call(t, tok, http.MethodPut, "/api/v1/session/question", map[string]string{"question": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", decodeError(t, body).Code)
}

func TestAPISaveKeyPersistsUnderClientNamespace(t *testing.T) {
	env := newTestEnv(t, newGateAI())
	tok, id := env.bearer(t)

	resp, _ := env.call(t, tok, http.MethodPut, "/api/v1/session/api-key", apiKeyRequest{APIKey: "sk-test"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := env.mem.Get(context.Background(), kv.ClientPrefix(id)+usecase.KeyAPIKey)
	assert.Error(t, err, "editing alone must not persist")
	assert.Nil(t, raw)

	resp, _ = env.call(t, tok, http.MethodPost, "/api/v1/session/api-key/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err = env.mem.Get(context.Background(), kv.ClientPrefix(id)+usecase.KeyAPIKey)
	require.NoError(t, err)
	assert.JSONEq(t, `"sk-test"`, string(raw))
}

func TestFormPostsRedirectToPage(t *testing.T) {
	ai := newGateAI()
	env := newTestEnv(t, ai)
	c := browser(t)

	resp, err := c.Get(env.srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = c.PostForm(env.srv.URL+"/api-key", url.Values{"api_key": {"sk-form"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, err = c.PostForm(env.srv.URL+"/ask", url.Values{"question": {"Hello"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, err = c.PostForm(env.srv.URL+"/reset", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "/?error=request_in_flight", resp.Header.Get("Location"))

	resp, err = c.Get(env.srv.URL + "/?error=request_in_flight")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	page := string(body)
	assert.Contains(t, page, "A reply is still on its way.")
	assert.Contains(t, page, "Waiting for a reply...")
	assert.Contains(t, page, `value="sk-form"`)
	assert.Contains(t, page, "Hello")

	close(ai.release)
	require.Eventually(t, func() bool {
		resp, err := c.Get(env.srv.URL + "/")
		if err != nil {
			return false
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return strings.Contains(string(body), "Hi there")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBlankFormQuestionShowsBanner(t *testing.T) {
	env := newTestEnv(t, newGateAI())
	c := browser(t)

	resp, err := c.PostForm(env.srv.URL+"/ask", url.Values{"question": {""}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "/?error=invalid_argument", resp.Header.Get("Location"))
}

func TestWebsocketStreamsSnapshots(t *testing.T) {
	env := newTestEnv(t, newGateAI())
	tok, _ := env.bearer(t)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/v1/session/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + tok}})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first model.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, model.PhaseIdle, first.Phase)

	r, _ := env.call(t, tok, http.MethodPut, "/api/v1/session/question", questionRequest{Text: "typed"})
	require.Equal(t, http.StatusOK, r.StatusCode)

	var next model.Snapshot
	require.NoError(t, conn.ReadJSON(&next))
	assert.Greater(t, next.Version, first.Version)
	assert.Equal(t, "typed", next.State.CurrentQuestion)
}

func TestWebsocketClosedWhenSessionEnds(t *testing.T) {
	env := newTestEnv(t, newGateAI())
	tok, clientID := env.bearer(t)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/v1/session/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + tok}})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first model.Snapshot
	require.NoError(t, conn.ReadJSON(&first))

	// a watched session is not idle, however long ago it was last edited
	assert.Equal(t, 0, env.reg.Reap(time.Now().Add(24*time.Hour), time.Minute))
	_, ok := env.reg.Lookup(clientID)
	require.True(t, ok)

	env.reg.CloseAll()

	var last model.Snapshot
	for !last.Closed {
		require.NoError(t, conn.ReadJSON(&last))
	}

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}

func TestAPITranscriptReadsStoredRecord(t *testing.T) {
	ai := newGateAI()
	env := newTestEnv(t, ai)
	tok, _ := env.bearer(t)

	resp, body := env.call(t, tok, http.MethodGet, "/api/v1/session/transcript", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, body).Code)

	text := "Hello"
	resp, _ = env.call(t, tok, http.MethodPost, "/api/v1/session/submit", submitRequest{Text: &text})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// nothing is stored until the reply lands
	resp, _ = env.call(t, tok, http.MethodGet, "/api/v1/session/transcript", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	close(ai.release)
	require.Eventually(t, func() bool {
		_, body := env.call(t, tok, http.MethodGet, "/api/v1/session/", nil)
		return decodeSnapshot(t, body).Phase == model.PhaseIdle
	}, 2*time.Second, 10*time.Millisecond)

	resp, body = env.call(t, tok, http.MethodGet, "/api/v1/session/transcript", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got transcriptResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, []model.ChatSnippet{
		model.UserSnippet("Hello"),
		model.AssistantSnippet("Hi there"),
	}, got.Chat)
}

func TestWebsocketRequiresClient(t *testing.T) {
	env := newTestEnv(t, newGateAI())
	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/v1/session/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
