package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.CompletionClient = (*OpenAIAdapter)(nil)

const DefaultBaseURL = "https://api.openai.com/v1"

// OpenAIAdapter talks to the Chat Completions endpoint directly over net/http.
// The API key travels with each request; the adapter holds no credentials.
type OpenAIAdapter struct {
	base   string // e.g., https://api.openai.com/v1
	client *http.Client
}

// NewOpenAIAdapter uses http.DefaultClient when client is nil. No timeout is
// imposed here; callers bound the call through ctx.
func NewOpenAIAdapter(baseURL string, client *http.Client) *OpenAIAdapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIAdapter{base: strings.TrimRight(baseURL, "/"), client: client}
}

type requestBody struct {
	Model       string            `json:"model"`
	Messages    []adapter.Message `json:"messages"`
	Temperature float64           `json:"temperature"`
}

// EncodeRequestBody renders the wire body. Role and content are copied
// verbatim; the encoder escapes quotes and control characters.
func EncodeRequestBody(req adapter.CompletionRequest) ([]byte, error) {
	msgs := req.Messages
	if msgs == nil {
		msgs = []adapter.Message{}
	}
	return json.Marshal(requestBody{
		Model:       req.Model.String(),
		Messages:    msgs,
		Temperature: req.Temperature,
	})
}

func (o *OpenAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (string, error) {
	const op = "openai.Complete"

	b, err := EncodeRequestBody(req)
	if err != nil {
		return "", domain.NewCompletionError(op, domain.ErrInvalidArgument, 0, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", domain.NewCompletionError(op, domain.ErrInvalidArgument, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", domain.NewCompletionError(op, domain.ErrNetwork, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewCompletionError(op, domain.ErrNetwork, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	return parseResponse(op, resp.StatusCode, body)
}

// parseResponse maps a status and raw body to the reply or a typed failure.
func parseResponse(op string, status int, body []byte) (string, error) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "", domain.NewCompletionError(op, domain.ErrUnauthorized, status, providerMessage(body))
	case status < 200 || status >= 300:
		return "", domain.NewCompletionError(op, domain.ErrProviderStatus, status, providerMessage(body))
	}

	if !gjson.ValidBytes(body) {
		return "", domain.NewCompletionError(op, domain.ErrMalformedResponse, status, fmt.Errorf("body is not JSON"))
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return "", domain.NewCompletionError(op, domain.ErrMalformedResponse, status, fmt.Errorf("choices[0].message.content missing"))
	}
	if content.Type != gjson.String {
		return "", domain.NewCompletionError(op, domain.ErrMalformedResponse, status, fmt.Errorf("choices[0].message.content is %s, not a string", content.Type))
	}
	return content.String(), nil
}

const maxBodyPreview = 200

// providerMessage pulls error.message out of an error body. Bodies without
// one are quoted, trimmed to maxBodyPreview bytes.
func providerMessage(body []byte) error {
	if gjson.ValidBytes(body) {
		if m := gjson.GetBytes(body, "error.message"); m.Type == gjson.String && m.String() != "" {
			return fmt.Errorf("%s", m.String())
		}
	}
	preview := bytes.TrimSpace(body)
	if len(preview) == 0 {
		return nil
	}
	if len(preview) > maxBodyPreview {
		return fmt.Errorf("body: %q...", preview[:maxBodyPreview])
	}
	return fmt.Errorf("body: %q", preview)
}
