package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/tidwall/gjson"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/ports/adapter"
)

var _ adapter.CompletionClient = (*OpenAISDKAdapter)(nil)

// OpenAISDKAdapter sends the same request through the official SDK. SDK
// retries are disabled so one submission is one provider call.
type OpenAISDKAdapter struct {
	client openai.Client
}

func NewOpenAISDKAdapter(baseURL string, hc *http.Client) *OpenAISDKAdapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	c := openai.NewClient(
		option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"),
		option.WithHTTPClient(hc),
		option.WithMaxRetries(0),
	)
	return &OpenAISDKAdapter{client: c}
}

func toSDKMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (o *OpenAISDKAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (string, error) {
	const op = "openai_sdk.Complete"

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model.String()),
		Messages:    toSDKMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params, option.WithAPIKey(req.APIKey))
	if err != nil {
		return "", classifySDKError(op, err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewCompletionError(op, domain.ErrMalformedResponse, http.StatusOK, fmt.Errorf("no choices"))
	}
	content := gjson.Get(resp.Choices[0].Message.RawJSON(), "content")
	if content.Type != gjson.String {
		return "", domain.NewCompletionError(op, domain.ErrMalformedResponse, http.StatusOK, fmt.Errorf("choices[0].message.content missing or not a string"))
	}
	return content.String(), nil
}

func classifySDKError(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var cause error
		if apiErr.Message != "" {
			cause = errors.New(apiErr.Message)
		}
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.NewCompletionError(op, domain.ErrUnauthorized, apiErr.StatusCode, cause)
		default:
			return domain.NewCompletionError(op, domain.ErrProviderStatus, apiErr.StatusCode, cause)
		}
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewCompletionError(op, domain.ErrNetwork, 0, err)
	}
	// anything else came out of decoding a 2xx body
	return domain.NewCompletionError(op, domain.ErrMalformedResponse, http.StatusOK, err)
}
