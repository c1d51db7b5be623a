package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"chat-assistant/internal/domain/ports/adapter"
)

// TokenCounter estimates prompt size for metrics only; it never gates a request.
type TokenCounter interface {
	CountPromptTokens(model string, msgs []adapter.Message) int
}

// TiktokenCounter uses the model's BPE encoding and falls back to a
// characters/4 estimate while the encoding loads or when it cannot be loaded.
// Loading may fetch the BPE table over the network, so it runs in the
// background and never under mu.
type TiktokenCounter struct {
	load func(model string) (*tiktoken.Tiktoken, error)

	mu      sync.Mutex
	encs    map[string]*tiktoken.Tiktoken
	bad     map[string]bool
	loading map[string]bool
}

func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{
		load:    tiktoken.EncodingForModel,
		encs:    map[string]*tiktoken.Tiktoken{},
		bad:     map[string]bool{},
		loading: map[string]bool{},
	}
}

// encoding returns the cached encoding, or nil and starts loading it.
func (c *TiktokenCounter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encs[model]; ok {
		return enc
	}
	if c.bad[model] || c.loading[model] {
		return nil
	}
	c.loading[model] = true
	go c.fetch(model)
	return nil
}

func (c *TiktokenCounter) fetch(model string) {
	enc, err := c.load(model)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.loading, model)
	if err != nil {
		c.bad[model] = true
		return
	}
	c.encs[model] = enc
}

func (c *TiktokenCounter) CountPromptTokens(model string, msgs []adapter.Message) int {
	enc := c.encoding(model)
	total := 0
	for _, m := range msgs {
		if enc != nil {
			// role/separator framing costs ~4 tokens per message
			total += 4 + len(enc.Encode(m.Content, nil, nil))
		} else {
			total += EstimateTokens(m.Content)
		}
	}
	return total
}

// EstimateTokens is the length heuristic used when no encoding is available.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}
