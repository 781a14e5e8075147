// Package upstream talks to the external completion API. A Provider adapts
// one vendor SDK to the relay's message shape; the Invoker wraps a Provider
// with the bounded retry/backoff policy so composition and caching stay
// retry-agnostic.
package upstream

import (
	"context"
	"fmt"
)

// Message roles understood by the completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in the ordered list sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries one completion call. System-role messages may appear at
// the head of Messages; providers route them to the vendor's system channel.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Response is a single best completion. Content is accepted as-is; the
// relay does not validate reply text.
type Response struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage carries the token counts reported by the vendor for one call.
// Nil when the provider does not report usage.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is a single vendor completion API.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must treat every error as transient from the caller's point of view;
// retry classification happens in the Invoker.
type Provider interface {
	// Complete sends the ordered message list and returns the completion.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name for logs and metrics.
	Name() string
}

// NewProvider returns the Provider for a vendor name ("openai" or
// "anthropic").
func NewProvider(vendor, apiKey string) (Provider, error) {
	switch vendor {
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", vendor)
	}
}
