// Package relay orchestrates one chat turn: admission control, rolling
// memory, prompt composition, the response cache, and the retried upstream
// call. Each request runs the cycle once, synchronously; there are no
// cross-request ordering guarantees.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/solenne/hearth/internal/observability"
	"github.com/solenne/hearth/internal/tracing"
	"github.com/solenne/hearth/pkg/cache"
	"github.com/solenne/hearth/pkg/memory"
	"github.com/solenne/hearth/pkg/prompt"
	"github.com/solenne/hearth/pkg/quotes"
	"github.com/solenne/hearth/pkg/ratelimit"
	"github.com/solenne/hearth/pkg/upstream"
)

// Sentinel errors surfaced to the transport layer.
var (
	// ErrRateLimited means admission control rejected the request. No
	// relay state was touched.
	ErrRateLimited = errors.New("relay: too many messages")

	// ErrInvalidRequest means the message payload was absent or
	// malformed. No relay state was touched.
	ErrInvalidRequest = errors.New("relay: invalid request")
)

// DefaultMaxPromptQuotes bounds the merged quote set per prompt.
const DefaultMaxPromptQuotes = 4

// DefaultSessionID is used when the caller supplies none.
const DefaultSessionID = "default"

// Request is one incoming chat turn.
type Request struct {
	SessionID    string
	Messages     []upstream.Message
	Quotes       []quotes.Quote
	Persona      prompt.Persona
	ChildName    string
	CustomPrompt string

	// ClientAddr is the admission-control fallback key when no session id
	// is supplied.
	ClientAddr string
}

// ChatLog receives completed exchanges fire-and-forget. Implementations
// must never let a failure reach the caller.
type ChatLog interface {
	Notify(ctx context.Context, sessionID, userText, assistantText string)
}

// Config wires a Relay. Limiter, Memory, Corpus, Cache, Prompts, and
// Invoker are required; ChatLog is optional.
type Config struct {
	Limiter *ratelimit.Limiter
	Memory  *memory.Store
	Corpus  *quotes.Corpus
	Cache   *cache.Cache
	Prompts *prompt.Builder
	Invoker *upstream.Invoker
	ChatLog ChatLog
	Logger  zerolog.Logger

	Model       string
	Temperature float64
	MaxTokens   int

	// SampleCount quotes are drawn per prompt; the merged set (caller
	// quotes first) is truncated to MaxPromptQuotes.
	SampleCount     int
	MaxPromptQuotes int
}

// Relay runs the request/response cycle. All mutable state lives in the
// injected stores; the Relay itself is stateless and safe for concurrent
// use.
type Relay struct {
	cfg Config
}

// New returns a Relay over cfg.
func New(cfg Config) *Relay {
	if cfg.SampleCount <= 0 {
		cfg.SampleCount = quotes.DefaultSampleCount
	}
	if cfg.MaxPromptQuotes <= 0 {
		cfg.MaxPromptQuotes = DefaultMaxPromptQuotes
	}
	return &Relay{cfg: cfg}
}

// Handle runs one chat turn and returns the reply text.
//
// Errors are ErrRateLimited, ErrInvalidRequest, or an *upstream.Error once
// the retry budget is exhausted. Rejections happen before any state
// mutation; memory and cache are only written after a successful upstream
// call.
func (r *Relay) Handle(ctx context.Context, req Request) (string, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(ctx, "hearth.relay", "relay.handle",
		attribute.String("session_id", sessionID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.cfg.Logger)

	if len(req.Messages) == 0 {
		observability.RecordChatRequest("invalid")
		span.SetStatus(codes.Error, "empty message payload")
		return "", fmt.Errorf("%w: missing message payload", ErrInvalidRequest)
	}

	if !r.cfg.Limiter.Allow(admissionKey(req)) {
		observability.RecordChatRequest("rate_limited")
		observability.RecordRateLimited()
		span.SetStatus(codes.Error, "rate limited")
		logger.Debug().Msg("Request rejected by rate limiter")
		return "", ErrRateLimited
	}

	// The fingerprint covers the raw incoming tail, before system-role
	// stripping, so identical payloads hash identically.
	recent := req.Messages
	if len(recent) > prompt.RecentWindow {
		recent = recent[len(recent)-prompt.RecentWindow:]
	}
	fingerprint, err := cache.Fingerprint(sessionID, recent)
	if err != nil {
		observability.RecordChatRequest("invalid")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	history := r.cfg.Memory.History(sessionID)
	quoteSet := r.cfg.Corpus.Merge(req.Quotes, r.cfg.SampleCount, r.cfg.MaxPromptQuotes)
	systemPrompt := r.cfg.Prompts.SystemPrompt(req.Persona, req.ChildName, req.CustomPrompt)
	messages := prompt.Compose(systemPrompt, quoteSet, history, req.Messages)

	// The quote sample is not part of the fingerprint, so a hit may carry
	// flavor text from an earlier sample. Observed behavior, kept.
	if reply, ok := r.cfg.Cache.Get(fingerprint); ok {
		observability.RecordChatRequest("cache_hit")
		logger.Debug().Msg("Response served from cache")
		return reply, nil
	}

	resp, err := r.cfg.Invoker.Invoke(ctx, upstream.Request{
		Model:       r.cfg.Model,
		Messages:    messages,
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		observability.RecordChatRequest("upstream_failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("Upstream call failed")
		return "", err
	}

	if lastUser, ok := lastUserMessage(req.Messages); ok {
		r.cfg.Memory.Append(sessionID,
			memory.Turn{Role: memory.RoleUser, Content: lastUser.Content},
			memory.Turn{Role: memory.RoleAssistant, Content: resp.Content},
		)
		if r.cfg.ChatLog != nil {
			// Fire and forget; the chat response never waits on the
			// durable log.
			go r.cfg.ChatLog.Notify(context.WithoutCancel(ctx), sessionID, lastUser.Content, resp.Content)
		}
	}

	r.cfg.Cache.Put(fingerprint, resp.Content)
	observability.RecordChatRequest("ok")

	if resp.Usage != nil {
		logger.Debug().
			Int("prompt_tokens", resp.Usage.PromptTokens).
			Int("completion_tokens", resp.Usage.CompletionTokens).
			Msg("Chat turn completed")
	}
	return resp.Content, nil
}

func admissionKey(req Request) string {
	if req.SessionID != "" {
		return req.SessionID
	}
	if req.ClientAddr != "" {
		return req.ClientAddr
	}
	return "global"
}

func lastUserMessage(msgs []upstream.Message) (upstream.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == upstream.RoleUser {
			return msgs[i], true
		}
	}
	return upstream.Message{}, false
}
