// Package llm wraps the chat-completion model behind a small provider
// interface so generators stay testable.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"

	"github.com/dzinemon/rag-app/config"
	"github.com/dzinemon/rag-app/errs"
	"github.com/dzinemon/rag-app/metrics"
	"github.com/dzinemon/rag-app/schema"
)

// Message is one chat message to send to the model.
type Message struct {
	Role    schema.Role
	Content string
}

// System builds a system message.
func System(content string) Message {
	return Message{Role: schema.RoleSystem, Content: content}
}

// User builds a user message.
func User(content string) Message {
	return Message{Role: schema.RoleUser, Content: content}
}

// Assistant builds an assistant message.
func Assistant(content string) Message {
	return Message{Role: schema.RoleAssistant, Content: content}
}

// Completion is the model's answer plus token accounting.
type Completion struct {
	Content string
	Usage   schema.TokenUsage
}

// Provider produces chat completions. Stream delivers deltas through emit
// as they arrive and still returns the accumulated completion.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (*Completion, error)
	Stream(ctx context.Context, messages []Message, emit func(delta string) error) (*Completion, error)
}

// OpenAIProvider talks to an OpenAI-compatible chat completion endpoint.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewOpenAIProvider builds a provider from config.
func NewOpenAIProvider(cfg config.LLMConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	temperature := 0.5
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout(),
		logger:      logger,
	}
}

func (p *OpenAIProvider) params(messages []Message) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case schema.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case schema.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: msgs,
	}
	params.Temperature = openai.Float(p.temperature)
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.maxTokens))
	}
	return params
}

// Complete sends one chat completion request. Model calls are never
// retried here; rate limits and transient failures surface tagged so the
// caller decides when to try again.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, p.params(messages))
	metrics.ObserveLLM(start)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errs.New(errs.KindInternal, "model returned no choices")
	}
	return &Completion{
		Content: resp.Choices[0].Message.Content,
		Usage: schema.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Stream sends one streaming chat completion request. Each content delta
// is passed to emit in order; a non-nil error from emit aborts the stream.
func (p *OpenAIProvider) Stream(ctx context.Context, messages []Message, emit func(delta string) error) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(messages))
	defer stream.Close()

	var acc openai.ChatCompletionAccumulator
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if err := emit(delta); err != nil {
					return nil, errs.Wrap(errs.KindInternal, "stream consumer failed", err)
				}
			}
		}
	}
	metrics.ObserveLLM(start)
	if err := stream.Err(); err != nil {
		return nil, classify(err)
	}
	if len(acc.Choices) == 0 {
		return nil, errs.New(errs.KindInternal, "model returned no choices")
	}
	return &Completion{
		Content: acc.Choices[0].Message.Content,
		Usage: schema.TokenUsage{
			PromptTokens:     int(acc.Usage.PromptTokens),
			CompletionTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:      int(acc.Usage.TotalTokens),
		},
	}, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return errs.Wrap(errs.KindAuth, "model rejected credentials", err)
		case 429:
			return errs.Wrap(errs.KindRateLimit, "model rate limited", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindNetwork, "model call timed out", err)
	}
	return errs.Wrap(errs.KindNetwork, "model call failed", err)
}
