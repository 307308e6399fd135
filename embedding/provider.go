// Package embedding wraps the embedding service behind a narrow provider
// interface.
package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/dzinemon/rag-app/config"
	"github.com/dzinemon/rag-app/errs"
)

// Provider produces fixed-length embedding vectors for text.
type Provider interface {
	// Embed returns the embedding vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions declares the provider's output vector length.
	Dimensions() int
}

// OpenAIProvider implements Provider over the OpenAI embeddings API.
type OpenAIProvider struct {
	client     openai.Client
	model      string
	dimensions int
	timeout    time.Duration
}

// NewOpenAIProvider builds a provider from config.
func NewOpenAIProvider(cfg config.EmbeddingConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errs.New(errs.KindAuth, "embedding api key missing")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout(),
	}, nil
}

func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp *openai.CreateEmbeddingResponse
	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			var callErr error
			resp, callErr = p.client.Embeddings.New(callCtx, openai.EmbeddingNewParams{
				Model: openai.EmbeddingModel(p.model),
				Input: openai.EmbeddingNewParamsInputUnion{
					OfArrayOfStrings: texts,
				},
				Dimensions: openai.Int(int64(p.dimensions)),
			})
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, errs.Newf(errs.KindNetwork, "embedding service returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[int(item.Index)] = vec
	}
	return vectors, nil
}

// retryable excludes auth, validation and rate-limit failures from
// retries. A rate-limited call surfaces to the caller, which decides when
// to try again.
func retryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 400, 401, 403, 404, 429:
			return false
		}
	}
	return true
}

// classify maps an upstream failure onto the error taxonomy.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return errs.Wrap(errs.KindAuth, "embedding service rejected credentials", err)
		case 429:
			return errs.Wrap(errs.KindRateLimit, "embedding service rate limited", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindNetwork, "embedding call timed out", err)
	}
	return errs.Wrap(errs.KindNetwork, "embedding call failed", err)
}
