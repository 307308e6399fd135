// Package generate holds the response generators the orchestrator picks
// between: static company info and retrieval-augmented answers.
package generate

import (
	"context"

	"github.com/dzinemon/rag-app/llm"
	"github.com/dzinemon/rag-app/memory"
	"github.com/dzinemon/rag-app/schema"
)

// Result is a generated answer with its provenance.
type Result struct {
	Answer  string
	Sources []schema.Citation
	Usage   schema.TokenUsage
}

// Generator produces an answer for a question given conversation history.
type Generator interface {
	Name() string
	Generate(ctx context.Context, question string, history []schema.Turn) (*Result, error)
}

// Streamer is implemented by generators that can deliver the answer
// incrementally. The returned result carries the full accumulated answer.
type Streamer interface {
	GenerateStream(ctx context.Context, question string, history []schema.Turn, emit func(delta string) error) (*Result, error)
}

// toMessages converts bounded, alternation-safe history into model messages.
func toMessages(history []schema.Turn, systemPrompt string, maxTurns int, question string) []llm.Message {
	turns := memory.FormatForModel(history, systemPrompt, maxTurns, question)
	msgs := make([]llm.Message, len(turns))
	for i, t := range turns {
		msgs[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	return msgs
}
