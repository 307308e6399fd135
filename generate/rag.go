package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/dzinemon/rag-app/llm"
	"github.com/dzinemon/rag-app/schema"
)

const snippetLength = 200

const ragPromptTemplate = `You are a knowledgeable assistant. Answer the question using only the context below. Cite facts from the context rather than inventing them.

Context:
%s

%sAnswer in the same language as the question. Format your answer as clean markdown.`

const noContextNotice = `You are a knowledgeable assistant. No relevant context was found in the knowledge base for this question. Say that you could not find relevant information rather than guessing, and suggest rephrasing the question.

Answer in the same language as the question.`

var comparisonKeywords = []string{"compare", "comparison", "versus", " vs ", " vs.", "difference", "better", "pros and cons", "tradeoff", "trade-off"}

var processKeywords = []string{"how do i", "how to", "steps", "step by step", "process", "guide", "walkthrough", "setup", "set up", "install", "configure"}

// Searcher is the retrieval surface the generator needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]schema.Passage, error)
}

// RAG answers from retrieved knowledge-base passages and cites them.
type RAG struct {
	provider    llm.Provider
	retriever   Searcher
	tokenBudget int
	maxTurns    int
	encoder     *tiktoken.Tiktoken
	logger      *zap.Logger
}

// NewRAG builds the retrieval-augmented generator. The token budget bounds
// how much retrieved text goes into the prompt.
func NewRAG(retriever Searcher, provider llm.Provider, tokenBudget, maxTurns int, logger *zap.Logger) (*RAG, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load token encoding: %w", err)
	}
	if tokenBudget <= 0 {
		tokenBudget = 3000
	}
	return &RAG{
		provider:    provider,
		retriever:   retriever,
		tokenBudget: tokenBudget,
		maxTurns:    maxTurns,
		encoder:     enc,
		logger:      logger,
	}, nil
}

func (g *RAG) Name() string { return "rag" }

// Generate retrieves passages for the question and asks the model to
// answer from them. Retrieval failures propagate to the caller; the
// orchestrator decides how to degrade.
func (g *RAG) Generate(ctx context.Context, question string, history []schema.Turn) (*Result, error) {
	passages, prompt, err := g.prepare(ctx, question)
	if err != nil {
		return nil, err
	}
	completion, err := g.provider.Complete(ctx, toMessages(history, prompt, g.maxTurns, question))
	if err != nil {
		return nil, err
	}
	return &Result{
		Answer:  NormalizeMarkdown(completion.Content),
		Sources: citations(passages),
		Usage:   completion.Usage,
	}, nil
}

// GenerateStream is Generate with token-level delivery. The answer is
// kept exactly as streamed: the recorded turn must match what the client
// already rendered from the deltas, so no normalization happens here.
func (g *RAG) GenerateStream(ctx context.Context, question string, history []schema.Turn, emit func(delta string) error) (*Result, error) {
	passages, prompt, err := g.prepare(ctx, question)
	if err != nil {
		return nil, err
	}
	completion, err := g.provider.Stream(ctx, toMessages(history, prompt, g.maxTurns, question), emit)
	if err != nil {
		return nil, err
	}
	return &Result{
		Answer:  completion.Content,
		Sources: citations(passages),
		Usage:   completion.Usage,
	}, nil
}

func (g *RAG) prepare(ctx context.Context, question string) ([]schema.Passage, string, error) {
	passages, err := g.retriever.Search(ctx, question, 0)
	if err != nil {
		return nil, "", err
	}
	if len(passages) == 0 {
		g.logger.Debug("no passages retrieved", zap.String("question", question))
		return nil, noContextNotice, nil
	}
	return passages, fmt.Sprintf(ragPromptTemplate, g.contextBlock(passages), formattingHints(question)), nil
}

// contextBlock concatenates passages in rank order, stopping once the
// token budget is spent. The top passage is always included whole.
func (g *RAG) contextBlock(passages []schema.Passage) string {
	var b strings.Builder
	spent := 0
	for i, p := range passages {
		section := fmt.Sprintf("[%d] %s\n%s\n", i+1, p.DocumentTitle, p.Text)
		cost := len(g.encoder.Encode(section, nil, nil))
		if i > 0 && spent+cost > g.tokenBudget {
			g.logger.Debug("context budget reached",
				zap.Int("included", i), zap.Int("dropped", len(passages)-i))
			break
		}
		b.WriteString(section)
		b.WriteString("\n")
		spent += cost
	}
	return strings.TrimRight(b.String(), "\n")
}

func formattingHints(question string) string {
	lowered := strings.ToLower(question)
	var hints []string
	for _, kw := range comparisonKeywords {
		if strings.Contains(lowered, kw) {
			hints = append(hints, "When comparing items, present them in a markdown table with one row per item.")
			break
		}
	}
	for _, kw := range processKeywords {
		if strings.Contains(lowered, kw) {
			hints = append(hints, "When describing a procedure, use a numbered list with one step per item.")
			break
		}
	}
	if len(hints) == 0 {
		return ""
	}
	return strings.Join(hints, " ") + "\n\n"
}

func citations(passages []schema.Passage) []schema.Citation {
	if len(passages) == 0 {
		return nil
	}
	out := make([]schema.Citation, len(passages))
	for i, p := range passages {
		out[i] = schema.Citation{
			DocumentID:    p.DocumentID,
			DocumentTitle: p.DocumentTitle,
			Snippet:       truncate(p.Text, snippetLength),
			Score:         p.Score,
		}
	}
	return out
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
