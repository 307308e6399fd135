package generate

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/dzinemon/rag-app/config"
	"github.com/dzinemon/rag-app/llm"
	"github.com/dzinemon/rag-app/schema"
)

const companyPromptTemplate = `You are a helpful assistant for %s. Use the company description below to answer questions about the company, its services, and how to get in touch.

Company description:
%s

Answer in the same language as the question. Format your answer as clean markdown. If the question cannot be answered from the description, say so briefly and offer the contact channel.`

// CompanyInfo answers questions about the company from a static
// description loaded once at construction. No retrieval, no citations.
type CompanyInfo struct {
	provider    llm.Provider
	company     config.CompanyConfig
	description string
	maxTurns    int
	logger      *zap.Logger
}

// NewCompanyInfo loads the company description file and builds the
// generator. A missing file is not fatal: the templated fallback text is
// used as the description.
func NewCompanyInfo(cfg config.CompanyConfig, maxTurns int, provider llm.Provider, logger *zap.Logger) *CompanyInfo {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &CompanyInfo{
		provider: provider,
		company:  cfg,
		maxTurns: maxTurns,
		logger:   logger,
	}
	if cfg.DescriptionFile != "" {
		data, err := os.ReadFile(cfg.DescriptionFile)
		if err != nil {
			logger.Warn("company description file unreadable, using fallback text",
				zap.String("path", cfg.DescriptionFile), zap.Error(err))
		} else {
			g.description = strings.TrimSpace(string(data))
		}
	}
	if g.description == "" {
		g.description = g.fallbackAnswer()
	}
	return g
}

func (g *CompanyInfo) Name() string { return "company_info" }

// Generate asks the model to answer from the static description. A model
// failure degrades to the deterministic template instead of failing the
// request.
func (g *CompanyInfo) Generate(ctx context.Context, question string, history []schema.Turn) (*Result, error) {
	msgs := toMessages(history, g.systemPrompt(), g.maxTurns, question)
	completion, err := g.provider.Complete(ctx, msgs)
	if err != nil {
		g.logger.Warn("company info model call failed, using templated answer", zap.Error(err))
		return &Result{Answer: g.fallbackAnswer()}, nil
	}
	return &Result{
		Answer: NormalizeMarkdown(completion.Content),
		Usage:  completion.Usage,
	}, nil
}

// GenerateStream streams the model answer. On failure the templated
// answer is emitted as a single chunk. The recorded answer stays exactly
// as streamed so the transcript matches what the client rendered.
func (g *CompanyInfo) GenerateStream(ctx context.Context, question string, history []schema.Turn, emit func(delta string) error) (*Result, error) {
	msgs := toMessages(history, g.systemPrompt(), g.maxTurns, question)
	completion, err := g.provider.Stream(ctx, msgs, emit)
	if err != nil {
		g.logger.Warn("company info model stream failed, using templated answer", zap.Error(err))
		answer := g.fallbackAnswer()
		if emitErr := emit(answer); emitErr != nil {
			return nil, emitErr
		}
		return &Result{Answer: answer}, nil
	}
	return &Result{
		Answer: completion.Content,
		Usage:  completion.Usage,
	}, nil
}

func (g *CompanyInfo) systemPrompt() string {
	return fmt.Sprintf(companyPromptTemplate, g.company.Name, g.description)
}

func (g *CompanyInfo) fallbackAnswer() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is a company", g.company.Name)
	if g.company.Industry != "" {
		fmt.Fprintf(&b, " in the %s industry", g.company.Industry)
	}
	b.WriteString(".")
	if g.company.Contact != "" {
		fmt.Fprintf(&b, " You can reach us at %s.", g.company.Contact)
	}
	return b.String()
}
