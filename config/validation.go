package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. [%s] %s\n", i+1, err.Field, err.Message))
	}
	return b.String()
}

// Validate validates the complete configuration.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.LLM.APIKey == "" {
		errs = append(errs, ValidationError{Field: "llm.api_key", Message: "llm api key is required (or set OPENAI_API_KEY)"})
	}
	if c.LLM.Model == "" {
		errs = append(errs, ValidationError{Field: "llm.model", Message: "llm model is required"})
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, ValidationError{Field: "llm.temperature", Message: "temperature must be in [0, 2]"})
	}

	if c.Embedding.APIKey == "" {
		errs = append(errs, ValidationError{Field: "embedding.api_key", Message: "embedding api key is required (or set OPENAI_API_KEY)"})
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, ValidationError{Field: "embedding.dimensions", Message: "embedding dimensions must be positive"})
	}

	if c.VectorDB.Host == "" {
		errs = append(errs, ValidationError{Field: "vectordb.host", Message: "vectordb host is required"})
	}
	if c.VectorDB.Port <= 0 || c.VectorDB.Port > 65535 {
		errs = append(errs, ValidationError{Field: "vectordb.port", Message: "vectordb port must be in (0, 65535]"})
	}

	if c.ChunkStore.DSN == "" {
		errs = append(errs, ValidationError{Field: "chunkstore.dsn", Message: "chunk store dsn is required"})
	}

	if c.Company.Name == "" {
		errs = append(errs, ValidationError{Field: "company.name", Message: "company name is required"})
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 20 {
		errs = append(errs, ValidationError{Field: "retrieval.top_k", Message: "top_k must be in [1, 20]"})
	}
	if th := c.Retrieval.Threshold; th != nil && (*th < 0 || *th > 1) {
		errs = append(errs, ValidationError{Field: "retrieval.threshold", Message: "threshold must be in [0, 1]"})
	}

	if c.Chat.MaxConversations < 1 {
		errs = append(errs, ValidationError{Field: "chat.max_conversations", Message: "max_conversations must be positive"})
	}
	if c.Chat.MaxTurns < 1 {
		errs = append(errs, ValidationError{Field: "chat.max_turns", Message: "max_turns must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
