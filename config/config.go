package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the chat core.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	LLM        LLMConfig        `json:"llm" yaml:"llm"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	VectorDB   VectorDBConfig   `json:"vectordb" yaml:"vectordb"`
	ChunkStore ChunkStoreConfig `json:"chunkstore" yaml:"chunkstore"`
	Company    CompanyConfig    `json:"company" yaml:"company"`
	Chat       ChatConfig       `json:"chat" yaml:"chat"`
	Retrieval  RetrievalConfig  `json:"retrieval" yaml:"retrieval"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

// LLMConfig defines configuration for the language model service.
// Temperature is a pointer so an explicit 0 survives defaulting.
type LLMConfig struct {
	APIKey         string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL        string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model          string   `json:"model" yaml:"model"`
	Temperature    *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// Timeout returns the model-call timeout.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return 60 * time.Second
}

// EmbeddingConfig defines configuration for the embedding service.
type EmbeddingConfig struct {
	APIKey         string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model          string `json:"model" yaml:"model"`
	Dimensions     int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// Timeout returns the embed-call timeout.
func (c EmbeddingConfig) Timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return 5 * time.Second
}

// VectorDBConfig defines configuration for the vector index.
type VectorDBConfig struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	Collection     string `json:"collection" yaml:"collection"`
	Username       string `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string `json:"password,omitempty" yaml:"password,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// Address returns the host:port address of the index.
func (c VectorDBConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Timeout returns the index-query timeout.
func (c VectorDBConfig) Timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return 5 * time.Second
}

// ChunkStoreConfig defines configuration for the relational chunk store.
type ChunkStoreConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// CompanyConfig holds the static company facts used by the company-info
// answer path and the intent router.
type CompanyConfig struct {
	Name            string `json:"name" yaml:"name"`
	Industry        string `json:"industry,omitempty" yaml:"industry,omitempty"`
	Contact         string `json:"contact,omitempty" yaml:"contact,omitempty"`
	DescriptionFile string `json:"description_file,omitempty" yaml:"description_file,omitempty"`
}

// ChatConfig bounds conversation state.
type ChatConfig struct {
	MaxConversations int `json:"max_conversations,omitempty" yaml:"max_conversations,omitempty"`
	MaxTurns         int `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`
	MaxMessageLength int `json:"max_message_length,omitempty" yaml:"max_message_length,omitempty"`
}

// RetrievalConfig bounds the retrieval client.
// Threshold is a pointer so an explicit 0 survives defaulting.
type RetrievalConfig struct {
	TopK                 int      `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	Threshold            *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	CacheTTLSeconds      int      `json:"cache_ttl_seconds,omitempty" yaml:"cache_ttl_seconds,omitempty"`
	EmptyCacheTTLSeconds int      `json:"empty_cache_ttl_seconds,omitempty" yaml:"empty_cache_ttl_seconds,omitempty"`
	ContextTokenBudget   int      `json:"context_token_budget,omitempty" yaml:"context_token_budget,omitempty"`
}

// CacheTTL returns the TTL for non-empty cached retrieval results.
func (c RetrievalConfig) CacheTTL() time.Duration {
	if c.CacheTTLSeconds > 0 {
		return time.Duration(c.CacheTTLSeconds) * time.Second
	}
	return 10 * time.Minute
}

// EmptyCacheTTL returns the shorter TTL for cached empty results.
func (c RetrievalConfig) EmptyCacheTTL() time.Duration {
	if c.EmptyCacheTTLSeconds > 0 {
		return time.Duration(c.EmptyCacheTTLSeconds) * time.Second
	}
	return 5 * time.Minute
}

// Load reads, defaults and validates a YAML configuration file. API keys may
// be supplied via OPENAI_API_KEY instead of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = key
		}
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = key
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Temperature == nil {
		t := 0.5
		c.LLM.Temperature = &t
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2048
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.VectorDB.Port == 0 {
		c.VectorDB.Port = 19530
	}
	if c.VectorDB.Collection == "" {
		c.VectorDB.Collection = "chunks"
	}
	if c.Chat.MaxConversations == 0 {
		c.Chat.MaxConversations = 100
	}
	if c.Chat.MaxTurns == 0 {
		c.Chat.MaxTurns = 10
	}
	if c.Chat.MaxMessageLength == 0 {
		c.Chat.MaxMessageLength = 4000
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.Threshold == nil {
		th := 0.01
		c.Retrieval.Threshold = &th
	}
	if c.Retrieval.ContextTokenBudget == 0 {
		c.Retrieval.ContextTokenBudget = 3000
	}
}
