package schema

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Turn is a single message in a conversation. Immutable once created.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SearchMatch is one nearest-neighbor hit returned by the vector index.
type SearchMatch struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Chunk is a resolved row from the relational store: the chunk text plus
// provenance of its parent document.
type Chunk struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	DocumentID     string `json:"document_id"`
	DocumentTitle  string `json:"document_title"`
	DocumentAuthor string `json:"document_author,omitempty"`
}

// Passage is a retrieved chunk joined with its similarity score for one
// query. Produced fresh per query, never persisted.
type Passage struct {
	ChunkID        string   `json:"chunk_id"`
	DocumentID     string   `json:"document_id"`
	DocumentTitle  string   `json:"document_title"`
	DocumentAuthor string   `json:"document_author,omitempty"`
	Text           string   `json:"text"`
	Score          float64  `json:"score"`
	Metadata       Metadata `json:"metadata,omitempty"`
}

// Citation is a source reference attached to a generated answer.
type Citation struct {
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	Snippet       string  `json:"snippet"`
	Score         float64 `json:"score"`
}

// TokenUsage reports token accounting for one model call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage from another model call.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// ChatResponse is the structured result of one processed message.
type ChatResponse struct {
	Answer         string     `json:"answer"`
	ConversationID string     `json:"conversation_id"`
	Sources        []Citation `json:"sources"`
	Generator      string     `json:"generator"`
	Usage          TokenUsage `json:"usage"`
}
