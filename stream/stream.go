// Package stream defines the event protocol for incremental answer
// delivery and the word-chunk fallback for answers produced whole.
package stream

import (
	"regexp"

	"github.com/dzinemon/rag-app/schema"
)

// Kind discriminates stream events. Consumers must treat "error" as
// terminal.
type Kind string

const (
	KindStart    Kind = "start"
	KindChunk    Kind = "chunk"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// Event is one frame of the answer stream.
type Event struct {
	Kind           Kind               `json:"type"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Content        string             `json:"content,omitempty"`
	Sources        []schema.Citation  `json:"sources,omitempty"`
	Usage          *schema.TokenUsage `json:"usage,omitempty"`
	Messages       []schema.Turn      `json:"messages,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// Start opens a stream, echoing the conversation id.
func Start(conversationID string) Event {
	return Event{Kind: KindStart, ConversationID: conversationID}
}

// Chunk carries one answer fragment.
func Chunk(content string) Event {
	return Event{Kind: KindChunk, Content: content}
}

// Complete closes a successful stream with citations, usage and the final
// conversation transcript.
func Complete(resp *schema.ChatResponse, messages []schema.Turn) Event {
	usage := resp.Usage
	return Event{
		Kind:           KindComplete,
		ConversationID: resp.ConversationID,
		Sources:        resp.Sources,
		Usage:          &usage,
		Messages:       messages,
	}
}

// Error closes the stream with a user-safe message.
func Error(message string) Event {
	return Event{Kind: KindError, Error: message}
}

var wordRe = regexp.MustCompile(`\s*\S+\s*`)

// WordChunks re-streams a fully formed answer word by word. Used when the
// generator produced the answer in one piece. Each chunk carries the
// whitespace that follows its word, so concatenating the chunks
// reproduces the original text, newlines included.
func WordChunks(text string, emit func(chunk string) error) error {
	for _, w := range wordRe.FindAllString(text, -1) {
		if err := emit(w); err != nil {
			return err
		}
	}
	return nil
}
