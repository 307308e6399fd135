// Package orchestrator ties routing, generation and conversation state
// into the single entry point the transport layer calls.
package orchestrator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/dzinemon/rag-app/errs"
	"github.com/dzinemon/rag-app/generate"
	"github.com/dzinemon/rag-app/memory"
	"github.com/dzinemon/rag-app/metrics"
	"github.com/dzinemon/rag-app/router"
	"github.com/dzinemon/rag-app/schema"
	"github.com/dzinemon/rag-app/stream"
)

// Request is one inbound chat message.
type Request struct {
	ConversationID string        `json:"conversation_id,omitempty"`
	Message        string        `json:"message"`
	Role           string        `json:"role,omitempty"`
	History        []schema.Turn `json:"history,omitempty"`
}

// Orchestrator runs a request through validate, load, route, generate and
// commit. Stateless apart from the registry.
type Orchestrator struct {
	registry  *memory.Registry
	router    *router.Router
	company   generate.Generator
	rag       generate.Generator
	maxLength int
	logger    *zap.Logger
}

// New wires the orchestrator.
func New(registry *memory.Registry, rt *router.Router, company, rag generate.Generator, maxMessageLength int, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxMessageLength <= 0 {
		maxMessageLength = 4000
	}
	return &Orchestrator{
		registry:  registry,
		router:    rt,
		company:   company,
		rag:       rag,
		maxLength: maxMessageLength,
		logger:    logger,
	}
}

// Process answers one message synchronously. The user and assistant turns
// are committed together after generation succeeds; a failed or degraded
// request leaves the conversation untouched.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*schema.ChatResponse, error) {
	message, err := o.validate(req)
	if err != nil {
		return nil, err
	}

	sess := o.registry.Acquire(req.ConversationID, memory.ParticipantRole(req.Role))
	defer sess.Release()
	if len(req.History) > 0 {
		sess.Reconcile(req.History)
	}
	history := sess.History()

	gen := o.pick(message)
	result, err := gen.Generate(ctx, message, history)
	if err != nil {
		if degraded := o.degrade(sess.ID(), gen.Name(), err); degraded != nil {
			return degraded, nil
		}
		return nil, err
	}

	o.commit(sess, history, message, result.Answer)
	return &schema.ChatResponse{
		Answer:         result.Answer,
		ConversationID: sess.ID(),
		Sources:        result.Sources,
		Generator:      gen.Name(),
		Usage:          result.Usage,
	}, nil
}

// ProcessStream answers one message as a stream of events. Validation
// failures are returned before any event is emitted so the transport can
// reject the request outright; after the start event every outcome is
// delivered in-band, with an error event terminal.
func (o *Orchestrator) ProcessStream(ctx context.Context, req Request, emit func(stream.Event) error) error {
	message, err := o.validate(req)
	if err != nil {
		return err
	}

	sess := o.registry.Acquire(req.ConversationID, memory.ParticipantRole(req.Role))
	defer sess.Release()
	if len(req.History) > 0 {
		sess.Reconcile(req.History)
	}
	history := sess.History()

	gen := o.pick(message)
	if err := emit(stream.Start(sess.ID())); err != nil {
		return err
	}

	var streamed bool
	result, genErr := o.generateStreaming(ctx, gen, message, history, func(e stream.Event) error {
		if e.Kind == stream.KindChunk {
			streamed = true
		}
		return emit(e)
	})
	if genErr != nil {
		degraded := o.degrade(sess.ID(), gen.Name(), genErr)
		if degraded == nil || streamed {
			// Deltas already rendered by the client cannot be retracted;
			// a terminal error tells the consumer to discard them.
			return emit(stream.Error(errs.UserMessage(genErr)))
		}
		if err := stream.WordChunks(degraded.Answer, func(c string) error { return emit(stream.Chunk(c)) }); err != nil {
			return err
		}
		return emit(stream.Complete(degraded, history))
	}

	turns := o.commit(sess, history, message, result.Answer)
	resp := &schema.ChatResponse{
		Answer:         result.Answer,
		ConversationID: sess.ID(),
		Sources:        result.Sources,
		Generator:      gen.Name(),
		Usage:          result.Usage,
	}
	return emit(stream.Complete(resp, turns))
}

// Clear drops a conversation. Reports whether one existed.
func (o *Orchestrator) Clear(conversationID string) bool {
	return o.registry.Clear(conversationID)
}

func (o *Orchestrator) validate(req Request) (string, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", errs.New(errs.KindValidation, "message must not be empty")
	}
	if len(message) > o.maxLength {
		return "", errs.Newf(errs.KindValidation, "message exceeds %d characters", o.maxLength)
	}
	return message, nil
}

func (o *Orchestrator) pick(message string) generate.Generator {
	decision := o.router.Route(message)
	gen := o.rag
	if decision.Intent == router.IntentCompanyInfo {
		gen = o.company
	}
	metrics.IncGenerator(gen.Name())
	o.logger.Debug("routed message",
		zap.String("intent", string(decision.Intent)),
		zap.Strings("keywords", decision.Keywords))
	return gen
}

// generateStreaming prefers native token streaming and falls back to
// word-chunking a whole answer.
func (o *Orchestrator) generateStreaming(ctx context.Context, gen generate.Generator, message string, history []schema.Turn, emit func(stream.Event) error) (*generate.Result, error) {
	if streamer, ok := gen.(generate.Streamer); ok {
		return streamer.GenerateStream(ctx, message, history, func(delta string) error {
			return emit(stream.Chunk(delta))
		})
	}
	result, err := gen.Generate(ctx, message, history)
	if err != nil {
		return nil, err
	}
	if err := stream.WordChunks(result.Answer, func(c string) error { return emit(stream.Chunk(c)) }); err != nil {
		return nil, err
	}
	return result, nil
}

// degrade turns a retrieval failure into a safe answer instead of an
// error response. The turn is not committed; the question stays open for
// a retry. Other kinds are counted and passed through.
func (o *Orchestrator) degrade(conversationID, generator string, err error) *schema.ChatResponse {
	kind := errs.KindOf(err)
	metrics.IncError(kind.String())
	if kind != errs.KindRetrieval {
		o.logger.Error("generation failed",
			zap.String("conversation_id", conversationID),
			zap.String("generator", generator),
			zap.Error(err))
		return nil
	}
	o.logger.Warn("retrieval unavailable, returning safe answer",
		zap.String("conversation_id", conversationID),
		zap.Error(err))
	return &schema.ChatResponse{
		Answer:         errs.UserMessage(err),
		ConversationID: conversationID,
		Generator:      generator,
	}
}

func (o *Orchestrator) commit(sess *memory.Session, history []schema.Turn, message, answer string) []schema.Turn {
	turns := memory.AppendUser(history, message)
	turns = memory.AppendAssistant(turns, answer)
	sess.Commit(turns)
	return turns
}
