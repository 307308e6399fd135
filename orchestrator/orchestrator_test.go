package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzinemon/rag-app/errs"
	"github.com/dzinemon/rag-app/generate"
	"github.com/dzinemon/rag-app/memory"
	"github.com/dzinemon/rag-app/router"
	"github.com/dzinemon/rag-app/schema"
	"github.com/dzinemon/rag-app/stream"
)

// fakeGenerator answers deterministically and records the history it was
// handed on each call.
type fakeGenerator struct {
	name      string
	answer    func(question string) string
	err       error
	mu        sync.Mutex
	histories [][]schema.Turn
}

func (f *fakeGenerator) Name() string { return f.name }

func (f *fakeGenerator) Generate(_ context.Context, question string, history []schema.Turn) (*generate.Result, error) {
	f.mu.Lock()
	f.histories = append(f.histories, history)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	answer := "answer to: " + question
	if f.answer != nil {
		answer = f.answer(question)
	}
	return &generate.Result{
		Answer:  answer,
		Sources: []schema.Citation{{DocumentID: "d1", DocumentTitle: "Doc", Snippet: "snip", Score: 0.7}},
		Usage:   schema.TokenUsage{TotalTokens: 7},
	}, nil
}

func (f *fakeGenerator) lastHistory() []schema.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.histories) == 0 {
		return nil
	}
	return f.histories[len(f.histories)-1]
}

func newTestOrchestrator(rag, company generate.Generator) *Orchestrator {
	if rag == nil {
		rag = &fakeGenerator{name: "rag"}
	}
	if company == nil {
		company = &fakeGenerator{name: "company_info"}
	}
	registry := memory.NewRegistry(100, nil)
	return New(registry, router.New("Acme Corp"), company, rag, 4000, nil)
}

func TestProcessValidation(t *testing.T) {
	o := newTestOrchestrator(nil, nil)

	_, err := o.Process(context.Background(), Request{Message: "   "})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = o.Process(context.Background(), Request{Message: strings.Repeat("x", 4001)})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestProcessCommitsFullTurn(t *testing.T) {
	rag := &fakeGenerator{name: "rag"}
	o := newTestOrchestrator(rag, nil)

	resp, err := o.Process(context.Background(), Request{Message: "What is a widget?"})
	require.NoError(t, err)

	assert.Equal(t, "answer to: What is a widget?", resp.Answer)
	assert.Equal(t, "rag", resp.Generator)
	assert.NotEmpty(t, resp.ConversationID)
	require.Len(t, resp.Sources, 1)

	// Second request in the same conversation sees the first exchange.
	resp2, err := o.Process(context.Background(), Request{
		ConversationID: resp.ConversationID,
		Message:        "And how big is it?",
	})
	require.NoError(t, err)
	assert.Equal(t, resp.ConversationID, resp2.ConversationID)

	history := rag.lastHistory()
	require.Len(t, history, 2)
	assert.Equal(t, schema.RoleUser, history[0].Role)
	assert.Equal(t, "What is a widget?", history[0].Content)
	assert.Equal(t, schema.RoleAssistant, history[1].Role)
}

func TestProcessConversationContinuity(t *testing.T) {
	// The generator echoes the name if it appears anywhere in history,
	// standing in for a model that reads context.
	rag := &fakeGenerator{name: "rag"}
	rag.answer = func(question string) string {
		if strings.Contains(question, "my name") {
			for _, turn := range rag.lastHistory() {
				if strings.Contains(turn.Content, "Alex") {
					return "Your name is Alex."
				}
			}
			return "I don't know your name."
		}
		return "Nice to meet you."
	}
	o := newTestOrchestrator(rag, nil)

	first, err := o.Process(context.Background(), Request{Message: "My name is Alex."})
	require.NoError(t, err)

	second, err := o.Process(context.Background(), Request{
		ConversationID: first.ConversationID,
		Message:        "What is my name?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Your name is Alex.", second.Answer)
}

func TestProcessRoutesCompanyQuestions(t *testing.T) {
	rag := &fakeGenerator{name: "rag"}
	company := &fakeGenerator{name: "company_info"}
	o := newTestOrchestrator(rag, company)

	resp, err := o.Process(context.Background(), Request{Message: "How do I contact you?"})
	require.NoError(t, err)
	assert.Equal(t, "company_info", resp.Generator)
	assert.Empty(t, rag.histories)

	resp, err = o.Process(context.Background(), Request{Message: "What is a widget?"})
	require.NoError(t, err)
	assert.Equal(t, "rag", resp.Generator)
}

func TestProcessDegradesOnRetrievalFailure(t *testing.T) {
	rag := &fakeGenerator{name: "rag", err: errs.New(errs.KindRetrieval, "index down")}
	o := newTestOrchestrator(rag, nil)

	resp, err := o.Process(context.Background(), Request{Message: "What is a widget?"})
	require.NoError(t, err)

	assert.Contains(t, resp.Answer, "knowledge base")
	assert.Empty(t, resp.Sources)

	// The failed exchange must not be committed.
	_, err = o.Process(context.Background(), Request{
		ConversationID: resp.ConversationID,
		Message:        "retry please",
	})
	require.NoError(t, err)
	assert.Empty(t, rag.lastHistory())
}

func TestProcessPropagatesOtherFailures(t *testing.T) {
	rag := &fakeGenerator{name: "rag", err: errs.New(errs.KindAuth, "bad key")}
	o := newTestOrchestrator(rag, nil)

	_, err := o.Process(context.Background(), Request{Message: "What is a widget?"})
	require.Error(t, err)
	assert.Equal(t, errs.KindAuth, errs.KindOf(err))
}

func TestProcessReconcilesCallerHistory(t *testing.T) {
	rag := &fakeGenerator{name: "rag"}
	o := newTestOrchestrator(rag, nil)

	_, err := o.Process(context.Background(), Request{
		Message: "next question",
		History: []schema.Turn{
			{Role: schema.RoleUser, Content: "first"},
			{Role: schema.RoleUser, Content: "second"}, // consecutive user turns
			{Role: schema.RoleAssistant, Content: "reply"},
		},
	})
	require.NoError(t, err)

	history := rag.lastHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].Content)
	assert.Equal(t, "reply", history[1].Content)
}

func TestProcessConcurrentConversations(t *testing.T) {
	o := newTestOrchestrator(nil, nil)

	const n = 32
	var wg sync.WaitGroup
	responses := make([]*schema.ChatResponse, n)
	errsOut := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], errsOut[i] = o.Process(context.Background(), Request{
				Message: fmt.Sprintf("question %d", i),
			})
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errsOut[i])
		assert.Equal(t, fmt.Sprintf("answer to: question %d", i), responses[i].Answer)
		assert.False(t, seen[responses[i].ConversationID], "conversation ids must be distinct")
		seen[responses[i].ConversationID] = true
	}
}

func TestClear(t *testing.T) {
	o := newTestOrchestrator(nil, nil)

	resp, err := o.Process(context.Background(), Request{Message: "hello there"})
	require.NoError(t, err)

	assert.True(t, o.Clear(resp.ConversationID))
	assert.False(t, o.Clear(resp.ConversationID))
	assert.False(t, o.Clear("never-existed"))
}

func TestProcessStreamOrder(t *testing.T) {
	o := newTestOrchestrator(&fakeGenerator{name: "rag"}, nil)

	var events []stream.Event
	err := o.ProcessStream(context.Background(), Request{Message: "What is a widget?"}, func(e stream.Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, stream.KindStart, events[0].Kind)
	assert.NotEmpty(t, events[0].ConversationID)

	var rebuilt strings.Builder
	for _, e := range events[1 : len(events)-1] {
		require.Equal(t, stream.KindChunk, e.Kind)
		rebuilt.WriteString(e.Content)
	}
	assert.Equal(t, "answer to: What is a widget?", rebuilt.String())

	final := events[len(events)-1]
	assert.Equal(t, stream.KindComplete, final.Kind)
	require.Len(t, final.Messages, 2)
	assert.Equal(t, schema.RoleAssistant, final.Messages[1].Role)
	require.NotNil(t, final.Usage)
}

// streamingGenerator delivers its answer as raw deltas, optionally
// failing partway through.
type streamingGenerator struct {
	fakeGenerator
	deltas   []string
	failWith error
}

func (s *streamingGenerator) GenerateStream(ctx context.Context, question string, history []schema.Turn, emit func(string) error) (*generate.Result, error) {
	var b strings.Builder
	for _, d := range s.deltas {
		if err := emit(d); err != nil {
			return nil, err
		}
		b.WriteString(d)
	}
	if s.failWith != nil {
		return nil, s.failWith
	}
	return &generate.Result{Answer: b.String()}, nil
}

func TestProcessStreamNativeChunksMatchTranscript(t *testing.T) {
	// Deltas that word-chunking would re-split differently; the committed
	// assistant turn must equal their exact concatenation.
	gen := &streamingGenerator{
		fakeGenerator: fakeGenerator{name: "rag"},
		deltas:        []string{"##Sum", "mary\n-one", "\n-two"},
	}
	o := newTestOrchestrator(gen, nil)

	var events []stream.Event
	err := o.ProcessStream(context.Background(), Request{Message: "What is a widget?"}, func(e stream.Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)

	var rebuilt strings.Builder
	for _, e := range events {
		if e.Kind == stream.KindChunk {
			rebuilt.WriteString(e.Content)
		}
	}
	assert.Equal(t, "##Summary\n-one\n-two", rebuilt.String())

	final := events[len(events)-1]
	require.Equal(t, stream.KindComplete, final.Kind)
	require.Len(t, final.Messages, 2)
	assert.Equal(t, rebuilt.String(), final.Messages[1].Content)
}

func TestProcessStreamMidStreamFailureIsTerminalError(t *testing.T) {
	// A retrieval-kind failure after deltas went out must not append safe
	// answer chunks to the partial text; the consumer gets a terminal
	// error and discards what it accumulated.
	gen := &streamingGenerator{
		fakeGenerator: fakeGenerator{name: "rag"},
		deltas:        []string{"partial "},
		failWith:      errs.New(errs.KindRetrieval, "index down"),
	}
	o := newTestOrchestrator(gen, nil)

	var events []stream.Event
	err := o.ProcessStream(context.Background(), Request{Message: "What is a widget?"}, func(e stream.Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)

	final := events[len(events)-1]
	assert.Equal(t, stream.KindError, final.Kind)
	for _, e := range events {
		assert.NotEqual(t, stream.KindComplete, e.Kind)
	}
}

func TestProcessStreamDegradesBeforeFirstDelta(t *testing.T) {
	// Retrieval fails before anything streamed: the safe answer arrives
	// as chunks plus a complete event, same as the synchronous path.
	gen := &streamingGenerator{
		fakeGenerator: fakeGenerator{name: "rag"},
		failWith:      errs.New(errs.KindRetrieval, "index down"),
	}
	o := newTestOrchestrator(gen, nil)

	var events []stream.Event
	err := o.ProcessStream(context.Background(), Request{Message: "What is a widget?"}, func(e stream.Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)

	final := events[len(events)-1]
	require.Equal(t, stream.KindComplete, final.Kind)

	var rebuilt strings.Builder
	for _, e := range events {
		if e.Kind == stream.KindChunk {
			rebuilt.WriteString(e.Content)
		}
	}
	assert.Contains(t, rebuilt.String(), "knowledge base")
}

func TestProcessStreamErrorEventTerminal(t *testing.T) {
	rag := &fakeGenerator{name: "rag", err: errs.New(errs.KindRateLimit, "throttled")}
	o := newTestOrchestrator(rag, nil)

	var events []stream.Event
	err := o.ProcessStream(context.Background(), Request{Message: "What is a widget?"}, func(e stream.Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)

	final := events[len(events)-1]
	assert.Equal(t, stream.KindError, final.Kind)
	assert.NotEmpty(t, final.Error)
}

func TestProcessStreamValidationBeforeEvents(t *testing.T) {
	o := newTestOrchestrator(nil, nil)

	calls := 0
	err := o.ProcessStream(context.Background(), Request{Message: ""}, func(stream.Event) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Zero(t, calls)
}
