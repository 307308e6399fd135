package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteCompanyName(t *testing.T) {
	r := New("Acme Corp")

	d := r.Route("Tell me about Acme Corp")
	assert.Equal(t, IntentCompanyInfo, d.Intent)
	assert.Contains(t, d.Keywords, "acme corp")
}

func TestRouteKnowledgeBaseFallback(t *testing.T) {
	r := New("Acme Corp")

	for _, q := range []string{
		"How do I rotate a TLS certificate?",
		"What is the difference between RAG and fine-tuning?",
		"",
	} {
		d := r.Route(q)
		assert.Equal(t, IntentKnowledgeBase, d.Intent, "query %q", q)
		assert.Empty(t, d.Keywords)
	}
}

func TestRouteBuiltinKeywords(t *testing.T) {
	r := New("")

	cases := map[string]string{
		"Who are you exactly?":            "who are you",
		"How can I CONTACT support?":      "contact",
		"I'd like to schedule a demo":     "schedule",
		"What's your pricing model like?": "pricing",
	}
	for q, want := range cases {
		d := r.Route(q)
		assert.Equal(t, IntentCompanyInfo, d.Intent, "query %q", q)
		assert.Contains(t, d.Keywords, want)
	}
}

func TestRouteCollectsAllMatches(t *testing.T) {
	r := New("Acme Corp")

	d := r.Route("How do I contact Acme Corp to schedule a call?")
	assert.Equal(t, IntentCompanyInfo, d.Intent)
	assert.Len(t, d.Keywords, 3)
}
