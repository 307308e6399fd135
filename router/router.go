// Package router classifies incoming messages by intent so the
// orchestrator can pick a response generator.
package router

import (
	"strings"
)

// Intent is the coarse classification of a user message.
type Intent string

const (
	// IntentCompanyInfo marks questions about the company itself.
	IntentCompanyInfo Intent = "COMPANY_INFO"
	// IntentKnowledgeBase marks everything else; retrieval is the
	// fallback path.
	IntentKnowledgeBase Intent = "KNOWLEDGE_BASE"
)

// Decision is the routing outcome for one message. Computed per request,
// never stored.
type Decision struct {
	Intent   Intent
	Keywords []string
}

// companyKeywords trigger the company-info path when they appear anywhere
// in the lower-cased message.
var companyKeywords = []string{
	"company",
	"who are you",
	"about you",
	"about yourself",
	"your business",
	"your services",
	"your team",
	"contact",
	"schedule",
	"pricing",
	"book a call",
	"book a meeting",
	"get in touch",
	"reach out",
	"office hours",
	"headquarters",
	"where are you located",
}

// Router is a keyword classifier. No scoring, no model: any keyword hit
// routes to company info, everything else falls through to retrieval.
type Router struct {
	keywords []string
}

// New returns a router whose keyword list includes the configured company
// name alongside the built-in triggers.
func New(companyName string) *Router {
	keywords := make([]string, 0, len(companyKeywords)+1)
	keywords = append(keywords, companyKeywords...)
	if name := strings.ToLower(strings.TrimSpace(companyName)); name != "" {
		keywords = append(keywords, name)
	}
	return &Router{keywords: keywords}
}

// Route classifies one message. It lower-cases the text, collects every
// keyword that appears as a substring, and returns the company-info intent
// on any hit.
func (r *Router) Route(message string) Decision {
	lowered := strings.ToLower(message)

	var matched []string
	for _, kw := range r.keywords {
		if strings.Contains(lowered, kw) {
			matched = append(matched, kw)
		}
	}

	if len(matched) > 0 {
		return Decision{Intent: IntentCompanyInfo, Keywords: matched}
	}
	return Decision{Intent: IntentKnowledgeBase}
}
