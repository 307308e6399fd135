// Package memory holds conversation state: pure turn-history operations and
// the process-wide conversation registry.
//
// Turn histories never contain two consecutive user or assistant entries.
// The single policy enforced everywhere is replace-last: when a turn would
// follow another of the same role, the newer turn wins.
package memory

import (
	"strings"
	"time"

	"github.com/dzinemon/rag-app/schema"
)

// AppendUser adds a user turn. If the last turn is already a user turn it is
// replaced rather than stacked.
func AppendUser(turns []schema.Turn, text string) []schema.Turn {
	turn := schema.Turn{Role: schema.RoleUser, Content: text, CreatedAt: time.Now()}
	if n := len(turns); n > 0 && turns[n-1].Role == schema.RoleUser {
		out := make([]schema.Turn, n)
		copy(out, turns)
		out[n-1] = turn
		return out
	}
	return append(cloneTurns(turns), turn)
}

// AppendAssistant adds an assistant turn, replacing a trailing assistant
// turn if present.
func AppendAssistant(turns []schema.Turn, text string) []schema.Turn {
	turn := schema.Turn{Role: schema.RoleAssistant, Content: text, CreatedAt: time.Now()}
	if n := len(turns); n > 0 && turns[n-1].Role == schema.RoleAssistant {
		out := make([]schema.Turn, n)
		copy(out, turns)
		out[n-1] = turn
		return out
	}
	return append(cloneTurns(turns), turn)
}

// Reconcile rebuilds internal turn state from a caller-supplied history.
// Unknown roles, system entries and empty contents are dropped; same-role
// runs collapse to their most recent entry.
func Reconcile(external []schema.Turn) []schema.Turn {
	out := make([]schema.Turn, 0, len(external))
	for _, t := range external {
		if t.Role != schema.RoleUser && t.Role != schema.RoleAssistant {
			continue
		}
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		turn := schema.Turn{Role: t.Role, Content: t.Content, CreatedAt: t.CreatedAt}
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = time.Now()
		}
		if n := len(out); n > 0 && out[n-1].Role == turn.Role {
			out[n-1] = turn
			continue
		}
		out = append(out, turn)
	}
	return out
}

// FormatForModel produces the ordered message list for a language-model
// call: optional system prompt, the last maxTurns turns with same-role runs
// collapsed, and the pending question appended as a user entry when the
// history does not already end on one. Pure and deterministic.
func FormatForModel(turns []schema.Turn, systemPrompt string, maxTurns int, pendingQuestion string) []schema.Turn {
	out := make([]schema.Turn, 0, len(turns)+2)
	if systemPrompt != "" {
		out = append(out, schema.Turn{Role: schema.RoleSystem, Content: systemPrompt})
	}

	tail := turns
	if maxTurns > 0 && len(tail) > maxTurns {
		tail = tail[len(tail)-maxTurns:]
	}
	for _, t := range tail {
		if t.Role != schema.RoleUser && t.Role != schema.RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == t.Role {
			out[n-1] = schema.Turn{Role: t.Role, Content: t.Content}
			continue
		}
		out = append(out, schema.Turn{Role: t.Role, Content: t.Content})
	}

	if pendingQuestion != "" {
		if n := len(out); n == 0 || out[n-1].Role != schema.RoleUser {
			out = append(out, schema.Turn{Role: schema.RoleUser, Content: pendingQuestion})
		}
	}
	return out
}

func cloneTurns(turns []schema.Turn) []schema.Turn {
	out := make([]schema.Turn, len(turns))
	copy(out, turns)
	return out
}
