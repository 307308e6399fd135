package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dzinemon/rag-app/metrics"
	"github.com/dzinemon/rag-app/schema"
)

// ParticipantRole identifies who owns a conversation.
type ParticipantRole string

const (
	ParticipantUser  ParticipantRole = "USER"
	ParticipantAdmin ParticipantRole = "ADMIN"
)

type conversation struct {
	mu        sync.Mutex
	id        string
	role      ParticipantRole
	turns     []schema.Turn
	createdAt time.Time
	updatedAt time.Time
	seq       uint64
	leases    int
}

// Registry owns all conversation state for the process. Capacity is
// enforced FIFO by insertion order; a conversation leased by an in-flight
// request is never evicted.
type Registry struct {
	mu       sync.Mutex
	capacity int
	convs    map[string]*conversation
	seq      uint64
	logger   *zap.Logger
}

// NewRegistry creates a registry bounded to capacity conversations.
func NewRegistry(capacity int, logger *zap.Logger) *Registry {
	if capacity <= 0 {
		capacity = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		capacity: capacity,
		convs:    make(map[string]*conversation, capacity),
		logger:   logger,
	}
}

// Session is an exclusive lease on one conversation. It must be released;
// all mutations between Acquire and Release are serialized per id.
type Session struct {
	reg      *Registry
	conv     *conversation
	created  bool
	released bool
}

// Acquire returns a leased session for id, creating the conversation when
// the id is empty or unknown. A stale client-held id self-heals into a
// fresh conversation under the same value.
func (r *Registry) Acquire(id string, role ParticipantRole) *Session {
	r.mu.Lock()
	created := false
	supplied := id != ""
	if !supplied {
		id = uuid.NewString()
	}
	conv, ok := r.convs[id]
	if !ok {
		if supplied {
			r.logger.Debug("conversation not found, creating", zap.String("conversation_id", id))
		}
		now := time.Now()
		r.seq++
		conv = &conversation{
			id:        id,
			role:      role,
			createdAt: now,
			updatedAt: now,
			seq:       r.seq,
		}
		r.convs[id] = conv
		created = true
	}
	conv.leases++
	r.mu.Unlock()

	conv.mu.Lock()
	return &Session{reg: r, conv: conv, created: created}
}

// Release commits the lease, runs capacity eviction and unblocks waiters.
func (s *Session) Release() {
	if s.released {
		return
	}
	s.released = true
	s.conv.mu.Unlock()

	s.reg.mu.Lock()
	s.conv.leases--
	s.reg.evictLocked()
	metrics.SetActiveConversations(len(s.reg.convs))
	s.reg.mu.Unlock()
}

// ID returns the conversation id.
func (s *Session) ID() string { return s.conv.id }

// Created reports whether this lease created the conversation.
func (s *Session) Created() bool { return s.created }

// Role returns the participant role recorded at creation.
func (s *Session) Role() ParticipantRole { return s.conv.role }

// History returns a copy of the turn sequence.
func (s *Session) History() []schema.Turn {
	return cloneTurns(s.conv.turns)
}

// Commit replaces the turn sequence in one step. Callers build the full
// updated history first so a cancelled request never leaves a partial turn.
func (s *Session) Commit(turns []schema.Turn) {
	s.conv.turns = turns
	s.conv.updatedAt = time.Now()
}

// Reconcile replaces the turn sequence from a caller-supplied history,
// applying the standard consecutive-role filter.
func (s *Session) Reconcile(external []schema.Turn) {
	s.conv.turns = Reconcile(external)
	s.conv.updatedAt = time.Now()
}

// Clear removes a conversation; reports whether it existed.
func (r *Registry) Clear(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.convs[id]
	if ok {
		delete(r.convs, id)
		metrics.SetActiveConversations(len(r.convs))
	}
	return ok
}

// Len returns the number of stored conversations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}

// evictLocked removes oldest-inserted unleased conversations until the
// registry is within capacity. Callers hold r.mu.
func (r *Registry) evictLocked() {
	for len(r.convs) > r.capacity {
		var oldest *conversation
		for _, c := range r.convs {
			if c.leases > 0 {
				continue
			}
			if oldest == nil || c.seq < oldest.seq {
				oldest = c
			}
		}
		if oldest == nil {
			return
		}
		delete(r.convs, oldest.id)
		r.logger.Debug("evicted conversation", zap.String("conversation_id", oldest.id))
	}
}
