package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAcquireCreatesAndReuses(t *testing.T) {
	reg := NewRegistry(10, nil)

	s := reg.Acquire("", ParticipantUser)
	id := s.ID()
	require.NotEmpty(t, id)
	assert.True(t, s.Created())
	s.Commit(AppendUser(s.History(), "hello"))
	s.Release()

	s2 := reg.Acquire(id, ParticipantUser)
	assert.False(t, s2.Created())
	require.Len(t, s2.History(), 1)
	s2.Release()
}

func TestRegistrySelfHealsUnknownID(t *testing.T) {
	reg := NewRegistry(10, nil)

	s := reg.Acquire("stale-client-id", ParticipantUser)
	assert.True(t, s.Created())
	assert.Equal(t, "stale-client-id", s.ID())
	s.Release()

	assert.Equal(t, 1, reg.Len())
}

func TestRegistryClear(t *testing.T) {
	reg := NewRegistry(10, nil)
	s := reg.Acquire("c1", ParticipantUser)
	s.Release()

	assert.True(t, reg.Clear("c1"))
	assert.False(t, reg.Clear("c1"))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryNeverExceedsCapacity(t *testing.T) {
	const limit = 5
	reg := NewRegistry(limit, nil)

	for i := 0; i < 50; i++ {
		s := reg.Acquire(fmt.Sprintf("conv-%d", i), ParticipantUser)
		s.Commit(AppendUser(nil, "hi"))
		s.Release()
		assert.LessOrEqual(t, reg.Len(), limit)
	}
}

func TestRegistryEvictsOldestFirst(t *testing.T) {
	reg := NewRegistry(2, nil)
	for _, id := range []string{"a", "b", "c"} {
		s := reg.Acquire(id, ParticipantUser)
		s.Release()
	}

	// "a" was inserted first and must be gone; "b" and "c" survive.
	assert.False(t, reg.Clear("a"))
	assert.True(t, reg.Clear("b"))
	assert.True(t, reg.Clear("c"))
}

func TestRegistrySkipsLeasedConversationsOnEvict(t *testing.T) {
	reg := NewRegistry(1, nil)

	held := reg.Acquire("held", ParticipantUser)

	s := reg.Acquire("other", ParticipantUser)
	s.Release()

	// "held" is leased and must survive even though it is oldest.
	h := reg.Acquire("held", ParticipantUser)
	assert.False(t, h.Created())
	h.Release()
	held.Release()
}

func TestRegistryConcurrentDistinctConversations(t *testing.T) {
	const n = 32
	reg := NewRegistry(n, nil)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conv-%d", i)
			for turn := 0; turn < 10; turn++ {
				s := reg.Acquire(id, ParticipantUser)
				turns := AppendUser(s.History(), fmt.Sprintf("q-%d-%d", i, turn))
				turns = AppendAssistant(turns, fmt.Sprintf("a-%d-%d", i, turn))
				s.Commit(turns)
				s.Release()
			}
		}(i)
	}
	wg.Wait()

	// No cross-contamination: every conversation holds only its own turns.
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("conv-%d", i)
		s := reg.Acquire(id, ParticipantUser)
		turns := s.History()
		require.Len(t, turns, 20)
		for _, turn := range turns {
			assert.Contains(t, turn.Content, fmt.Sprintf("-%d-", i))
		}
		s.Release()
	}
}

func TestRegistryConcurrentSameConversationSerializes(t *testing.T) {
	reg := NewRegistry(10, nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := reg.Acquire("shared", ParticipantUser)
			turns := AppendUser(s.History(), fmt.Sprintf("q%d", i))
			turns = AppendAssistant(turns, fmt.Sprintf("a%d", i))
			s.Commit(turns)
			s.Release()
		}(i)
	}
	wg.Wait()

	s := reg.Acquire("shared", ParticipantUser)
	defer s.Release()
	require.Len(t, s.History(), 32)
	assertAlternating(t, s.History())
}
