// File: pkg/agent/state.go
package agent

import (
	"sync"
	"time"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/pkg/planner"
)

// State is everything one task retains between steps. It lives only in
// process memory; a restart forgets every task, by design.
type State struct {
	TaskID          string
	Plan            *planner.PlanState
	PrevElements    []schemas.ElementDescriptor
	LastAction      *schemas.Action
	PendingFallback *schemas.Action
	LastRejection   string
	Memory          []schemas.MemoryEntry

	lastSeen time.Time
}

// RememberThinking appends one step's rationale to the bounded memory
// window, evicting the oldest entry past the cap.
func (s *State) RememberThinking(step int, thinking string, window int) {
	if thinking == "" || window <= 0 {
		return
	}
	s.Memory = append(s.Memory, schemas.MemoryEntry{Step: step, Thinking: thinking})
	if len(s.Memory) > window {
		s.Memory = s.Memory[len(s.Memory)-window:]
	}
}

// Store keys task state by task id, bounded by an idle TTL and a maximum
// entry count with stalest-first eviction. Concurrent calls for different
// tasks are independent; same-id races are last-writer-wins, which the
// strictly sequential per-task protocol never exercises in practice.
type Store struct {
	mu      sync.Mutex
	entries map[string]*State

	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewStore(ttl time.Duration, maxEntries int) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &Store{
		entries:    make(map[string]*State),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Acquire returns the live state for the task, creating a fresh one when
// the id is unseen or its previous state expired. fresh reports whether
// this call is the first step of the task as far as the store knows.
func (s *Store) Acquire(taskID string) (state *State, fresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.entries[taskID]; ok && now.Sub(existing.lastSeen) <= s.ttl {
		existing.lastSeen = now
		return existing, false
	}

	s.evictLocked(now)
	state = &State{TaskID: taskID, lastSeen: now}
	s.entries[taskID] = state
	return state, true
}

// Release drops the task's state, used when the task reaches a terminal
// point and its memory has no further value.
func (s *Store) Release(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, taskID)
}

// Len reports how many tasks are currently tracked.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictLocked removes expired entries, then trims stalest-first down to
// one below the cap so the caller's insert never exceeds it.
func (s *Store) evictLocked(now time.Time) {
	for id, entry := range s.entries {
		if now.Sub(entry.lastSeen) > s.ttl {
			delete(s.entries, id)
		}
	}
	for len(s.entries) >= s.maxEntries {
		stalestID := ""
		var stalestSeen time.Time
		for id, entry := range s.entries {
			if stalestID == "" || entry.lastSeen.Before(stalestSeen) {
				stalestID, stalestSeen = id, entry.lastSeen
			}
		}
		delete(s.entries, stalestID)
	}
}
