// Package session keeps each chat's dialogue progress in memory.
package session

import (
	"context"
	"fitcoachdev/workout"
	"sync"
	"time"
)

type Stage int

const (
	StageAwaitingLanguage Stage = iota
	StageAwaitingFitnessLevel
	StageAwaitingDuration
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingLanguage:
		return "awaiting_language"
	case StageAwaitingFitnessLevel:
		return "awaiting_fitness_level"
	case StageAwaitingDuration:
		return "awaiting_duration"
	case StageComplete:
		return "complete"
	default:
		return "unknown"
	}
}

const DefaultLanguage = "en"

type Session struct {
	ID           string
	Stage        Stage
	Language     string
	FitnessLevel workout.FitnessLevel
	UpdatedAt    time.Time
}

// New returns the state of a chat that has never been seen.
func New(id string) Session {
	return Session{ID: id, Stage: StageAwaitingLanguage, Language: DefaultLanguage}
}

type entry struct {
	mu       sync.Mutex
	session  Session
	lastSeen time.Time
}

// Store maps session ids to sessions. Updates to one id are serialized by that
// id's own mutex; the map lock is only held to find or create an entry.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	idleTTL time.Duration
	now     func() time.Time
}

type Option func(*Store)

// WithIdleTTL lets Sweep drop sessions untouched for longer than ttl.
// Zero, the default, keeps sessions for the life of the process.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.idleTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) entry(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		now := s.now()
		e = &entry{session: New(id), lastSeen: now}
		e.session.UpdatedAt = now
		s.entries[id] = e
	}
	return e
}

// Get returns a copy of the session, creating the default one on first contact.
func (s *Store) Get(id string) Session {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastSeen = s.now()
	return e.session
}

// Update runs mutate against the session while holding that session's lock and
// returns the resulting copy. mutate must not block.
func (s *Store) Update(id string, mutate func(*Session)) Session {
	for {
		e := s.entry(id)
		e.mu.Lock()

		// A concurrent Sweep may have dropped this entry after we looked it up.
		s.mu.Lock()
		current := s.entries[id]
		s.mu.Unlock()
		if current != e {
			e.mu.Unlock()
			continue
		}

		mutate(&e.session)
		e.session.ID = id
		now := s.now()
		e.session.UpdatedAt = now
		e.lastSeen = now
		result := e.session
		e.mu.Unlock()
		return result
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes sessions idle for longer than the configured TTL and reports how many
// were removed. It is a no-op when no TTL is configured.
func (s *Store) Sweep() int {
	if s.idleTTL <= 0 {
		return 0
	}

	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done. onSweep, if set, receives
// the number of removed sessions after each pass.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if s.idleTTL <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed := s.Sweep()
				if onSweep != nil {
					onSweep(removed)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
