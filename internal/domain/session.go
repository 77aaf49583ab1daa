package domain

import (
	"sync"
	"time"
)

type Session struct {
	ID         string
	Transcript *Transcript

	turn     sync.Mutex
	mu       sync.Mutex
	lastUsed time.Time
}

func NewSession(id, systemPrompt string, now time.Time) *Session {
	return &Session{
		ID:         id,
		Transcript: NewTranscript(systemPrompt, now),
		lastUsed:   now,
	}
}

// BeginTurn claims the session for one user turn. It returns false while
// another turn is still being processed.
func (s *Session) BeginTurn() bool {
	return s.turn.TryLock()
}

func (s *Session) EndTurn() {
	s.turn.Unlock()
}

func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = now
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}
