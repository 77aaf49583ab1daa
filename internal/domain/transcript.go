package domain

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrOutOfTurn = errors.New("message out of turn")

// Transcript is the ordered conversation of one session. Entry 0 is always the
// system instruction; after it user and assistant turns strictly alternate,
// with an optional trailing user turn still awaiting its reply.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

func NewTranscript(systemPrompt string, now time.Time) *Transcript {
	return &Transcript{
		messages: []Message{{
			Role:      RoleSystem,
			Content:   systemPrompt,
			Timestamp: now,
		}},
	}
}

func (t *Transcript) Append(msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	last := t.messages[len(t.messages)-1].Role
	switch msg.Role {
	case RoleUser:
		if last == RoleUser {
			return fmt.Errorf("%w: user turn already awaiting a reply", ErrOutOfTurn)
		}
	case RoleAssistant:
		if last != RoleUser {
			return fmt.Errorf("%w: assistant turn must follow a user turn", ErrOutOfTurn)
		}
		for i := range t.messages {
			t.messages[i].Images = nil
		}
	default:
		return fmt.Errorf("%w: cannot append %q message", ErrOutOfTurn, msg.Role)
	}

	t.messages = append(t.messages, msg)
	return nil
}

// Rollback removes a trailing user turn that never got its reply.
func (t *Transcript) Rollback() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.messages)
	if t.messages[n-1].Role != RoleUser {
		return false
	}
	t.messages = t.messages[:n-1]
	return true
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Messages returns a copy of every entry, system instruction included.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Message(nil), t.messages...)
}

// Visible returns the entries shown to the end user.
func (t *Transcript) Visible() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	visible := make([]Message, 0, len(t.messages)-1)
	for _, m := range t.messages {
		if m.Role == RoleSystem {
			continue
		}
		visible = append(visible, m)
	}
	return visible
}
