package domain

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
	// Images holds data URLs forwarded with the turn that carried them.
	// They are dropped once the turn has been answered.
	Images    []string
	Timestamp time.Time
}
