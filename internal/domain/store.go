package domain

type SessionStore interface {
	GetOrCreate(id, systemPrompt string) (*Session, bool)
	Get(id string) (*Session, bool)
	Delete(id string) bool
}
