package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"
	"time"

	"prompt-enhancer/internal/config"
	"prompt-enhancer/internal/domain"
)

var (
	ErrEmptyMessage    = errors.New("empty message")
	ErrSessionNotFound = errors.New("session not found")
	ErrTurnInProgress  = errors.New("another turn is in progress")
)

// Client streams a chat completion. The sequence yields text fragments as they
// arrive; a failure is yielded once, as the last element.
type Client interface {
	Stream(ctx context.Context, req CompletionRequest) iter.Seq2[string, error]
}

type CompletionRequest struct {
	Model               string
	Temperature         float32
	Messages            []Message
	MaxCompletionTokens int
	// ImageDetail is passed through with every image part.
	ImageDetail string
}

type Message struct {
	Role   string
	Text   string
	Images []string
}

type Input struct {
	Text        string
	Attachments []Attachment
}

type Reply struct {
	Text         string
	Attachments  []AttachmentReport
	PromptTokens int
}

type Service struct {
	store       domain.SessionStore
	client      Client
	cfg         config.Config
	now         func() time.Time
	countTokens func([]domain.Message) int
}

func NewService(store domain.SessionStore, client Client, cfg config.Config) *Service {
	countTokens := func([]domain.Message) int { return 0 }
	if cfg.CountPromptTokens {
		countTokens = tiktokenCounter(cfg.Model)
	}
	return &Service{
		store:       store,
		client:      client,
		cfg:         cfg,
		now:         time.Now,
		countTokens: countTokens,
	}
}

// InitSession returns the session for id, creating it with only the system
// instruction when it does not exist yet. An existing transcript is kept as is.
func (s *Service) InitSession(id string) *domain.Session {
	sess, created := s.store.GetOrCreate(id, s.cfg.SystemPrompt)
	if created {
		log.Printf("session %s started", id)
	}
	return sess
}

func (s *Service) Reset(id string) *domain.Session {
	s.store.Delete(id)
	return s.InitSession(id)
}

func (s *Service) End(id string) bool {
	return s.store.Delete(id)
}

// History returns the messages shown to the user for session id.
func (s *Service) History(id string) ([]domain.Message, error) {
	sess, ok := s.store.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Transcript.Visible(), nil
}

// AppendUserTurn appends one user message built from the trimmed text and the
// description block of its attachments.
func (s *Service) AppendUserTurn(t *domain.Transcript, input Input) ([]AttachmentReport, error) {
	norm := s.normalizeAttachments(input.Attachments)

	content := strings.TrimSpace(input.Text)
	if norm.block != "" {
		if content != "" {
			content += "\n\n"
		}
		content += norm.block
	}

	err := t.Append(domain.Message{
		Role:      domain.RoleUser,
		Content:   content,
		Images:    norm.images,
		Timestamp: s.now(),
	})
	if err != nil {
		return nil, err
	}
	return norm.reports, nil
}

func (s *Service) AppendAssistantTurn(t *domain.Transcript, text string) error {
	return t.Append(domain.Message{
		Role:      domain.RoleAssistant,
		Content:   text,
		Timestamp: s.now(),
	})
}

// StreamReply sends the whole transcript, in order, to the model and relays
// the reply fragments.
func (s *Service) StreamReply(ctx context.Context, t *domain.Transcript) iter.Seq2[string, error] {
	history := t.Messages()

	messages := make([]Message, 0, len(history))
	for _, h := range history {
		messages = append(messages, Message{
			Role:   h.Role,
			Text:   h.Content,
			Images: h.Images,
		})
	}

	return s.client.Stream(ctx, CompletionRequest{
		Model:               s.cfg.Model,
		Temperature:         s.cfg.Temperature,
		Messages:            messages,
		MaxCompletionTokens: s.cfg.MaxCompletionTokens,
		ImageDetail:         s.cfg.ImageDetail,
	})
}

// HandleMessage runs one full user turn for session id. Each reply fragment is
// passed to onFragment as it arrives. The assistant turn is committed only once
// the reply is complete; on failure the user turn is rolled back so the
// transcript is exactly as it was before the call.
func (s *Service) HandleMessage(ctx context.Context, id string, input Input, onFragment func(string)) (Reply, error) {
	if strings.TrimSpace(input.Text) == "" && len(input.Attachments) == 0 {
		return Reply{}, ErrEmptyMessage
	}

	sess, ok := s.store.Get(id)
	if !ok {
		return Reply{}, ErrSessionNotFound
	}
	if !sess.BeginTurn() {
		return Reply{}, ErrTurnInProgress
	}
	defer sess.EndTurn()

	reports, err := s.AppendUserTurn(sess.Transcript, input)
	if err != nil {
		return Reply{}, fmt.Errorf("append user turn: %w", err)
	}

	promptTokens := s.countTokens(sess.Transcript.Messages())
	log.Printf("session %s: sending %d messages (~%d prompt tokens)", id, sess.Transcript.Len(), promptTokens)

	var reply strings.Builder
	for fragment, err := range s.StreamReply(ctx, sess.Transcript) {
		if err != nil {
			sess.Transcript.Rollback()
			return Reply{}, fmt.Errorf("stream reply: %w", err)
		}
		reply.WriteString(fragment)
		if onFragment != nil {
			onFragment(fragment)
		}
	}

	if err := s.AppendAssistantTurn(sess.Transcript, reply.String()); err != nil {
		sess.Transcript.Rollback()
		return Reply{}, fmt.Errorf("append assistant turn: %w", err)
	}
	sess.Touch(s.now())

	return Reply{
		Text:         reply.String(),
		Attachments:  reports,
		PromptTokens: promptTokens,
	}, nil
}
