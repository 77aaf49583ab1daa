package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"prompt-enhancer/internal/config"
	"prompt-enhancer/internal/usecase/chat"
)

const (
	chunkSize    = 2048
	editInterval = time.Second
	cursor       = "▌"
	greeting     = "Describe the page or component you want to build and I will turn it into a detailed prompt. Screenshots help."
)

type Bot struct {
	api  *tgbotapi.BotAPI
	cfg  config.Config
	chat *chat.Service
	now  func() time.Time
}

func NewBot(cfg config.Config, chatSvc *chat.Service) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	log.Printf("telegram surface ready as @%s, sessions keyed by chat", api.Self.UserName)

	return &Bot{
		api:  api,
		cfg:  cfg,
		chat: chatSvc,
		now:  time.Now,
	}, nil
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			msg := update.Message
			if msg.From == nil {
				continue
			}
			go b.handleMessage(ctx, msg)
		}
	}
}

func sessionKey(chatID int64) string {
	return fmt.Sprintf("telegram:%d", chatID)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !isAllowed(msg.From.ID, msg.Chat.ID, b.cfg) {
		deny := tgbotapi.NewMessage(msg.Chat.ID, "access denied")
		deny.ReplyToMessageID = msg.MessageID
		if _, err := b.api.Send(deny); err != nil {
			log.Printf("failed to send deny message: %v", err)
		}
		return
	}

	key := sessionKey(msg.Chat.ID)
	switch msg.Command() {
	case "start", "reset":
		b.chat.Reset(key)
		b.sendText(msg.Chat.ID, msg.MessageID, greeting)
		return
	}
	b.chat.InitSession(key)

	userInput, respondAsFile := BuildUserInput(ctx, b.api, msg, b.cfg.MaxUploadBytes)
	b.showProgress(msg.Chat.ID, replyAction(respondAsFile))

	placeholder, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, cursor))
	if err != nil {
		log.Printf("failed to send placeholder: %v", err)
		return
	}
	stream := &replyStream{
		interval: editInterval,
		now:      b.now,
		edit: func(text string) {
			b.editText(msg.Chat.ID, placeholder.MessageID, text, false)
		},
	}

	resp, err := b.chat.HandleMessage(ctx, key, userInput, stream.add)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			b.editText(msg.Chat.ID, placeholder.MessageID, "i need some content to work with", false)
		case errors.Is(err, chat.ErrTurnInProgress):
			b.editText(msg.Chat.ID, placeholder.MessageID, "still working on your previous message", false)
		default:
			log.Printf("openai request failed: %v", err)
			b.editText(msg.Chat.ID, placeholder.MessageID, "failed to reach openai, try again later", false)
		}
		return
	}

	for _, rep := range resp.Attachments {
		if rep.Skipped || rep.Error != "" {
			b.sendText(msg.Chat.ID, msg.MessageID, fmt.Sprintf("could not use %s: %s", rep.Name, rep.Error))
		}
	}

	if respondAsFile || shouldSendAsFile(resp.Text) {
		b.editText(msg.Chat.ID, placeholder.MessageID, "the full prompt is attached", false)
		if err := b.sendAsFile(msg.Chat.ID, msg.MessageID, resp.Text); err != nil {
			log.Printf("failed to send file: %v", err)
			b.sendText(msg.Chat.ID, msg.MessageID, "could not send file, here is the text")
			b.sendText(msg.Chat.ID, msg.MessageID, resp.Text)
		}
		return
	}

	b.editText(msg.Chat.ID, placeholder.MessageID, resp.Text, true)
}

// editText replaces the placeholder text. Markdown that Telegram rejects is
// resent as plain text.
func (b *Bot) editText(chatID int64, messageID int, text string, markdown bool) {
	if strings.TrimSpace(text) == "" {
		text = cursor
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if markdown {
		edit.ParseMode = tgbotapi.ModeMarkdown
	}
	if _, err := b.api.Send(edit); err != nil {
		if markdown {
			b.editText(chatID, messageID, text, false)
			return
		}
		log.Printf("failed to edit reply: %v", err)
	}
}

func (b *Bot) sendText(chatID int64, replyTo int, text string) {
	chunks := splitText(text, chunkSize)
	for idx, chunk := range chunks {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if idx == 0 {
			msg.ReplyToMessageID = replyTo
		}
		if _, err := b.api.Send(msg); err != nil {
			log.Printf("failed to send reply: %v", err)
		}
	}
}

// replyAction is the chat action shown while the prompt is being written.
func replyAction(asFile bool) string {
	if asFile {
		return tgbotapi.ChatUploadDocument
	}
	return tgbotapi.ChatTyping
}

func (b *Bot) showProgress(chatID int64, action string) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, action)); err != nil {
		log.Printf("chat %d: could not show %s: %v", chatID, action, err)
	}
}

func (b *Bot) sendAsFile(chatID int64, replyTo int, content string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  "response.md",
		Bytes: []byte(content),
	})
	doc.ReplyToMessageID = replyTo

	_, err := b.api.Send(doc)
	return err
}

// replyStream accumulates reply fragments and pushes the growing text, with a
// typing cursor, at most once per interval.
type replyStream struct {
	text     strings.Builder
	lastEdit time.Time
	interval time.Duration
	now      func() time.Time
	edit     func(string)
}

func (s *replyStream) add(fragment string) {
	s.text.WriteString(fragment)

	now := s.now()
	if now.Sub(s.lastEdit) < s.interval {
		return
	}
	s.lastEdit = now
	s.edit(cursorView(s.text.String(), chunkSize))
}

// cursorView renders partial text with the typing cursor, keeping only the
// tail when it would not fit in one message.
func cursorView(text string, limit int) string {
	runes := []rune(text)
	if len(runes)+1 > limit {
		runes = append([]rune("…"), runes[len(runes)-limit+2:]...)
	}
	return string(runes) + cursor
}

func shouldSendAsFile(text string) bool {
	return len([]rune(text)) > chunkSize
}

func isAllowed(userID, chatID int64, cfg config.Config) bool {
	for _, id := range cfg.AdminUserIDs {
		if id == userID {
			return true
		}
	}

	if len(cfg.AllowedChatIDs) > 0 {
		for _, id := range cfg.AllowedChatIDs {
			if id == chatID {
				return true
			}
		}
	}

	if len(cfg.AllowedUserIDs) == 0 {
		return len(cfg.AllowedChatIDs) == 0
	}

	for _, id := range cfg.AllowedUserIDs {
		if id == userID {
			return true
		}
	}

	return false
}

// splitText cuts text into chunks of at most limit runes. Generated prompts
// are Markdown, so a chunk ends at the last line break that fits when there is
// one, and only long lines are cut mid-line.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
