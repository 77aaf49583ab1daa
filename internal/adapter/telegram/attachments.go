package telegram

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"prompt-enhancer/internal/usecase/chat"
)

// fileSource resolves a Telegram file id to a download URL.
type fileSource interface {
	GetFileDirectURL(fileID string) (string, error)
}

// BuildUserInput turns a Telegram message into chat input. Photos and
// documents become attachments; other media are described in text. The second
// result reports whether the reply was requested as a file ("/file ...").
func BuildUserInput(ctx context.Context, files fileSource, msg *tgbotapi.Message, maxBytes int64) (chat.Input, bool) {
	respondAsFile := false
	text := msg.Text
	if strings.HasPrefix(strings.ToLower(text), "/file") {
		respondAsFile = true
		text = strings.TrimSpace(text[len("/file"):])
	}

	parts := make([]string, 0, 6)
	if text != "" {
		parts = append(parts, text)
	}
	if msg.Caption != "" {
		parts = append(parts, msg.Caption)
	}
	parts = append(parts, describeMedia(msg)...)

	return chat.Input{
		Text:        strings.Join(parts, "\n"),
		Attachments: collectAttachments(ctx, files, msg, maxBytes),
	}, respondAsFile
}

func collectAttachments(ctx context.Context, files fileSource, msg *tgbotapi.Message, maxBytes int64) []chat.Attachment {
	atts := make([]chat.Attachment, 0, 2)

	if msg.Document != nil {
		doc := msg.Document
		if att, ok := download(ctx, files, doc.FileID, doc.FileName, int64(doc.FileSize), maxBytes); ok {
			atts = append(atts, att)
		}
	}
	if len(msg.Photo) > 0 {
		best := msg.Photo[len(msg.Photo)-1]
		name := fmt.Sprintf("photo_%dx%d.jpg", best.Width, best.Height)
		if att, ok := download(ctx, files, best.FileID, name, int64(best.FileSize), maxBytes); ok {
			atts = append(atts, att)
		}
	}

	return atts
}

func download(ctx context.Context, files fileSource, fileID, name string, size, maxBytes int64) (chat.Attachment, bool) {
	if maxBytes > 0 && size > maxBytes {
		log.Printf("skipping %s: %d bytes exceeds upload limit", name, size)
		return chat.Attachment{}, false
	}
	data, err := fetchFile(ctx, files, fileID, maxBytes)
	if err != nil {
		log.Printf("could not fetch %s: %v", name, err)
		return chat.Attachment{}, false
	}
	return chat.Attachment{Name: name, Data: data}, true
}

func describeMedia(msg *tgbotapi.Message) []string {
	parts := make([]string, 0, 4)

	if msg.Audio != nil {
		parts = append(parts, fmt.Sprintf(
			"Audio: %s (%d sec, %d bytes, mime %s).",
			msg.Audio.Title, msg.Audio.Duration, msg.Audio.FileSize, msg.Audio.MimeType,
		))
	}
	if msg.Voice != nil {
		parts = append(parts, fmt.Sprintf(
			"Voice message: duration %d sec (%d bytes, mime %s).",
			msg.Voice.Duration, msg.Voice.FileSize, msg.Voice.MimeType,
		))
	}
	if msg.Video != nil {
		parts = append(parts, fmt.Sprintf(
			"Video: resolution %dx%d (%d sec, %d bytes, mime %s).",
			msg.Video.Width, msg.Video.Height, msg.Video.Duration,
			msg.Video.FileSize, msg.Video.MimeType,
		))
	}
	if msg.VideoNote != nil {
		parts = append(parts, fmt.Sprintf(
			"Video note: resolution %dx%d (%d sec, %d bytes).",
			msg.VideoNote.Length, msg.VideoNote.Length, msg.VideoNote.Duration, msg.VideoNote.FileSize,
		))
	}
	if msg.Sticker != nil {
		parts = append(parts, fmt.Sprintf(
			"Sticker received: set %s, emoji %s",
			msg.Sticker.SetName, msg.Sticker.Emoji,
		))
	}
	if msg.Animation != nil {
		parts = append(parts, fmt.Sprintf(
			"Animation: %s (%d bytes, mime %s).",
			msg.Animation.FileName, msg.Animation.FileSize, msg.Animation.MimeType,
		))
	}

	return parts
}

func fetchFile(ctx context.Context, files fileSource, fileID string, maxBytes int64) ([]byte, error) {
	url, err := files.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxBytes)
	}
	return data, nil
}
