package openai

import (
	"context"
	"errors"
	"io"
	"iter"
	"math"
	"strings"

	openaiapi "github.com/sashabaranov/go-openai"

	"prompt-enhancer/internal/domain"
	"prompt-enhancer/internal/usecase/chat"
)

type Client struct {
	api *openaiapi.Client
}

// NewClient builds a client for the OpenAI API. A non-empty baseURL points it
// at a compatible endpoint instead.
func NewClient(token, baseURL string) *Client {
	cfg := openaiapi.DefaultConfig(token)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		api: openaiapi.NewClientWithConfig(cfg),
	}
}

func (c *Client) Stream(ctx context.Context, req chat.CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		apiReq := openaiapi.ChatCompletionRequest{
			Model:               req.Model,
			Temperature:         temperature(req.Temperature),
			MaxCompletionTokens: req.MaxCompletionTokens,
			Stream:              true,
			Messages:            toAPIMessages(req.Messages, req.ImageDetail),
		}

		stream, err := c.api.CreateChatCompletionStream(ctx, apiReq)
		if err != nil {
			yield("", err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

// temperature maps 0 to the smallest positive value, since the API client
// drops a zero temperature and the server would apply its default of 1.
func temperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// toAPIMessages maps the transcript onto chat messages. Only turns that still
// carry images use multi-part content; the system entry and text turns stay plain.
func toAPIMessages(msgs []chat.Message, detail string) []openaiapi.ChatCompletionMessage {
	res := make([]openaiapi.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		res[i].Role = m.Role
		if m.Role == domain.RoleSystem || len(m.Images) == 0 {
			res[i].Content = m.Text
			continue
		}
		res[i].MultiContent = imageParts(m, imageDetail(detail))
	}
	return res
}

func imageParts(m chat.Message, detail openaiapi.ImageURLDetail) []openaiapi.ChatMessagePart {
	var parts []openaiapi.ChatMessagePart
	if text := strings.TrimSpace(m.Text); text != "" {
		parts = append(parts, openaiapi.ChatMessagePart{Type: openaiapi.ChatMessagePartTypeText, Text: m.Text})
	}
	for _, url := range m.Images {
		parts = append(parts, openaiapi.ChatMessagePart{
			Type:     openaiapi.ChatMessagePartTypeImageURL,
			ImageURL: &openaiapi.ChatMessageImageURL{URL: url, Detail: detail},
		})
	}
	return parts
}

func imageDetail(detail string) openaiapi.ImageURLDetail {
	switch detail {
	case "low":
		return openaiapi.ImageURLDetailLow
	case "high":
		return openaiapi.ImageURLDetailHigh
	default:
		return openaiapi.ImageURLDetailAuto
	}
}
