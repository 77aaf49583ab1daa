package chat

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"prompt-enhancer/internal/domain"
)

// Per-message framing overhead used by OpenAI's own token estimates.
const (
	tokensPerMessage = 3
	tokensPerReply   = 3
)

// tiktokenCounter estimates prompt tokens for model. The encoding is loaded
// lazily on first use; if it cannot be loaded every estimate is 0.
func tiktokenCounter(model string) func([]domain.Message) int {
	var (
		once sync.Once
		enc  *tiktoken.Tiktoken
	)
	load := func() {
		var err error
		enc, err = tiktoken.EncodingForModel(model)
		if err == nil {
			return
		}
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("Error creating tiktoken encoder: %v", err)
			enc = nil
		}
	}

	return func(msgs []domain.Message) int {
		once.Do(load)
		if enc == nil {
			return 0
		}
		total := tokensPerReply
		for _, m := range msgs {
			total += tokensPerMessage
			total += len(enc.Encode(m.Role, nil, nil))
			total += len(enc.Encode(m.Content, nil, nil))
		}
		return total
	}
}
