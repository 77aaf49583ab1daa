package web

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"prompt-enhancer/internal/usecase/chat"
)

const multipartMemory = 8 << 20

type messageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) createSession(c *gin.Context) {
	id := uuid.NewString()
	s.chat.InitSession(id)

	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

func (s *Server) history(c *gin.Context) {
	msgs, err := s.chat.History(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": views})
}

func (s *Server) deleteSession(c *gin.Context) {
	if !s.chat.End(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": chat.ErrSessionNotFound.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// postTurn runs one user turn and streams the reply as server-sent events.
// Failures before the first fragment are plain JSON errors; after that they
// arrive as an "error" event.
func (s *Server) postTurn(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	input, err := readInput(c.Request)
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	streaming := false
	startStream := func() {
		if streaming {
			return
		}
		streaming = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)
	}

	reply, err := s.chat.HandleMessage(c.Request.Context(), c.Param("id"), input, func(fragment string) {
		startStream()
		c.SSEvent("fragment", gin.H{"content": fragment})
		c.Writer.Flush()
	})
	if err != nil {
		status := statusFor(err)
		if status == http.StatusBadGateway {
			log.Printf("openai request failed: %v", err)
		}
		if !streaming {
			c.JSON(status, gin.H{"error": userMessage(err)})
			return
		}
		c.SSEvent("error", gin.H{"message": userMessage(err)})
		c.Writer.Flush()
		return
	}

	startStream()
	c.SSEvent("done", gin.H{
		"content":       reply.Text,
		"attachments":   reply.Attachments,
		"prompt_tokens": reply.PromptTokens,
	})
	c.Writer.Flush()
}

func readInput(r *http.Request) (chat.Input, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return chat.Input{}, err
	}

	input := chat.Input{Text: r.FormValue("text")}
	if r.MultipartForm == nil {
		return input, nil
	}
	for _, fh := range r.MultipartForm.File["files"] {
		data, err := readFile(fh)
		if err != nil {
			return chat.Input{}, err
		}
		input.Attachments = append(input.Attachments, chat.Attachment{
			Name: fh.Filename,
			Data: data,
		})
	}
	return input, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrTurnInProgress):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return "i need some content to work with"
	case errors.Is(err, chat.ErrSessionNotFound):
		return "session not found, start a new one"
	case errors.Is(err, chat.ErrTurnInProgress):
		return "still answering the previous message"
	default:
		return "failed to reach openai, try again later"
	}
}
