package web

import (
	"context"
	_ "embed"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"prompt-enhancer/internal/config"
	"prompt-enhancer/internal/usecase/chat"
)

//go:embed static/index.html
var indexHTML []byte

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type Server struct {
	cfg    config.Config
	chat   *chat.Service
	engine *gin.Engine
}

func NewServer(cfg config.Config, chatSvc *chat.Service) *Server {
	s := &Server{
		cfg:  cfg,
		chat: chatSvc,
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.GET("/", s.index)
	r.GET("/health", s.health)

	api := r.Group("/api/sessions")
	{
		api.POST("", s.createSession)
		api.GET("/:id/messages", s.history)
		api.POST("/:id/turns", s.postTurn)
		api.DELETE("/:id", s.deleteSession)
	}

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("web ui listening on %s", s.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Server) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}
