package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"prompt-enhancer/internal/adapter/memory"
	"prompt-enhancer/internal/adapter/openai"
	"prompt-enhancer/internal/adapter/telegram"
	"prompt-enhancer/internal/adapter/web"
	"prompt-enhancer/internal/config"
	"prompt-enhancer/internal/usecase/chat"
)

const sweepInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	openAIClient := openai.NewClient(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	store := memory.NewStore(cfg.SessionTTL)
	chatSvc := chat.NewService(store, openAIClient, cfg)

	go store.Run(ctx, sweepInterval)

	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg, chatSvc)
		if err != nil {
			log.Fatalf("failed to init telegram bot: %v", err)
		}
		go func() {
			if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("telegram bot stopped with error: %v", err)
				cancel()
			}
		}()
	}

	if err := web.NewServer(cfg, chatSvc).Run(ctx); err != nil {
		if ctx.Err() != nil {
			log.Printf("shutdown: %v", err)
			return
		}
		log.Fatalf("web server stopped with error: %v", err)
	}
}
