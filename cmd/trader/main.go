package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"llm-crypto-trader/config"
	"llm-crypto-trader/internal/bot"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[trader] config: %v", err)
	}
	log.Printf("[trader] model=%s llm_timeout=%ds sqlite=%s", cfg.GeminiModel, cfg.LLMTimeoutS, cfg.SQLitePath)

	svc, err := bot.New(cfg)
	if err != nil {
		log.Fatalf("[trader] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("[trader] shutdown signal received")
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[trader] fatal: %v", err)
	}
}
