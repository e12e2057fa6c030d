package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llm-crypto-trader/config"
	"llm-crypto-trader/internal/gateway"
	redisstore "llm-crypto-trader/internal/store/redis"
	sqlitestore "llm-crypto-trader/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[dashboard] config: %v", err)
	}

	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[dashboard] sqlite reader: %v", err)
	}
	defer reader.Close()

	configs, err := sqlitestore.NewConfigStore(cfg.ConfigDBPath)
	if err != nil {
		log.Fatalf("[dashboard] config store: %v", err)
	}
	defer configs.Close()

	// Live feed is optional; without Redis the dashboard still serves REST.
	var pub *redisstore.Publisher
	pub, err = redisstore.NewPublisher(redisstore.PublisherConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Printf("[dashboard] redis unavailable, live feed disabled: %v", err)
		pub = nil
	} else {
		defer pub.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := gateway.NewHub(pub)
	if pub != nil {
		go hub.Run(ctx)
	}

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, reader, configs, gateway.NewTOTPGuard(cfg.AdminTOTPSecret), time.Now())

	srv := &http.Server{
		Addr:              cfg.DashboardAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Printf("[dashboard] shutdown signal received")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[dashboard] shutdown: %v", err)
		}
	}()

	log.Printf("[dashboard] listening on %s (totp=%v)", cfg.DashboardAddr, cfg.AdminTOTPSecret != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[dashboard] fatal: %v", err)
	}
}
