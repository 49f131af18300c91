package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/minebot-bridge-go/internal/config"
	"github.com/minebot-bridge-go/internal/handlers"
	"github.com/minebot-bridge-go/internal/i18n"
	"github.com/minebot-bridge-go/internal/middleware"
	"github.com/minebot-bridge-go/internal/services/botpress"
	"github.com/minebot-bridge-go/internal/services/bridge"
	"github.com/minebot-bridge-go/internal/services/history"
	"github.com/minebot-bridge-go/internal/services/pixelart"
	"github.com/minebot-bridge-go/internal/services/session"
	"github.com/minebot-bridge-go/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting MineBot bridge...")

	client := botpress.NewClient(cfg.Botpress.BaseURL, cfg.Botpress.WebhookID, cfg.Botpress.RequestTimeout, log)

	sessions := session.NewStore(client, cfg.Session.TTL, cfg.Session.MaxEntries, time.Now, log)
	defer sessions.Close()

	cooldown := middleware.NewCooldownLimiter(cfg.RateLimit.Cooldown, cfg.RateLimit.TTL, time.Now, log)
	defer cooldown.Close()
	global := middleware.NewGlobalLimiter(cfg.RateLimit.GlobalRPS, cfg.RateLimit.GlobalBurst, log)

	replyBridge := bridge.New(client, sessions, bridge.Options{
		PollInterval: cfg.Poll.Interval,
		PollTimeout:  cfg.Poll.Timeout,
	}, log)

	compiler := pixelart.NewCompiler(cfg.PixelArt.FetchTimeout, log)

	recorder := history.NewNop()
	if cfg.History.Enabled {
		switch cfg.History.Type {
		case "redis":
			redisRecorder, err := history.NewRedisRecorder(
				cfg.History.Redis.Addr, cfg.History.Redis.Password, cfg.History.Redis.DB,
				cfg.History.TTL, log)
			if err != nil {
				log.WithError(err).Error("Failed to connect history recorder, continuing without history")
			} else {
				recorder = redisRecorder
			}
		default:
			recorder = history.NewMemoryRecorder(cfg.History.TTL, log)
		}
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	metrics := middleware.NewMetrics()

	handler := handlers.NewChatHandler(cfg, sessions, replyBridge, cooldown, global, compiler, recorder, localizer, metrics, log)

	router := mux.NewRouter()
	handler.Routes(router)
	if cfg.Monitoring.Metrics.Enabled {
		router.Handle(cfg.Monitoring.Metrics.Path, promhttp.Handler())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Bridge server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}

	log.Info("Bridge stopped")
}
