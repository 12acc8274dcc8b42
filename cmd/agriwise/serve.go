package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agriwise-backend/internal/chat"
	"agriwise-backend/internal/database"
	"agriwise-backend/internal/handlers"
	"agriwise-backend/internal/middleware"
	"agriwise-backend/internal/router"
	"agriwise-backend/internal/services"
	"agriwise-backend/internal/websocket"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat API (HTTP + WebSocket)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting AgriWise backend",
		zap.String("env", cfg.Env),
		zap.String("backend", cfg.LLMBackend),
		zap.String("model", cfg.GeminiModel))

	// ──── Gemini client ────
	completer, closeCompleter, err := newCompleter(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("gemini client initialization failed: %w", err)
	}
	defer closeCompleter()

	// ──── Optional Redis notification fan-out ────
	var observers []chat.Observer
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisClient.Close()
		observers = append(observers, services.NewNotificationPublisher(redisClient, logger))
		logger.Info("Redis connected, publishing chat updates")
	}

	// ──── Handlers ────
	chatHandler := handlers.NewChatHandler(exchangeFor(cfg, completer), logger)
	wsHub := websocket.NewHub(completer, logger, middleware.AllowOrigin(cfg.FrontendURL), sessionOptions(cfg), observers...)
	chatLimiter := middleware.NewRateLimiter(cfg.ChatRateLimit, time.Minute)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router.New(chatHandler, wsHub, chatLimiter, cfg.FrontendURL),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ChatRequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("AgriWise backend ready",
			zap.String("api", fmt.Sprintf("http://localhost:%s/api/v1/chat", cfg.Port)),
			zap.String("ws", fmt.Sprintf("ws://localhost:%s/api/v1/chat/ws", cfg.Port)))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		chatLimiter.Cleanup(gctx)
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		wsHub.Close()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
