package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/config"
	"github.com/zhouzirui/ollama-tavern/internal/handler"
	"github.com/zhouzirui/ollama-tavern/internal/logging"
	"github.com/zhouzirui/ollama-tavern/internal/middleware"
	"github.com/zhouzirui/ollama-tavern/internal/model/persona"
	"github.com/zhouzirui/ollama-tavern/internal/service/ai"
	"github.com/zhouzirui/ollama-tavern/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Must(config.LogConfig{}).Fatal("failed to load configuration", zap.Error(err))
	}

	logger := logging.Must(cfg.Log)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}

	backend, err := ai.NewBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize model backend", zap.Error(err))
	}
	if err := backend.Ping(ctx); err != nil {
		logger.Warn("model backend not reachable yet, chats will fail until it is",
			zap.String("backend", backend.Name()), zap.Error(err))
	}

	personaStore := persona.NewFileStore(cfg.Persona.Pattern, logger.Named("persona"))
	if n := len(personaStore.List()); n == 0 {
		logger.Warn("no persona files found", zap.String("pattern", personaStore.Pattern()))
	} else {
		logger.Info("personas discovered", zap.Int("count", n), zap.String("pattern", personaStore.Pattern()))
	}

	chatService := chat.NewService(personaStore, backend, logger.Named("chat"))
	router := handler.NewRouter(personaStore, chatService, backend, middleware.NewOrigins(cfg.Server.AllowedOrigins), logger)

	startServer(ctx, logger, cfg.Server, router)
}

func startServer(ctx context.Context, logger *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("ollama tavern listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
