package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deppfellow/osmcha-backend/internal/config"
	"github.com/deppfellow/osmcha-backend/internal/database"
	"github.com/deppfellow/osmcha-backend/internal/handler"
	"github.com/deppfellow/osmcha-backend/internal/logger"
	"github.com/deppfellow/osmcha-backend/internal/middleware"
	"github.com/deppfellow/osmcha-backend/internal/repository"
	"github.com/deppfellow/osmcha-backend/internal/router"
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/deppfellow/osmcha-backend/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, loggerService, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer loggerService.Shutdown(5 * time.Second)

	if err := database.Migrate(context.Background(), log, cfg); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s, err := server.New(cfg, log, loggerService)
	if err != nil {
		return fmt.Errorf("initializing server: %w", err)
	}

	repos := repository.NewRepositories(s.DB.Pool)

	services, err := service.NewServices(s, repos)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}

	handlers := handler.NewHandlers(s, services)
	middlewares := middleware.NewMiddlewares(s, repos.Users)

	r := router.New(handlers, middlewares)
	s.SetupHTTPServer(r)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
