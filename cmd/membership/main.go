// Package main starts the HTTP server of the membership service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ramblersclub/membership-system/internal/config"
	"github.com/ramblersclub/membership-system/internal/handler"
	"github.com/ramblersclub/membership-system/internal/mailprovider"
	"github.com/ramblersclub/membership-system/internal/middleware"
	"github.com/ramblersclub/membership-system/internal/reconcile"
	"github.com/ramblersclub/membership-system/internal/repository"
	"github.com/ramblersclub/membership-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	strategy, err := mailprovider.ForProvider(cfg)
	if err != nil {
		sugar.Fatalw("mail provider error", "error", err.Error())
	}

	descriptors := reconcile.DefaultDescriptors()
	if cfg.DescriptorFile != "" {
		descriptors, err = reconcile.LoadDescriptors(cfg.DescriptorFile)
		if err != nil {
			sugar.Fatalw("field descriptor error", "error", err.Error())
		}
	}

	svc := service.NewService(repo, strategy, descriptors, logger)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.AdminUser, cfg.AdminPassword)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Background mailing-list synchronisation
	g.Go(func() error {
		svc.StartMailSync(ctx, cfg.MailSyncInterval)
		return nil
	})

	// HTTP server
	g.Go(func() error {
		sugar.Infow("starting membership server", "addr", cfg.RunAddress, "provider", cfg.MailProvider)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown on context cancellation (signal or error in another goroutine)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
