package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bcnelson/webscenario-manager/internal/api"
	"github.com/bcnelson/webscenario-manager/internal/auth"
	"github.com/bcnelson/webscenario-manager/internal/config"
	"github.com/bcnelson/webscenario-manager/internal/logging"
	"github.com/bcnelson/webscenario-manager/internal/service"
	"github.com/bcnelson/webscenario-manager/internal/storage/sql"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "webscenario-manager: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	var oidc *api.OIDC
	if cfg.OIDC.Enabled {
		provider, err := auth.NewOIDCProvider(ctx,
			cfg.OIDC.IssuerURL,
			cfg.OIDC.ClientID,
			cfg.OIDC.ClientSecret,
			cfg.OIDC.RedirectURL,
			cfg.OIDC.GetScopes(),
			cfg.OIDC.GetAllowedDomains(),
		)
		if err != nil {
			return err
		}
		secret, err := cfg.OIDC.GetStateSecretBytes()
		if err != nil {
			return err
		}
		logins, err := auth.NewLoginStates(secret, true)
		if err != nil {
			return err
		}
		oidc = &api.OIDC{Provider: provider, Logins: logins}
		logger.Info("OIDC login enabled", zap.String("issuer", cfg.OIDC.IssuerURL))
	}

	svc := service.NewScenarioService(store, logger.Named("scenarios"), cfg.Inheritance.MaxDepth)
	router := api.NewRouter(store, svc, cfg.Auth.BootstrapAPIKey, oidc, logger.Named("http"))

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting web scenario manager",
			zap.String("addr", cfg.Server.Addr()),
			zap.String("db_driver", cfg.Database.Driver),
			zap.Int("inheritance_max_depth", cfg.Inheritance.MaxDepth))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
