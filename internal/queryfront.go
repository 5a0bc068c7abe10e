// Package internal wires the query front application together.
package internal

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bigdata-query/query-front/internal/authstate"
	"github.com/bigdata-query/query-front/internal/backend"
	"github.com/bigdata-query/query-front/internal/bootstrap"
	"github.com/bigdata-query/query-front/internal/config"
	"github.com/bigdata-query/query-front/internal/cookie"
	"github.com/bigdata-query/query-front/internal/guard"
	"github.com/bigdata-query/query-front/internal/log"
	"github.com/bigdata-query/query-front/internal/notify"
	"github.com/bigdata-query/query-front/internal/server"
	"github.com/bigdata-query/query-front/internal/siteconfig"
	"github.com/bigdata-query/query-front/internal/storage"
)

// QueryFront is the complete front application
type QueryFront struct {
	config     config.Config
	httpServer *server.HTTPServer
	storage    storage.Storage
}

// NewQueryFront builds the front application with all dependencies
func NewQueryFront(ctx context.Context, cfg config.Config) (*QueryFront, error) {
	log.LogInfoWithFields("queryfront", "Building query front application", map[string]any{
		"baseURL": cfg.Front.BaseURL,
		"backend": cfg.Front.BackendBaseURL,
		"storage": string(cfg.Front.Storage),
	})

	if _, err := url.Parse(cfg.Front.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	cookie.SetDomain(cfg.Front.CookieDomain)

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	api := backend.New(cfg.Front.BackendBaseURL)
	site := siteconfig.NewService(api)
	flow := bootstrap.New(api, site, authstate.NewStore(), store, notify.NopLoading{})
	guards := guard.New(api, cfg.Front.AdminPath)

	handler := server.NewServer(cfg.Front, flow, guards, site, store).Handler()
	httpServer := server.NewHTTPServer(handler, cfg.Front.Addr)

	return &QueryFront{
		config:     cfg,
		httpServer: httpServer,
		storage:    store,
	}, nil
}

// Run starts the application and manages its lifecycle
func (q *QueryFront) Run() error {
	log.LogInfoWithFields("queryfront", "Starting query front application", map[string]any{
		"addr": q.config.Front.Addr,
	})

	errChan := make(chan error, 1)
	go func() {
		if err := q.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("queryfront", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("queryfront", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("queryfront", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := q.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("queryfront", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	if err := q.storage.Close(); err != nil {
		log.LogWarnWithFields("queryfront", "Storage close error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("queryfront", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

// setupStorage creates the session store based on configuration
func setupStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	if cfg.Front.Storage == config.StorageFirestore {
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project": cfg.Front.FirestoreProject,
		})
		return storage.NewFirestoreStorage(ctx, cfg.Front.FirestoreProject)
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
	return storage.NewMemoryStorage(), nil
}
