// Package server wires the HTTP surface of the query front: the bootstrap
// and session endpoints the page layer calls, the Alipay bridge page, the
// guarded admin and agent mounts, the maintenance page, and the operational
// endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bigdata-query/query-front/internal/bootstrap"
	"github.com/bigdata-query/query-front/internal/config"
	"github.com/bigdata-query/query-front/internal/crypto"
	"github.com/bigdata-query/query-front/internal/guard"
	"github.com/bigdata-query/query-front/internal/log"
	"github.com/bigdata-query/query-front/internal/siteconfig"
	"github.com/bigdata-query/query-front/internal/storage"
)

// sessionTTL is how long a front session cookie stays valid
const sessionTTL = 30 * 24 * time.Hour

// Server holds the HTTP surface and its collaborators
type Server struct {
	cfg      config.FrontConfig
	flow     *bootstrap.Flow
	guards   *guard.Guards
	site     *siteconfig.Service
	sessions storage.Storage
	signer   crypto.TokenSigner
}

// NewServer creates the front HTTP server
func NewServer(cfg config.FrontConfig, flow *bootstrap.Flow, guards *guard.Guards, site *siteconfig.Service, sessions storage.Storage) *Server {
	return &Server{
		cfg:      cfg,
		flow:     flow,
		guards:   guards,
		site:     site,
		sessions: sessions,
		signer:   crypto.NewTokenSigner([]byte(cfg.SigningKey), sessionTTL),
	}
}

// Handler builds the full route tree with its middleware stack
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	siteInit := newSiteInitMiddleware(s.site)

	// Endpoints the page layer calls
	mux.Handle("GET /frontend/bootstrap/", siteInit(http.HandlerFunc(s.handleBootstrap)))
	mux.Handle("GET /frontend/alipay-bridge/", siteInit(http.HandlerFunc(s.handleAlipayBridgePage)))
	mux.HandleFunc("POST /frontend/alipay-bridge/", s.handleAlipayBridgeCallback)
	mux.HandleFunc("POST /frontend/logout/", s.handleLogout)
	mux.HandleFunc("GET /frontend/session/", s.handleSession)
	mux.HandleFunc("GET /frontend/report-map/", s.handleReportMap)

	mux.HandleFunc("GET "+siteconfig.MaintenancePath, s.handleMaintenance)

	// Guarded page mounts. The login pages are registered on more specific
	// patterns, so they escape the area guards.
	adminPrefix := "/" + s.cfg.AdminPath
	mux.Handle(adminPrefix+"/", s.guards.Admin()(s.shellHandler("管理后台", "admin")))
	mux.Handle(adminPrefix+"/login", s.guards.Guest()(s.shellHandler("管理员登录", "admin-login")))
	mux.Handle("/agent/", s.guards.Agent()(s.shellHandler("代理中心", "agent")))
	mux.Handle("/agent/login", s.shellHandler("代理登录", "agent-login"))

	mux.Handle("GET /health", NewHealthHandler())

	if s.cfg.OpsAuth != nil {
		opsAuth := NewOpsAuthMiddleware(s.cfg.OpsAuth)
		mux.Handle("GET /ops/sessions", opsAuth(http.HandlerFunc(s.handleOpsSessions)))
		mux.Handle("POST /ops/log-level", opsAuth(http.HandlerFunc(s.handleOpsLogLevel)))
	}

	return ChainMiddleware(mux,
		NewRecoverMiddleware("server"),
		NewCORSMiddleware(s.cfg.AllowedOrigins),
		NewLoggerMiddleware("server"),
		newSessionMiddleware(s.signer, sessionTTL),
	)
}

// HTTPServer manages the HTTP server lifecycle
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates a new HTTP server with the given handler and address
func NewHTTPServer(handler http.Handler, addr string) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
	}
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	log.LogInfoWithFields("http", "HTTP server starting", map[string]any{
		"addr": h.server.Addr,
	})

	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	log.LogInfoWithFields("http", "HTTP server stopping", map[string]any{
		"addr": h.server.Addr,
	})

	if err := h.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.LogInfoWithFields("http", "HTTP server stopped", map[string]any{
		"addr": h.server.Addr,
	})
	return nil
}

// HealthHandler handles health check requests
type HealthHandler struct{}

// NewHealthHandler creates a new health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP implements http.Handler for health checks
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
