package server

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/bigdata-query/query-front/internal/browserenv"
	"github.com/bigdata-query/query-front/internal/config"
	"github.com/bigdata-query/query-front/internal/cookie"
	"github.com/bigdata-query/query-front/internal/crypto"
	"github.com/bigdata-query/query-front/internal/jsonwriter"
	"github.com/bigdata-query/query-front/internal/log"
	"github.com/bigdata-query/query-front/internal/siteconfig"
	"golang.org/x/crypto/bcrypt"
)

// MiddlewareFunc is a function that wraps an http.Handler
type MiddlewareFunc func(http.Handler) http.Handler

// ChainMiddleware chains multiple middleware functions. The first middleware
// listed is the innermost, the last is the outermost.
func ChainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}

// NewCORSMiddleware adds CORS headers to responses
func NewCORSMiddleware(allowedOrigins []string) MiddlewareFunc {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Only set CORS headers if origin is allowed
			if origin != "" && allowedMap[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			} else if len(allowedOrigins) == 0 {
				// If no allowed origins configured, allow all (development mode)
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cache-Control")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriterDelegator wraps http.ResponseWriter to capture status and
// bytes written while delegating optional interfaces through Unwrap
type responseWriterDelegator struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriterDelegator {
	return &responseWriterDelegator{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (r *responseWriterDelegator) Status() int {
	return r.status
}

func (r *responseWriterDelegator) BytesWritten() int {
	return r.written
}

func (r *responseWriterDelegator) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseWriterDelegator) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for interface detection
func (r *responseWriterDelegator) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush implements http.Flusher
func (r *responseWriterDelegator) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.ResponseWriter = (*responseWriterDelegator)(nil)
var _ http.Flusher = (*responseWriterDelegator)(nil)

// NewLoggerMiddleware adds request/response logging
func NewLoggerMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       wrapped.BytesWritten(),
				"remote_addr": r.RemoteAddr,
			}
			if r.URL.RawQuery != "" {
				fields["query"] = r.URL.RawQuery
			}

			log.LogInfoWithFields(prefix, "request", fields)
		})
	}
}

// NewRecoverMiddleware recovers from panics
func NewRecoverMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Logf("<%s> Recovered from panic: %v", prefix, err)
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// NewOpsAuthMiddleware protects the operational endpoints with basic auth.
// The configured password is a bcrypt hash.
func NewOpsAuthMiddleware(auth *config.OpsAuthConfig) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok || username != auth.Username ||
				bcrypt.CompareHashAndPassword([]byte(auth.HashedPassword), []byte(password)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="query-front ops"`)
				jsonwriter.WriteUnauthorized(w, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

const sessionIDKey contextKey = "front_session_id"

// sessionToken is the payload of the signed session cookie
type sessionToken struct {
	ID string `json:"id"`
}

// SessionIDFromContext returns the front session ID set by the session middleware
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// newSessionMiddleware issues the signed front session cookie on first contact
// and puts the verified session ID on the request context. A cookie with a bad
// signature is replaced rather than rejected: the front session only keys
// transient state, the backend session is what carries authority.
func newSessionMiddleware(signer crypto.TokenSigner, ttl time.Duration) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionID string

			if value, err := cookie.GetSession(r); err == nil {
				var token sessionToken
				if err := signer.Verify(value, &token); err == nil {
					sessionID = token.ID
				} else {
					log.LogDebugWithFields("server", "Replacing invalid session cookie", map[string]any{
						"error": err.Error(),
					})
				}
			}

			if sessionID == "" {
				id, err := crypto.GenerateSecureToken()
				if err != nil {
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
					return
				}
				signed, err := signer.Sign(sessionToken{ID: id})
				if err != nil {
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
					return
				}
				cookie.SetSession(w, signed, ttl)
				sessionID = id
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// agentTagFromRequest extracts the agent tag from the request's own query or,
// failing that, from the browser page URL nested in the page parameter. The
// page layer forwards its full URL there, so that is where a referral link's
// tag usually arrives.
func agentTagFromRequest(r *http.Request) string {
	query := r.URL.Query()
	if tag := siteconfig.AgentTagFromQuery(query); tag != "" {
		return tag
	}
	if page := query.Get("page"); page != "" {
		if u, err := url.Parse(page); err == nil {
			return siteconfig.AgentTagFromQuery(u.Query())
		}
	}
	return ""
}

// newSiteInitMiddleware persists agent tags from URL queries and sends
// browsers to the maintenance page when the site cannot serve them. The
// status fetch is cached per session, so only the first request pays for it.
func newSiteInitMiddleware(site *siteconfig.Service) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tag := agentTagFromRequest(r); tag != "" && tag != cookie.GetAgentTag(r) {
				cookie.SetAgentTag(w, tag)
			}

			if r.URL.Path == siteconfig.MaintenancePath {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := SessionIDFromContext(r.Context())
			cfg, err := site.For(r.Context(), sessionID)
			if err != nil {
				http.Redirect(w, r, siteconfig.ServerErrorRedirect(), http.StatusFound)
				return
			}
			env := browserenv.Classify(r.UserAgent())
			if target, redirect := siteconfig.MaintenanceRedirect(cfg, env); redirect {
				http.Redirect(w, r, target, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
