// Package guard provides route guards for the admin, agent, and guest areas.
//
// Each guard probes the backend with the browser's Cookie header before the
// wrapped handler runs. Failed probes redirect to the matching login page;
// the admin guard additionally leaves a flash notice explaining why.
package guard

import (
	"errors"
	"net/http"
	"path"

	"github.com/bigdata-query/query-front/internal/backend"
	"github.com/bigdata-query/query-front/internal/log"
	"github.com/bigdata-query/query-front/internal/notify"
)

// Middleware wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// Guards builds the route guard middlewares
type Guards struct {
	api       *backend.Client
	adminPath string
	notifier  func(http.ResponseWriter) notify.Notifier
}

// New creates the guards. adminPath is the obfuscated admin URL prefix.
func New(api *backend.Client, adminPath string) *Guards {
	return &Guards{
		api:       api,
		adminPath: adminPath,
		notifier: func(w http.ResponseWriter) notify.Notifier {
			return notify.NewFlash(w)
		},
	}
}

// WithNotifier overrides the per-response notifier factory (used by tests)
func (g *Guards) WithNotifier(fn func(http.ResponseWriter) notify.Notifier) *Guards {
	g.notifier = fn
	return g
}

// isProbeRequest reports whether the request is a prefetch or HEAD probe.
// Those never reach a real user, so guards answer them without burning a
// backend auth check or leaving a notice.
func isProbeRequest(r *http.Request) bool {
	return r.Method == http.MethodHead ||
		r.Header.Get("Sec-Purpose") != "" ||
		r.Header.Get("Purpose") == "prefetch"
}

func (g *Guards) adminLoginURL() string {
	return path.Join("/", g.adminPath, "login")
}

func (g *Guards) adminHomeURL() string {
	return path.Join("/", g.adminPath) + "/"
}

// Admin guards the admin area. The probe outcome picks the notice:
// an HTTP 401 means no session, 403 means insufficient role, a non-zero
// envelope code means the session expired server-side.
func (g *Guards) Admin() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isProbeRequest(r) {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			probe, err := g.api.CheckAdminAuth(r.Context(), r.Header.Get("Cookie"))
			if err == nil && probe.Code == 0 {
				next.ServeHTTP(w, r)
				return
			}

			n := g.notifier(w)
			switch {
			case err == nil:
				n.Notify(notify.KindError, "请重新登录", "登录状态已失效")
			case statusOf(err) == http.StatusUnauthorized:
				n.Notify(notify.KindWarning, "请先登录", "您还未登录或登录已过期")
			case statusOf(err) == http.StatusForbidden:
				n.Notify(notify.KindError, "权限不足", "您没有访问此页面的权限")
			default:
				log.LogWarnWithFields("guard", "Admin auth check failed", map[string]any{
					"path":  r.URL.Path,
					"error": err.Error(),
				})
				n.Notify(notify.KindError, "认证失败", "网络错误，请稍后重试")
			}
			http.Redirect(w, r, g.adminLoginURL(), http.StatusFound)
		})
	}
}

// Agent guards the agent area. Failures redirect to the agent login page
// without a notice; the agent pages render their own prompt.
func (g *Guards) Agent() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isProbeRequest(r) {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			probe, err := g.api.CheckAgentAuth(r.Context(), r.Header.Get("Cookie"))
			if err != nil || probe.Code != 0 {
				http.Redirect(w, r, "/agent/login", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guest guards the admin login page: an already-authenticated admin is sent
// to the admin home instead. Probe failures fall through to the page.
func (g *Guards) Guest() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			probe, err := g.api.CheckAdminAuth(r.Context(), r.Header.Get("Cookie"))
			if err == nil && probe.Code == 0 {
				http.Redirect(w, r, g.adminHomeURL(), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusOf classifies a probe failure for the notice. The envelope's code
// field wins when it names an auth status, covering backends that wrap auth
// errors in other HTTP statuses; otherwise the HTTP status decides.
func statusOf(err error) int {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code == http.StatusUnauthorized || statusErr.Code == http.StatusForbidden {
			return statusErr.Code
		}
		return statusErr.StatusCode
	}
	return 0
}
