package cookie

import (
	"net/http"
	"os"
	"time"

	"github.com/bigdata-query/query-front/internal/log"
)

// Cookie names used by query-front
const (
	// SessionCookie carries the signed front session ID
	SessionCookie = "qf_session"
	// AgentTagCookie persists the referral agent tag picked up from URL queries
	AgentTagCookie = "agent_tag"
	// NoticeCookie carries a read-once JSON notice for the page layer to toast
	NoticeCookie = "qf_notice"
)

// AgentTagMaxAge is how long an agent tag sticks once seen in a URL
const AgentTagMaxAge = 30 * 24 * time.Hour

func isDev() bool {
	return os.Getenv("QUERY_FRONT_ENV") == "development"
}

var domain string

// SetDomain sets the Domain attribute applied to every cookie the front
// writes. Empty means host-only cookies. Called once at startup from the
// resolved config, before the server starts serving.
func SetDomain(d string) {
	domain = d
}

// SetSession sets the front session cookie with appropriate security settings
func SetSession(w http.ResponseWriter, value string, maxAge time.Duration) {
	secure := !isDev()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge": maxAge.String(),
		"secure": secure,
	})
}

// SetAgentTag persists an agent tag for 30 days. Last writer wins; the tag is
// never cleared automatically, only overwritten by a newer URL parameter.
func SetAgentTag(w http.ResponseWriter, tag string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AgentTagCookie,
		Value:    tag,
		Path:     "/",
		Domain:   domain,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(AgentTagMaxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Agent tag cookie set", map[string]any{
		"tag": tag,
	})
}

// SetNotice sets a read-once notice cookie. Not HttpOnly: the page layer reads
// it from script to render the toast, then clears it.
func SetNotice(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     NoticeCookie,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((1 * time.Minute).Seconds()),
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		Domain: domain,
		MaxAge: -1,
	})
}

// ClearSession removes the front session cookie
func ClearSession(w http.ResponseWriter) {
	Clear(w, SessionCookie)
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetSession retrieves the front session cookie value
func GetSession(r *http.Request) (string, error) {
	return Get(r, SessionCookie)
}

// GetAgentTag retrieves the persisted agent tag, or "" if unset
func GetAgentTag(r *http.Request) string {
	tag, err := Get(r, AgentTagCookie)
	if err != nil {
		return ""
	}
	return tag
}
