// Package bootstrap drives the client authentication bootstrap flow.
//
// One invocation walks: probe the backend session; if live, done. Otherwise
// branch on the browser environment: generic browsers wait for manual login;
// in-app browsers either exchange an authorization code found in the URL or
// start the provider's authorization (redirect for WeChat, bridge page for
// Alipay). Every invocation clears the in-flight flag exactly once, whatever
// path it took.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bigdata-query/query-front/internal/authstate"
	"github.com/bigdata-query/query-front/internal/backend"
	"github.com/bigdata-query/query-front/internal/browserenv"
	"github.com/bigdata-query/query-front/internal/log"
	"github.com/bigdata-query/query-front/internal/notify"
	"github.com/bigdata-query/query-front/internal/provider"
	"github.com/bigdata-query/query-front/internal/siteconfig"
	"github.com/bigdata-query/query-front/internal/storage"
	"golang.org/x/sync/singleflight"
)

// User-facing messages for bootstrap failures
const (
	genericAuthErrorMessage = "认证时发生错误"
	loadingText             = "登录中..."
)

// Action tells the HTTP layer what to do after a bootstrap invocation
type Action int

const (
	// ActionNone is terminal: authenticated, waiting for manual login, or errored
	ActionNone Action = iota
	// ActionRedirect requires a full-page navigation to RedirectURL
	ActionRedirect
	// ActionBridge requires serving the provider's in-app bridge page
	ActionBridge
)

func (a Action) String() string {
	switch a {
	case ActionRedirect:
		return "redirect"
	case ActionBridge:
		return "bridge"
	default:
		return "none"
	}
}

// Request is one browser request entering the bootstrap flow
type Request struct {
	SessionID    string
	UserAgent    string
	URL          *url.URL // the browser's current URL, used as OAuth callback
	CookieHeader string   // raw Cookie header forwarded to the backend
	AgentTag     string   // persisted referral tag, recorded on the session
}

// Result is the outcome of one bootstrap invocation
type Result struct {
	State       authstate.State
	Env         browserenv.Env
	Action      Action
	RedirectURL string   // set when Action == ActionRedirect
	CleanURL    string   // set after a consumed code was stripped from the URL
	SetCookies  []string // backend Set-Cookie headers to relay to the browser
}

// Flow runs bootstrap invocations. Concurrent invocations for the same
// session share one in-flight run via singleflight; the original page flow
// left rapid remounts unguarded, the front does not.
type Flow struct {
	api      *backend.Client
	site     *siteconfig.Service
	states   *authstate.Store
	sessions storage.Storage
	loading  notify.Loading
	single   singleflight.Group
}

// New creates a bootstrap flow
func New(api *backend.Client, site *siteconfig.Service, states *authstate.Store, sessions storage.Storage, loading notify.Loading) *Flow {
	return &Flow{
		api:      api,
		site:     site,
		states:   states,
		sessions: sessions,
		loading:  loading,
	}
}

// States exposes the per-session auth state store
func (f *Flow) States() *authstate.Store {
	return f.states
}

// Run executes one bootstrap invocation for the session
func (f *Flow) Run(ctx context.Context, req Request) (*Result, error) {
	v, err, _ := f.single.Do(req.SessionID, func() (any, error) {
		return f.run(ctx, req)
	})
	result, _ := v.(*Result)
	if result == nil {
		result = &Result{State: f.states.Get(req.SessionID)}
	}
	return result, err
}

func (f *Flow) run(ctx context.Context, req Request) (result *Result, err error) {
	f.states.BeginBootstrap(req.SessionID)
	f.loading.Show(loadingText)

	// The Alipay bridge leg keeps the in-flight flag; its callback clears it.
	// Runs after the recover handler, so the returned state is always final.
	bridgePending := false
	defer func() {
		if !bridgePending {
			f.states.FinishBootstrap(req.SessionID)
			f.loading.Hide()
		}
		if result != nil {
			result.State = f.states.Get(req.SessionID)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			log.LogErrorWithFields("bootstrap", "Panic during bootstrap", map[string]any{
				"session_id": req.SessionID,
				"panic":      fmt.Sprintf("%v", r),
			})
			f.states.SetError(req.SessionID, genericAuthErrorMessage)
			bridgePending = false
			result = &Result{Env: browserenv.Classify(req.UserAgent)}
			err = fmt.Errorf("bootstrap panic: %v", r)
		}
	}()

	env := browserenv.Classify(req.UserAgent)
	result = &Result{Env: env}

	// Probe the backend session first. A live session short-circuits the
	// whole provider branch, even when a code sits in the URL.
	probe, probeErr := f.api.CheckFrontendAuth(ctx, req.CookieHeader)
	if probeErr == nil && probe.Authenticated() {
		f.states.SetAuthenticated(req.SessionID, probe.User)
		f.persistSession(ctx, req, probe.User, true)
		result.SetCookies = probe.SetCookies
		result.State = f.states.Get(req.SessionID)
		return result, nil
	}
	if probeErr != nil {
		// A failed probe is a normal logged-out outcome, not a fault
		log.LogDebugWithFields("bootstrap", "Session probe failed", map[string]any{
			"session_id": req.SessionID,
			"error":      probeErr.Error(),
		})
	}
	f.states.SetUnauthenticated(req.SessionID)
	f.persistSession(ctx, req, nil, false)

	if env == browserenv.Generic {
		// Outside any in-app browser: wait for the user to log in manually
		result.State = f.states.Get(req.SessionID)
		return result, nil
	}

	cfg, err := f.site.For(ctx, req.SessionID)
	if err != nil {
		f.states.SetError(req.SessionID, genericAuthErrorMessage)
		result.State = f.states.Get(req.SessionID)
		return result, fmt.Errorf("loading site config: %w", err)
	}

	prov, err := provider.ForEnv(env, cfg, f.api)
	if err != nil {
		if errors.Is(err, provider.ErrNotConfigured) {
			// Configuration error: surface the message, halt without navigating
			f.states.SetError(req.SessionID, provider.NotConfiguredMessageFor(env))
			result.State = f.states.Get(req.SessionID)
			return result, nil
		}
		f.states.SetError(req.SessionID, genericAuthErrorMessage)
		result.State = f.states.Get(req.SessionID)
		return result, err
	}

	if code := req.URL.Query().Get(prov.CodeParam()); code != "" {
		return f.exchange(ctx, req, prov, code, result)
	}

	authURL, err := prov.AuthorizeURL(req.URL.String())
	switch {
	case err == nil:
		result.Action = ActionRedirect
		result.RedirectURL = authURL
	case errors.Is(err, provider.ErrBridgeAuthorization):
		result.Action = ActionBridge
		bridgePending = true
	case errors.Is(err, provider.ErrNotConfigured):
		f.states.SetError(req.SessionID, prov.NotConfiguredMessage())
	default:
		f.states.SetError(req.SessionID, genericAuthErrorMessage)
		result.State = f.states.Get(req.SessionID)
		return result, err
	}
	result.State = f.states.Get(req.SessionID)
	return result, nil
}

// RunWithCode finishes a bridge authorization: the bridge page posted back an
// auth code and this leg exchanges it. Clears the in-flight flag it inherited
// from the bridge leg on every path.
func (f *Flow) RunWithCode(ctx context.Context, req Request, code string) (*Result, error) {
	v, err, _ := f.single.Do(req.SessionID+":code", func() (any, error) {
		return f.runWithCode(ctx, req, code)
	})
	result, _ := v.(*Result)
	if result == nil {
		result = &Result{State: f.states.Get(req.SessionID)}
	}
	return result, err
}

func (f *Flow) runWithCode(ctx context.Context, req Request, code string) (result *Result, err error) {
	defer func() {
		f.states.FinishBootstrap(req.SessionID)
		f.loading.Hide()
		if result != nil {
			result.State = f.states.Get(req.SessionID)
		}
	}()

	env := browserenv.Classify(req.UserAgent)
	result = &Result{Env: env}

	cfg, err := f.site.For(ctx, req.SessionID)
	if err != nil {
		f.states.SetError(req.SessionID, genericAuthErrorMessage)
		return result, fmt.Errorf("loading site config: %w", err)
	}

	prov, err := provider.ForEnv(env, cfg, f.api)
	if err != nil {
		f.states.SetError(req.SessionID, provider.NotConfiguredMessageFor(env))
		return result, err
	}

	return f.exchange(ctx, req, prov, code, result)
}

// FailBridge aborts a pending bridge authorization. The bridge page reports
// here when the host app lacks the auth code API or refused the request. The
// in-flight flag inherited from the bridge leg is cleared and the provider's
// failure message recorded, so the next bootstrap does not loop back into the
// bridge and the page can offer manual login.
func (f *Flow) FailBridge(ctx context.Context, req Request, reason string) *Result {
	log.LogWarnWithFields("bootstrap", "Bridge authorization failed", map[string]any{
		"session_id": req.SessionID,
		"reason":     reason,
	})

	env := browserenv.Classify(req.UserAgent)
	f.states.SetError(req.SessionID, provider.FailureMessageFor(env))
	f.states.FinishBootstrap(req.SessionID)
	f.loading.Hide()

	return &Result{State: f.states.Get(req.SessionID), Env: env}
}

// exchange trades an authorization code for a backend session. Failure is a
// dead end: the provider-specific message is recorded and no further redirect
// happens, so the page can offer manual login. The error is also returned to
// the caller (both provider flows propagate, unlike the original asymmetry).
func (f *Flow) exchange(ctx context.Context, req Request, prov provider.Provider, code string, result *Result) (*Result, error) {
	res, err := prov.Exchange(ctx, req.CookieHeader, code)
	if err != nil || !res.Success {
		f.states.SetError(req.SessionID, prov.FailureMessage())
		result.State = f.states.Get(req.SessionID)
		if err == nil {
			err = fmt.Errorf("%s code exchange rejected: %s", prov.Kind(), res.Message)
		}
		return result, err
	}

	f.states.SetAuthenticated(req.SessionID, res.User)
	f.persistSession(ctx, req, res.User, true)

	result.SetCookies = res.SetCookies
	result.CleanURL = StripConsumedCode(req.URL, prov.CodeParam())
	result.State = f.states.Get(req.SessionID)

	log.LogInfoWithFields("bootstrap", "Code exchange succeeded", map[string]any{
		"session_id": req.SessionID,
		"provider":   prov.Kind().String(),
	})
	return result, nil
}

// Logout tears down the backend session and resets local state. Idempotent:
// a second call is a no-op that still succeeds. Backend transport errors are
// logged, never surfaced.
func (f *Flow) Logout(ctx context.Context, sessionID, cookieHeader string) []string {
	setCookies, err := f.api.Logout(ctx, cookieHeader)
	if err != nil {
		log.LogWarnWithFields("bootstrap", "Backend logout failed", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}

	f.states.Reset(sessionID)
	if err := f.sessions.DeleteSession(ctx, sessionID); err != nil {
		log.LogWarnWithFields("bootstrap", "Failed to delete session record", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
	return setCookies
}

func (f *Flow) persistSession(ctx context.Context, req Request, user *backend.User, loggedIn bool) {
	now := time.Now()

	session, err := f.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		session = &storage.Session{ID: req.SessionID, Created: now}
	}
	session.User = user
	session.LoggedIn = loggedIn
	session.LastSeen = now
	session.UserAgent = req.UserAgent
	if req.AgentTag != "" {
		session.AgentTag = req.AgentTag
	}

	if err := f.sessions.PutSession(ctx, session); err != nil {
		log.LogWarnWithFields("bootstrap", "Failed to persist session record", map[string]any{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
	}
}

// StripConsumedCode returns the URL with the consumed authorization code
// parameter (and any accompanying state) removed, preventing replay on reload.
func StripConsumedCode(u *url.URL, codeParam string) string {
	clean := *u
	q := clean.Query()
	q.Del(codeParam)
	q.Del("state")
	clean.RawQuery = q.Encode()
	return clean.String()
}
