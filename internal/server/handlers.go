package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/bigdata-query/query-front/internal/authstate"
	"github.com/bigdata-query/query-front/internal/bootstrap"
	"github.com/bigdata-query/query-front/internal/browserenv"
	"github.com/bigdata-query/query-front/internal/cookie"
	"github.com/bigdata-query/query-front/internal/jsonwriter"
	"github.com/bigdata-query/query-front/internal/log"
	"github.com/bigdata-query/query-front/internal/reportmap"
	"github.com/bigdata-query/query-front/internal/siteconfig"
)

const bridgePath = "/frontend/alipay-bridge/"

// bootstrapResponse is what the page layer gets back from one bootstrap call
type bootstrapResponse struct {
	State       authstate.State `json:"state"`
	Env         string          `json:"env"`
	Action      string          `json:"action"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
	BridgeURL   string          `json:"bridgeUrl,omitempty"`
	CleanURL    string          `json:"cleanUrl,omitempty"`
}

func (s *Server) bootstrapRequest(r *http.Request) (bootstrap.Request, error) {
	pageURL := r.URL.Query().Get("page")
	if pageURL == "" {
		pageURL = s.cfg.BaseURL + "/"
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return bootstrap.Request{}, err
	}

	// A tag arriving on this very request has not made it into the cookie
	// jar yet, so the page URL wins over the stored cookie.
	agentTag := siteconfig.AgentTagFromQuery(u.Query())
	if agentTag == "" {
		agentTag = cookie.GetAgentTag(r)
	}

	return bootstrap.Request{
		SessionID:    SessionIDFromContext(r.Context()),
		UserAgent:    r.UserAgent(),
		URL:          u,
		CookieHeader: r.Header.Get("Cookie"),
		AgentTag:     agentTag,
	}, nil
}

func relaySetCookies(w http.ResponseWriter, setCookies []string) {
	for _, sc := range setCookies {
		w.Header().Add("Set-Cookie", sc)
	}
}

func (s *Server) writeBootstrapResult(w http.ResponseWriter, result *bootstrap.Result, pageURL string) {
	relaySetCookies(w, result.SetCookies)

	resp := bootstrapResponse{
		State:       result.State,
		Env:         result.Env.String(),
		Action:      result.Action.String(),
		RedirectURL: result.RedirectURL,
		CleanURL:    result.CleanURL,
	}
	if result.Action == bootstrap.ActionBridge {
		resp.BridgeURL = bridgePath + "?page=" + url.QueryEscape(pageURL)
	}
	_ = jsonwriter.WriteData(w, resp)
}

// handleBootstrap runs one bootstrap invocation. Flow errors are not HTTP
// errors: the state already carries the user-facing message, so the page
// layer always gets a normal envelope.
func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	req, err := s.bootstrapRequest(r)
	if err != nil {
		jsonwriter.WriteBadRequest(w, "invalid page url")
		return
	}

	result, err := s.flow.Run(r.Context(), req)
	if err != nil {
		log.LogWarnWithFields("server", "Bootstrap finished with error", map[string]any{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
	}
	s.writeBootstrapResult(w, result, req.URL.String())
}

// handleAlipayBridgePage serves the page that asks the Alipay shell for an
// auth code and posts it back to the callback
func (s *Server) handleAlipayBridgePage(w http.ResponseWriter, r *http.Request) {
	if browserenv.Classify(r.UserAgent()) != browserenv.Alipay {
		http.Redirect(w, r, s.cfg.BaseURL+"/", http.StatusFound)
		return
	}

	returnTo := r.URL.Query().Get("page")
	if returnTo == "" {
		returnTo = s.cfg.BaseURL + "/"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplates.ExecuteTemplate(w, "alipay_bridge.html", alipayBridgeData{
		ReturnTo:     returnTo,
		CallbackPath: bridgePath,
	}); err != nil {
		log.LogError("Failed to render alipay bridge page: %v", err)
	}
}

// handleAlipayBridgeCallback finishes the bridge leg. The bridge page posts
// either the auth code it obtained or the reason it could not get one; both
// clear the session's in-flight flag.
func (s *Server) handleAlipayBridgeCallback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AuthCode string `json:"auth_code"`
		Error    string `json:"error"`
		Page     string `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || (body.AuthCode == "" && body.Error == "") {
		jsonwriter.WriteBadRequest(w, "auth_code is required")
		return
	}

	pageURL := body.Page
	if pageURL == "" {
		pageURL = s.cfg.BaseURL + "/"
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		jsonwriter.WriteBadRequest(w, "invalid page url")
		return
	}

	req := bootstrap.Request{
		SessionID:    SessionIDFromContext(r.Context()),
		UserAgent:    r.UserAgent(),
		URL:          u,
		CookieHeader: r.Header.Get("Cookie"),
		AgentTag:     cookie.GetAgentTag(r),
	}

	if body.AuthCode == "" {
		result := s.flow.FailBridge(r.Context(), req, body.Error)
		s.writeBootstrapResult(w, result, pageURL)
		return
	}

	result, err := s.flow.RunWithCode(r.Context(), req, body.AuthCode)
	if err != nil {
		log.LogWarnWithFields("server", "Bridge exchange finished with error", map[string]any{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
	}
	s.writeBootstrapResult(w, result, pageURL)
}

// handleLogout tears down the backend session and local state
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionIDFromContext(r.Context())

	setCookies := s.flow.Logout(r.Context(), sessionID, r.Header.Get("Cookie"))
	relaySetCookies(w, setCookies)
	s.site.Forget(sessionID)

	_ = jsonwriter.WriteData(w, nil)
}

// handleSession returns the session's current auth state. Polls double as a
// liveness signal, so the stored record's LastSeen is bumped along the way.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionIDFromContext(r.Context())
	if err := s.sessions.TouchSession(r.Context(), sessionID, time.Now()); err != nil {
		log.LogDebugWithFields("server", "Failed to touch session record", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
	_ = jsonwriter.WriteData(w, s.flow.States().Get(sessionID))
}

// handleReportMap returns the static report rendering catalog
func (s *Server) handleReportMap(w http.ResponseWriter, r *http.Request) {
	_ = jsonwriter.WriteData(w, map[string]any{
		"catalog":             reportmap.Catalog(),
		"judicialDetailItems": reportmap.JudicialDetailItems,
	})
}

// handleMaintenance renders the maintenance page for the reason in the query
func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	data := maintenanceData{
		Missing: r.URL.Query().Get("missing"),
	}
	switch r.URL.Query().Get("reason") {
	case siteconfig.ReasonServerError:
		data.Title = "服务暂不可用"
		data.Detail = "服务器开小差了，请稍后重试"
	case siteconfig.ReasonWechatOnly:
		data.Title = "请在微信中打开"
		data.Detail = "本站仅支持在微信内访问"
	default:
		data.Title = "系统维护中"
		data.Detail = "站点配置未完成，请稍后再试"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplates.ExecuteTemplate(w, "maintenance.html", data); err != nil {
		log.LogError("Failed to render maintenance page: %v", err)
	}
}

// shellHandler serves the app shell for a page mount
func (s *Server) shellHandler(title, page string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := pageTemplates.ExecuteTemplate(w, "shell.html", shellData{Title: title, Page: page}); err != nil {
			log.LogError("Failed to render shell page: %v", err)
		}
	})
}

// handleOpsSessions lists the stored front sessions
func (s *Server) handleOpsSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListSessions(r.Context())
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "failed to list sessions")
		return
	}
	_ = jsonwriter.WriteData(w, sessions)
}

// handleOpsLogLevel changes the log level at runtime
func (s *Server) handleOpsLogLevel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonwriter.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := log.SetLogLevel(body.Level); err != nil {
		jsonwriter.WriteBadRequest(w, err.Error())
		return
	}
	_ = jsonwriter.WriteData(w, map[string]string{"level": log.GetLogLevel()})
}
