package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bigdata-query/query-front/internal/authstate"
	"github.com/bigdata-query/query-front/internal/backend"
	"github.com/bigdata-query/query-front/internal/bootstrap"
	"github.com/bigdata-query/query-front/internal/config"
	"github.com/bigdata-query/query-front/internal/cookie"
	"github.com/bigdata-query/query-front/internal/guard"
	"github.com/bigdata-query/query-front/internal/notify"
	"github.com/bigdata-query/query-front/internal/siteconfig"
	"github.com/bigdata-query/query-front/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	wechatUA  = "Mozilla/5.0 MicroMessenger/8.0.40"
	alipayUA  = "Mozilla/5.0 AlipayClient/10.5.20"
	genericUA = "Mozilla/5.0 Chrome/120.0"
)

type backendScript struct {
	probeBody  string
	statusBody string
	adminBody  string
	adminCode  int
}

func defaultScript() *backendScript {
	return &backendScript{
		probeBody:  `{"code":1}`,
		statusBody: `{"code":0,"data":{"ready":true,"appid":"wx123","alipay_appid":"ap456"}}`,
		adminBody:  `{"code":0,"data":{"id":1}}`,
		adminCode:  http.StatusOK,
	}
}

func (b *backendScript) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/frontend/auth-check/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(b.probeBody))
	})
	mux.HandleFunc("/frontend/status/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(b.statusBody))
	})
	mux.HandleFunc("/admin/auth-check/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(b.adminCode)
		_, _ = w.Write([]byte(b.adminBody))
	})
	mux.HandleFunc("/agent/auth-check/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(b.adminCode)
		_, _ = w.Write([]byte(b.adminBody))
	})
	mux.HandleFunc("/frontend/login/wechat/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"userInfo":{"id":9}}`))
	})
	mux.HandleFunc("/frontend/logout/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "sessionid=deleted; Max-Age=0")
		_, _ = w.Write([]byte(`{"code":0}`))
	})
	return mux
}

func newTestServer(t *testing.T, script *backendScript) http.Handler {
	t.Helper()
	h, _ := newTestServerWithStore(t, script)
	return h
}

func newTestServerWithStore(t *testing.T, script *backendScript) (http.Handler, storage.Storage) {
	t.Helper()
	upstream := httptest.NewServer(script.handler())
	t.Cleanup(upstream.Close)

	hashed, err := bcrypt.GenerateFromPassword([]byte("ops-password"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.FrontConfig{
		BaseURL:        "https://site.example",
		Addr:           ":0",
		BackendBaseURL: upstream.URL,
		AdminPath:      config.DefaultAdminPath,
		SigningKey:     config.Secret("0123456789abcdef0123456789abcdef"),
		OpsAuth: &config.OpsAuthConfig{
			Username:       "ops",
			HashedPassword: config.Secret(hashed),
		},
	}

	api := backend.New(upstream.URL)
	site := siteconfig.NewService(api)
	store := storage.NewMemoryStorage()
	flow := bootstrap.New(api, site, authstate.NewStore(), store, notify.NopLoading{})
	guards := guard.New(api, cfg.AdminPath)

	return NewServer(cfg, flow, guards, site, store).Handler(), store
}

func do(h http.Handler, method, target, userAgent string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_IssuesSessionCookie(t *testing.T) {
	h := newTestServer(t, defaultScript())

	rec := do(h, http.MethodGet, "/health", genericUA)

	require.Equal(t, http.StatusOK, rec.Code)
	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookie.SessionCookie {
			found = true
			assert.True(t, c.HttpOnly)
			assert.NotEmpty(t, c.Value)
		}
	}
	assert.True(t, found, "expected a session cookie on first contact")
}

func TestBootstrap_WechatRedirect(t *testing.T) {
	h := newTestServer(t, defaultScript())

	rec := do(h, http.MethodGet, "/frontend/bootstrap/?page=https%3A%2F%2Fsite.example%2F", wechatUA)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"action":"redirect"`)
	assert.Contains(t, body, "appid=wx123")
	assert.Contains(t, body, `"env":"wechat"`)
}

func TestBootstrap_AlipayBridgeURL(t *testing.T) {
	h := newTestServer(t, defaultScript())

	rec := do(h, http.MethodGet, "/frontend/bootstrap/?page=https%3A%2F%2Fsite.example%2Freport", alipayUA)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"action":"bridge"`)
	assert.Contains(t, body, "/frontend/alipay-bridge/?page=")
}

func TestBootstrap_MaintenanceRedirectWhenNotReady(t *testing.T) {
	script := defaultScript()
	script.statusBody = `{"code":0,"data":{"ready":false,"reason":"config_incomplete","missing":["wechat_appid"]}}`
	h := newTestServer(t, script)

	rec := do(h, http.MethodGet, "/frontend/bootstrap/", genericUA)

	require.Equal(t, http.StatusFound, rec.Code)
	location := rec.Header().Get("Location")
	assert.Contains(t, location, siteconfig.MaintenancePath)
	assert.Contains(t, location, "reason=config_incomplete")
	assert.Contains(t, location, "missing=wechat_appid")
}

func TestBootstrap_MaintenanceRedirectOutsideWechat(t *testing.T) {
	script := defaultScript()
	script.statusBody = `{"code":0,"data":{"ready":true,"wechat_access_required":true,"appid":"wx123"}}`
	h := newTestServer(t, script)

	rec := do(h, http.MethodGet, "/frontend/bootstrap/", genericUA)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "reason=wechat_only")
}

func TestMaintenancePage(t *testing.T) {
	h := newTestServer(t, defaultScript())

	rec := do(h, http.MethodGet, "/maintenance?reason=wechat_only", genericUA)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "请在微信中打开")

	rec = do(h, http.MethodGet, "/maintenance?reason=server_error", genericUA)
	assert.Contains(t, rec.Body.String(), "服务暂不可用")
}

func TestAgentTagPersistedFromQuery(t *testing.T) {
	h := newTestServer(t, defaultScript())

	rec := do(h, http.MethodGet, "/frontend/bootstrap/?agent=partner7", genericUA)

	var tag *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookie.AgentTagCookie {
			tag = c
		}
	}
	require.NotNil(t, tag)
	assert.Equal(t, "partner7", tag.Value)
	assert.Equal(t, int(cookie.AgentTagMaxAge.Seconds()), tag.MaxAge)
}

func TestAgentTagFromNestedPageURL(t *testing.T) {
	h, store := newTestServerWithStore(t, defaultScript())

	// A referral link lands on the site and the page layer forwards its own
	// URL in the page parameter, tag and all
	rec := do(h, http.MethodGet,
		"/frontend/bootstrap/?page=https%3A%2F%2Fsite.example%2F%3Fagent%3Dpartner9", genericUA)

	require.Equal(t, http.StatusOK, rec.Code)
	var tag *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookie.AgentTagCookie {
			tag = c
		}
	}
	require.NotNil(t, tag)
	assert.Equal(t, "partner9", tag.Value)

	sessions, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "partner9", sessions[0].AgentTag)
}

func TestAlipayBridgePage(t *testing.T) {
	h := newTestServer(t, defaultScript())

	rec := do(h, http.MethodGet, "/frontend/alipay-bridge/?page=https%3A%2F%2Fsite.example%2F", alipayUA)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "my.getAuthCode")
	// The page must report a missing bridge API back to the callback
	assert.Contains(t, rec.Body.String(), "bridge api unavailable")

	// Outside the Alipay shell the bridge page is useless
	rec = do(h, http.MethodGet, "/frontend/alipay-bridge/", genericUA)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://site.example/", rec.Header().Get("Location"))
}

func TestAlipayBridgeCallback(t *testing.T) {
	h := newTestServer(t, defaultScript())

	req := httptest.NewRequest(http.MethodPost, "/frontend/alipay-bridge/",
		strings.NewReader(`{"auth_code":"","page":"https://site.example/"}`))
	req.Header.Set("User-Agent", alipayUA)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlipayBridgeCallback_FailureReport(t *testing.T) {
	h := newTestServer(t, defaultScript())

	req := httptest.NewRequest(http.MethodPost, "/frontend/alipay-bridge/",
		strings.NewReader(`{"error":"bridge api unavailable","page":"https://site.example/"}`))
	req.Header.Set("User-Agent", alipayUA)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "支付宝自动登录失败")
	assert.Contains(t, body, `"isLoading":false`)
}

func TestLogout_RelaysBackendCookies(t *testing.T) {
	h := newTestServer(t, defaultScript())

	rec := do(h, http.MethodPost, "/frontend/logout/", genericUA)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Values("Set-Cookie"), "sessionid=deleted; Max-Age=0")
	assert.Contains(t, rec.Body.String(), `"code":0`)
}

func TestSession_ReturnsState(t *testing.T) {
	h := newTestServer(t, defaultScript())

	rec := do(h, http.MethodGet, "/frontend/session/", genericUA)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isLoggedIn":false`)
}

func TestSession_TouchesStoredRecord(t *testing.T) {
	h, store := newTestServerWithStore(t, defaultScript())

	// Bootstrap creates the stored record and issues the session cookie
	rec := do(h, http.MethodGet, "/frontend/bootstrap/", genericUA)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()

	sessions, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	before := sessions[0].LastSeen

	time.Sleep(5 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/frontend/session/", nil)
	req.Header.Set("User-Agent", genericUA)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	sessions, err = store.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].LastSeen.After(before))
}

func TestReportMap(t *testing.T) {
	h := newTestServer(t, defaultScript())

	rec := do(h, http.MethodGet, "/frontend/report-map/", genericUA)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "FLXG0V4B")
	assert.Contains(t, body, "司法涉诉")
}

func TestAdminGuard_RedirectsToLogin(t *testing.T) {
	script := defaultScript()
	script.adminCode = http.StatusUnauthorized
	script.adminBody = `{"code":401}`
	h := newTestServer(t, script)

	rec := do(h, http.MethodGet, "/"+config.DefaultAdminPath+"/users", genericUA)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/"+config.DefaultAdminPath+"/login", rec.Header().Get("Location"))

	var notice *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookie.NoticeCookie {
			notice = c
		}
	}
	require.NotNil(t, notice, "expected a flash notice cookie")
}

func TestAdminGuard_ServesShellWhenAuthenticated(t *testing.T) {
	h := newTestServer(t, defaultScript())

	rec := do(h, http.MethodGet, "/"+config.DefaultAdminPath+"/", genericUA)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "管理后台")
}

func TestOps_RequiresBasicAuth(t *testing.T) {
	h := newTestServer(t, defaultScript())

	rec := do(h, http.MethodGet, "/ops/sessions", genericUA)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/ops/sessions", nil)
	req.SetBasicAuth("ops", "wrong-password")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/ops/sessions", nil)
	req.SetBasicAuth("ops", "ops-password")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOps_LogLevel(t *testing.T) {
	h := newTestServer(t, defaultScript())

	req := httptest.NewRequest(http.MethodPost, "/ops/log-level", strings.NewReader(`{"level":"debug"}`))
	req.SetBasicAuth("ops", "ops-password")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"level":"debug"`)

	req = httptest.NewRequest(http.MethodPost, "/ops/log-level", strings.NewReader(`{"level":"nope"}`))
	req.SetBasicAuth("ops", "ops-password")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
