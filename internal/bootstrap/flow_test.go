package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigdata-query/query-front/internal/authstate"
	"github.com/bigdata-query/query-front/internal/backend"
	"github.com/bigdata-query/query-front/internal/browserenv"
	"github.com/bigdata-query/query-front/internal/siteconfig"
	"github.com/bigdata-query/query-front/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wechatUA  = "Mozilla/5.0 MicroMessenger/8.0.40"
	alipayUA  = "Mozilla/5.0 AlipayClient/10.5.20"
	genericUA = "Mozilla/5.0 Chrome/120.0"
)

// fakeBackend scripts the platform backend for flow tests
type fakeBackend struct {
	mu          sync.Mutex
	probeBody   string
	probeDelay  time.Duration
	loginBody   string
	statusBody  string
	statusCode  int
	probeCalls  atomic.Int32
	loginCalls  atomic.Int32
	logoutCalls atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		probeBody:  `{"code":1}`,
		loginBody:  `{"success":true,"userInfo":{"id":9}}`,
		statusBody: `{"code":0,"data":{"ready":true,"appid":"wx123","alipay_appid":"ap456"}}`,
		statusCode: http.StatusOK,
	}
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/frontend/auth-check/", func(w http.ResponseWriter, r *http.Request) {
		f.probeCalls.Add(1)
		f.mu.Lock()
		body, delay := f.probeBody, f.probeDelay
		f.mu.Unlock()
		time.Sleep(delay)
		_, _ = w.Write([]byte(body))
	})
	login := func(w http.ResponseWriter, r *http.Request) {
		f.loginCalls.Add(1)
		f.mu.Lock()
		body := f.loginBody
		f.mu.Unlock()
		w.Header().Add("Set-Cookie", "sessionid=fresh; Path=/")
		_, _ = w.Write([]byte(body))
	}
	mux.HandleFunc("/frontend/login/wechat/", login)
	mux.HandleFunc("/frontend/login/alipay/", login)
	mux.HandleFunc("/frontend/logout/", func(w http.ResponseWriter, r *http.Request) {
		f.logoutCalls.Add(1)
		_, _ = w.Write([]byte(`{"code":0}`))
	})
	mux.HandleFunc("/frontend/status/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		body, code := f.statusBody, f.statusCode
		f.mu.Unlock()
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	})
	return mux
}

// countingLoading records Show/Hide calls
type countingLoading struct {
	shows atomic.Int32
	hides atomic.Int32
}

func (l *countingLoading) Show(string) { l.shows.Add(1) }
func (l *countingLoading) Hide()       { l.hides.Add(1) }

func newTestFlow(t *testing.T, fake *fakeBackend) (*Flow, *countingLoading, storage.Storage) {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	api := backend.New(server.URL)
	loading := &countingLoading{}
	store := storage.NewMemoryStorage()
	flow := New(api, siteconfig.NewService(api), authstate.NewStore(), store, loading)
	return flow, loading, store
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRun_ProbeSuccessShortCircuits(t *testing.T) {
	fake := newFakeBackend()
	fake.probeBody = `{"code":0,"data":{"id":7,"nickname":"x"}}`
	flow, loading, store := newTestFlow(t, fake)

	// A code in the URL must not trigger an exchange when the session is live
	result, err := flow.Run(context.Background(), Request{
		SessionID: "s1",
		UserAgent: wechatUA,
		URL:       mustURL(t, "https://site.example/?code=stale-code&state=STATE"),
	})
	require.NoError(t, err)

	assert.Equal(t, ActionNone, result.Action)
	assert.True(t, result.State.IsLoggedIn)
	assert.False(t, result.State.IsLoading)
	assert.Equal(t, int64(7), result.State.User.ID)
	assert.Equal(t, int32(0), fake.loginCalls.Load())
	assert.Equal(t, int32(1), loading.shows.Load())
	assert.Equal(t, int32(1), loading.hides.Load())

	session, err := store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, session.LoggedIn)
}

func TestRun_GenericBrowserWaitsForManualLogin(t *testing.T) {
	fake := newFakeBackend()
	flow, _, _ := newTestFlow(t, fake)

	result, err := flow.Run(context.Background(), Request{
		SessionID: "s1",
		UserAgent: genericUA,
		URL:       mustURL(t, "https://site.example/"),
	})
	require.NoError(t, err)

	assert.Equal(t, ActionNone, result.Action)
	assert.False(t, result.State.IsLoggedIn)
	assert.False(t, result.State.IsLoading)
	assert.Empty(t, result.State.Error)
	assert.Equal(t, browserenv.Generic, result.Env)
}

func TestRun_WechatRedirectsToAuthorize(t *testing.T) {
	fake := newFakeBackend()
	flow, _, _ := newTestFlow(t, fake)

	result, err := flow.Run(context.Background(), Request{
		SessionID: "s1",
		UserAgent: wechatUA,
		URL:       mustURL(t, "https://site.example/report?id=5#frag"),
	})
	require.NoError(t, err)

	assert.Equal(t, ActionRedirect, result.Action)
	assert.Contains(t, result.RedirectURL, "appid=wx123")
	assert.Contains(t, result.RedirectURL, "redirect_uri=https%3A%2F%2Fsite.example%2Freport%3Fid%3D5")
	assert.NotContains(t, result.RedirectURL, "frag")
	assert.Empty(t, result.State.Error)
}

func TestRun_WechatMissingAppIDHaltsWithoutNavigation(t *testing.T) {
	fake := newFakeBackend()
	fake.statusBody = `{"code":0,"data":{"ready":true}}`
	flow, _, _ := newTestFlow(t, fake)

	result, err := flow.Run(context.Background(), Request{
		SessionID: "s1",
		UserAgent: wechatUA,
		URL:       mustURL(t, "https://site.example/"),
	})
	require.NoError(t, err)

	assert.Equal(t, ActionNone, result.Action)
	assert.Equal(t, "微信登录未配置", result.State.Error)
	assert.False(t, result.State.IsLoading)
}

func TestRun_WechatCodeExchangeSuccess(t *testing.T) {
	fake := newFakeBackend()
	flow, _, _ := newTestFlow(t, fake)

	result, err := flow.Run(context.Background(), Request{
		SessionID: "s1",
		UserAgent: wechatUA,
		URL:       mustURL(t, "https://site.example/report?code=wx-code-1&state=STATE&id=5"),
	})
	require.NoError(t, err)

	assert.Equal(t, ActionNone, result.Action)
	assert.True(t, result.State.IsLoggedIn)
	assert.Equal(t, int64(9), result.State.User.ID)
	assert.Empty(t, result.State.Error)

	// Consumed code and state are stripped; other parameters survive
	assert.NotContains(t, result.CleanURL, "code=")
	assert.NotContains(t, result.CleanURL, "state=")
	assert.Contains(t, result.CleanURL, "id=5")

	require.NotEmpty(t, result.SetCookies)
	assert.Contains(t, result.SetCookies[0], "sessionid=fresh")
}

func TestRun_WechatCodeExchangeFailureIsDeadEnd(t *testing.T) {
	fake := newFakeBackend()
	fake.loginBody = `{"success":false,"message":"code expired"}`
	flow, _, _ := newTestFlow(t, fake)

	result, err := flow.Run(context.Background(), Request{
		SessionID: "s1",
		UserAgent: wechatUA,
		URL:       mustURL(t, "https://site.example/?code=wx-code-1"),
	})
	require.Error(t, err)

	assert.Equal(t, ActionNone, result.Action)
	assert.False(t, result.State.IsLoggedIn)
	assert.False(t, result.State.IsLoading)
	assert.Equal(t, "微信自动登录失败，请稍后重试或手动登录。", result.State.Error)
	assert.Empty(t, result.RedirectURL)
}

func TestRun_AlipayWithoutCodeServesBridge(t *testing.T) {
	fake := newFakeBackend()
	flow, loading, _ := newTestFlow(t, fake)

	result, err := flow.Run(context.Background(), Request{
		SessionID: "s1",
		UserAgent: alipayUA,
		URL:       mustURL(t, "https://site.example/"),
	})
	require.NoError(t, err)

	assert.Equal(t, ActionBridge, result.Action)
	// The bridge leg keeps the in-flight flag until its callback resolves
	assert.True(t, flow.States().Get("s1").IsLoading)
	assert.Equal(t, int32(0), loading.hides.Load())
}

func TestRunWithCode_AlipayBridgeCallback(t *testing.T) {
	fake := newFakeBackend()
	flow, loading, _ := newTestFlow(t, fake)

	_, err := flow.Run(context.Background(), Request{
		SessionID: "s1",
		UserAgent: alipayUA,
		URL:       mustURL(t, "https://site.example/"),
	})
	require.NoError(t, err)

	result, err := flow.RunWithCode(context.Background(), Request{
		SessionID: "s1",
		UserAgent: alipayUA,
		URL:       mustURL(t, "https://site.example/"),
	}, "ap-code-1")
	require.NoError(t, err)

	assert.True(t, result.State.IsLoggedIn)
	assert.Equal(t, int64(9), result.State.User.ID)
	assert.False(t, flow.States().Get("s1").IsLoading)
	assert.Equal(t, loading.shows.Load(), loading.hides.Load())
}

func TestFailBridge_ClearsLoadingAndSetsError(t *testing.T) {
	fake := newFakeBackend()
	flow, loading, _ := newTestFlow(t, fake)

	req := Request{
		SessionID: "s1",
		UserAgent: alipayUA,
		URL:       mustURL(t, "https://site.example/"),
	}
	result, err := flow.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ActionBridge, result.Action)
	require.True(t, flow.States().Get("s1").IsLoading)

	// The bridge page could not get an auth code from the host app. Without
	// this report the session would stay marked as loading forever and every
	// later bootstrap would serve the bridge again.
	result = flow.FailBridge(context.Background(), req, "bridge api unavailable")

	assert.False(t, result.State.IsLoading)
	assert.Equal(t, "支付宝自动登录失败，请稍后重试或手动登录。", result.State.Error)
	assert.Equal(t, loading.shows.Load(), loading.hides.Load())
	assert.Equal(t, int32(0), fake.loginCalls.Load())
}

func TestRun_AlipayCodeInURL(t *testing.T) {
	fake := newFakeBackend()
	flow, _, _ := newTestFlow(t, fake)

	result, err := flow.Run(context.Background(), Request{
		SessionID: "s1",
		UserAgent: alipayUA,
		URL:       mustURL(t, "https://site.example/?auth_code=ap-code-2"),
	})
	require.NoError(t, err)

	assert.True(t, result.State.IsLoggedIn)
	assert.Equal(t, int64(9), result.State.User.ID)
	assert.NotContains(t, result.CleanURL, "auth_code")
}

func TestRun_SiteConfigFetchErrorSetsGenericError(t *testing.T) {
	fake := newFakeBackend()
	fake.statusCode = http.StatusInternalServerError
	flow, _, _ := newTestFlow(t, fake)

	result, err := flow.Run(context.Background(), Request{
		SessionID: "s1",
		UserAgent: wechatUA,
		URL:       mustURL(t, "https://site.example/"),
	})
	require.Error(t, err)

	assert.Equal(t, "认证时发生错误", result.State.Error)
	assert.False(t, result.State.IsLoading)
}

func TestRun_ConcurrentInvocationsShareOneProbe(t *testing.T) {
	fake := newFakeBackend()
	fake.probeDelay = 100 * time.Millisecond
	flow, _, _ := newTestFlow(t, fake)

	req := Request{
		SessionID: "s1",
		UserAgent: genericUA,
		URL:       mustURL(t, "https://site.example/"),
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := flow.Run(context.Background(), req)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fake.probeCalls.Load())
}

func TestLogout_Idempotent(t *testing.T) {
	fake := newFakeBackend()
	fake.probeBody = `{"code":0,"data":{"id":7}}`
	flow, _, store := newTestFlow(t, fake)

	_, err := flow.Run(context.Background(), Request{
		SessionID: "s1",
		UserAgent: genericUA,
		URL:       mustURL(t, "https://site.example/"),
	})
	require.NoError(t, err)
	require.True(t, flow.States().Get("s1").IsLoggedIn)

	flow.Logout(context.Background(), "s1", "sessionid=abc")
	state := flow.States().Get("s1")
	assert.False(t, state.IsLoggedIn)
	assert.Nil(t, state.User)

	// Second logout is a no-op that still succeeds
	flow.Logout(context.Background(), "s1", "sessionid=abc")
	state = flow.States().Get("s1")
	assert.False(t, state.IsLoggedIn)
	assert.Nil(t, state.User)

	assert.Equal(t, int32(2), fake.logoutCalls.Load())
	_, err = store.GetSession(context.Background(), "s1")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestStripConsumedCode(t *testing.T) {
	u := mustURL(t, "https://site.example/report?code=abc&state=STATE&id=5")
	clean := StripConsumedCode(u, "code")
	assert.Equal(t, "https://site.example/report?id=5", clean)
}
