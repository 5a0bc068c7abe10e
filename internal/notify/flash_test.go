package notify

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigdata-query/query-front/internal/cookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlash_RoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	NewFlash(rec).Notify(KindWarning, "请先登录", "您还未登录或登录已过期")

	var value string
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookie.NoticeCookie {
			value = c.Value
		}
	}
	require.NotEmpty(t, value)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: cookie.NoticeCookie, Value: value})

	notice, ok := PopNotice(r)
	require.True(t, ok)
	assert.Equal(t, KindWarning, notice.Kind)
	assert.Equal(t, "请先登录", notice.Message)
	assert.Equal(t, "您还未登录或登录已过期", notice.Description)
}

func TestPopNotice_Missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := PopNotice(r)
	assert.False(t, ok)
}
