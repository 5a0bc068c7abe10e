package provider

import (
	"context"
	"net/url"

	"github.com/bigdata-query/query-front/internal/backend"
	"github.com/bigdata-query/query-front/internal/browserenv"
)

const wechatAuthorizeEndpoint = "https://open.weixin.qq.com/connect/oauth2/authorize"

// Wechat authorizes via the MP OAuth redirect with the snsapi_base scope.
//
// The authorize URL is built by hand: WeChat uses appid rather than the RFC
// 6749 client_id parameter and requires the #wechat_redirect fragment, so
// standard OAuth clients cannot produce it.
type Wechat struct {
	appID string
	api   *backend.Client
}

// NewWechat creates the WeChat provider
func NewWechat(appID string, api *backend.Client) *Wechat {
	return &Wechat{appID: appID, api: api}
}

func (p *Wechat) Kind() browserenv.Env {
	return browserenv.Wechat
}

func (p *Wechat) CodeParam() string {
	return "code"
}

// AuthorizeURL builds the snsapi_base authorization redirect. The callback is
// the current page URL with any fragment stripped. The state parameter is the
// fixed placeholder the backend expects; WeChat echoes it back unverified.
func (p *Wechat) AuthorizeURL(callbackURL string) (string, error) {
	if p.appID == "" {
		return "", ErrNotConfigured
	}

	redirectURI := url.QueryEscape(stripFragment(callbackURL))
	return wechatAuthorizeEndpoint +
		"?appid=" + p.appID +
		"&redirect_uri=" + redirectURI +
		"&response_type=code&scope=snsapi_base&state=STATE#wechat_redirect", nil
}

func (p *Wechat) Exchange(ctx context.Context, cookieHeader, code string) (*backend.LoginResult, error) {
	return p.api.LoginWechat(ctx, cookieHeader, code)
}

func (p *Wechat) FailureMessage() string {
	return FailureMessageFor(browserenv.Wechat)
}

func (p *Wechat) NotConfiguredMessage() string {
	return NotConfiguredMessageFor(browserenv.Wechat)
}

var _ Provider = (*Wechat)(nil)
