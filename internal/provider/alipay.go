package provider

import (
	"context"

	"github.com/bigdata-query/query-front/internal/backend"
	"github.com/bigdata-query/query-front/internal/browserenv"
)

// Alipay authorizes through the host app's JS bridge (my.getAuthCode) rather
// than a redirect. The front serves a bridge page that requests a silent
// auth_base code and posts it back; the exchange then goes through the
// backend like the WeChat flow.
type Alipay struct {
	appID string
	api   *backend.Client
}

// NewAlipay creates the Alipay provider
func NewAlipay(appID string, api *backend.Client) *Alipay {
	return &Alipay{appID: appID, api: api}
}

func (p *Alipay) Kind() browserenv.Env {
	return browserenv.Alipay
}

func (p *Alipay) CodeParam() string {
	return "auth_code"
}

// AuthorizeURL always returns ErrBridgeAuthorization; the bridge page drives
// authorization inside the Alipay app shell.
func (p *Alipay) AuthorizeURL(string) (string, error) {
	if p.appID == "" {
		return "", ErrNotConfigured
	}
	return "", ErrBridgeAuthorization
}

func (p *Alipay) Exchange(ctx context.Context, cookieHeader, code string) (*backend.LoginResult, error) {
	return p.api.LoginAlipay(ctx, cookieHeader, code)
}

func (p *Alipay) FailureMessage() string {
	return FailureMessageFor(browserenv.Alipay)
}

func (p *Alipay) NotConfiguredMessage() string {
	return NotConfiguredMessageFor(browserenv.Alipay)
}

var _ Provider = (*Alipay)(nil)
