// Package provider abstracts the in-app-browser identity providers.
//
// Each provider either produces a full-page authorization redirect (WeChat)
// or authorizes through the host app's JS bridge (Alipay), and exchanges the
// resulting authorization code for a backend session. Exchange failures are
// always propagated to the caller; the flow records the provider's
// user-facing message and halts without redirecting.
package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/bigdata-query/query-front/internal/backend"
	"github.com/bigdata-query/query-front/internal/browserenv"
	"github.com/bigdata-query/query-front/internal/siteconfig"
)

// ErrNotConfigured is returned when the provider's app ID is missing from
// the site config. The flow surfaces it as "login not configured" and stops
// without navigating.
var ErrNotConfigured = errors.New("provider app id not configured")

// ErrBridgeAuthorization is returned by AuthorizeURL for providers that
// authorize through an in-app JS bridge instead of a redirect.
var ErrBridgeAuthorization = errors.New("provider authorizes via in-app bridge")

// Provider is one in-app-browser identity provider
type Provider interface {
	// Kind returns the browser environment this provider serves
	Kind() browserenv.Env

	// CodeParam is the URL query parameter carrying this provider's
	// authorization code ("code" for WeChat, "auth_code" for Alipay)
	CodeParam() string

	// AuthorizeURL builds the full-page authorization redirect for the given
	// callback URL. Bridge-based providers return ErrBridgeAuthorization.
	AuthorizeURL(callbackURL string) (string, error)

	// Exchange trades an authorization code for a backend session
	Exchange(ctx context.Context, cookieHeader, code string) (*backend.LoginResult, error)

	// FailureMessage is the user-facing message shown when the exchange fails
	FailureMessage() string

	// NotConfiguredMessage is the user-facing message when the app ID is missing
	NotConfiguredMessage() string
}

// ForEnv returns the provider for an in-app browser environment.
// Returns ErrNotConfigured when the site config lacks the provider's app ID.
func ForEnv(env browserenv.Env, cfg *siteconfig.SiteConfig, api *backend.Client) (Provider, error) {
	switch env {
	case browserenv.Wechat:
		if cfg.WechatAppID == "" {
			return nil, ErrNotConfigured
		}
		return NewWechat(cfg.WechatAppID, api), nil
	case browserenv.Alipay:
		if cfg.AlipayAppID == "" {
			return nil, ErrNotConfigured
		}
		return NewAlipay(cfg.AlipayAppID, api), nil
	default:
		return nil, errors.New("no provider for environment " + env.String())
	}
}

// NotConfiguredMessageFor returns the configuration-error message for an
// environment without needing a constructed provider.
func NotConfiguredMessageFor(env browserenv.Env) string {
	switch env {
	case browserenv.Wechat:
		return "微信登录未配置"
	case browserenv.Alipay:
		return "支付宝登录未配置"
	default:
		return "登录未配置"
	}
}

// FailureMessageFor returns the auto-login failure message for an environment
// without needing a constructed provider. Used when authorization fails before
// a provider exists, such as a bridge page reporting a missing host API.
func FailureMessageFor(env browserenv.Env) string {
	switch env {
	case browserenv.Wechat:
		return "微信自动登录失败，请稍后重试或手动登录。"
	case browserenv.Alipay:
		return "支付宝自动登录失败，请稍后重试或手动登录。"
	default:
		return "认证失败，请稍后重试"
	}
}

// stripFragment removes the URL fragment; authorization callbacks must not
// carry one
func stripFragment(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
