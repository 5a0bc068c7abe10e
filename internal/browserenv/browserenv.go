// Package browserenv classifies the hosting browser from its User-Agent string.
package browserenv

import "strings"

// Env identifies the kind of browser a request came from
type Env string

const (
	// Generic is any browser outside a known in-app web view
	Generic Env = "generic"
	// Wechat is the WeChat in-app browser (MicroMessenger)
	Wechat Env = "wechat"
	// Alipay is the Alipay in-app browser (AlipayClient)
	Alipay Env = "alipay"
)

func (e Env) String() string {
	return string(e)
}

// Classify returns the environment for a User-Agent string.
//
// Matching is case-insensitive substring search. Alipay is checked before
// WeChat: the Alipay web view embeds WebKit UA fragments that WeChat-style
// patterns can shadow, so the more specific pattern must win. The order is
// fixed; tests pin it. An empty User-Agent classifies as Generic.
func Classify(userAgent string) Env {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "alipayclient"):
		return Alipay
	case strings.Contains(ua, "micromessenger"):
		return Wechat
	default:
		return Generic
	}
}
