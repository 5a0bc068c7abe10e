package backend

import "fmt"

// User is the platform user record returned by the auth endpoints. The
// backend may attach more fields; the front only relies on ID being present.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Phone    string `json:"phone,omitempty"`
	OpenID   string `json:"openid,omitempty"`
}

// ProbeResult is the outcome of an auth-check probe.
// Code 0 with a user ID means authenticated; anything else means not.
type ProbeResult struct {
	Code       int
	User       *User
	SetCookies []string
}

// Authenticated reports whether the probe proves a live session
func (p *ProbeResult) Authenticated() bool {
	return p != nil && p.Code == 0 && p.User != nil && p.User.ID != 0
}

// LoginResult is the outcome of a provider code exchange
type LoginResult struct {
	Success    bool   `json:"success"`
	User       *User  `json:"userInfo"`
	Message    string `json:"message"`
	SetCookies []string
}

// SiteStatus is the payload of /frontend/status/
type SiteStatus struct {
	Ready                bool     `json:"ready"`
	WechatAccessRequired bool     `json:"wechat_access_required"`
	Reason               string   `json:"reason"`
	Missing              []string `json:"missing"`
	Message              string   `json:"message"`
	WechatAppID          string   `json:"appid"`
	AlipayAppID          string   `json:"alipay_appid"`
}

// StatusError is returned when the backend answers with a non-2xx HTTP status.
// Guards classify it (401 vs 403 vs other) for the user-facing notice.
type StatusError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}
