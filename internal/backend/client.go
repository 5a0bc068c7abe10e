// Package backend is the typed client for the data-query platform backend.
//
// The backend owns all credentials and sessions; the front forwards the
// browser's Cookie header on every call and relays Set-Cookie headers back,
// so the backend session cookie stays between the browser and the backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bigdata-query/query-front/internal/log"
)

// Backend endpoint paths
const (
	pathFrontendAuthCheck = "/frontend/auth-check/"
	pathAdminAuthCheck    = "/admin/auth-check/"
	pathAgentAuthCheck    = "/agent/auth-check/"
	pathLoginWechat       = "/frontend/login/wechat/"
	pathLoginAlipay       = "/frontend/login/alipay/"
	pathLogout            = "/frontend/logout/"
	pathSiteStatus        = "/frontend/status/"
)

// Client issues JSON requests against the platform backend
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (used by tests)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a backend client for the given base URL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the backend's {code, data, message} response shape
type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// do issues one request and decodes the envelope. cookieHeader is the raw
// Cookie header copied from the browser request ("" for cookie-less calls).
// Returns the Set-Cookie headers for relaying back to the browser.
func (c *Client) do(ctx context.Context, method, path, cookieHeader string, body any) (*envelope, []string, error) {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cookieHeader != "" {
		req.Header.Set("Cookie", cookieHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("calling backend %s: %w", path, err)
	}
	defer resp.Body.Close()

	setCookies := resp.Header.Values("Set-Cookie")

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			statusErr.Code = env.Code
			statusErr.Message = env.Message
		}
		return nil, setCookies, statusErr
	}

	if decodeErr != nil {
		return nil, setCookies, fmt.Errorf("decoding backend response from %s: %w", path, decodeErr)
	}

	return &env, setCookies, nil
}

// probe runs one auth-check call and interprets the {code, data} envelope
func (c *Client) probe(ctx context.Context, method, path, cookieHeader string) (*ProbeResult, error) {
	env, setCookies, err := c.do(ctx, method, path, cookieHeader, nil)
	if err != nil {
		return nil, err
	}

	result := &ProbeResult{Code: env.Code, SetCookies: setCookies}
	if env.Code == 0 && len(env.Data) > 0 {
		var user User
		if err := json.Unmarshal(env.Data, &user); err != nil {
			// Malformed payload is treated as not authenticated
			log.LogDebugWithFields("backend", "Malformed probe payload", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			result.Code = -1
			return result, nil
		}
		result.User = &user
	}
	return result, nil
}

// CheckFrontendAuth probes the frontend session
func (c *Client) CheckFrontendAuth(ctx context.Context, cookieHeader string) (*ProbeResult, error) {
	return c.probe(ctx, http.MethodGet, pathFrontendAuthCheck, cookieHeader)
}

// CheckAdminAuth probes the admin-scoped session
func (c *Client) CheckAdminAuth(ctx context.Context, cookieHeader string) (*ProbeResult, error) {
	return c.probe(ctx, http.MethodPost, pathAdminAuthCheck, cookieHeader)
}

// CheckAgentAuth probes the agent-scoped session
func (c *Client) CheckAgentAuth(ctx context.Context, cookieHeader string) (*ProbeResult, error) {
	return c.probe(ctx, http.MethodPost, pathAgentAuthCheck, cookieHeader)
}

// login posts an exchange request and decodes the {success, userInfo, message} result
func (c *Client) login(ctx context.Context, path, cookieHeader string, body any) (*LoginResult, error) {
	var reqBody bytes.Buffer
	if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
		return nil, fmt.Errorf("marshaling login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &reqBody)
	if err != nil {
		return nil, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cookieHeader != "" {
		req.Header.Set("Cookie", cookieHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling backend %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var result LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding login response from %s: %w", path, err)
	}
	result.SetCookies = resp.Header.Values("Set-Cookie")
	return &result, nil
}

// LoginWechat exchanges a WeChat authorization code for a backend session
func (c *Client) LoginWechat(ctx context.Context, cookieHeader, code string) (*LoginResult, error) {
	return c.login(ctx, pathLoginWechat, cookieHeader, map[string]string{"code": code})
}

// LoginAlipay exchanges an Alipay auth_code for a backend session
func (c *Client) LoginAlipay(ctx context.Context, cookieHeader, authCode string) (*LoginResult, error) {
	return c.login(ctx, pathLoginAlipay, cookieHeader, map[string]string{"auth_code": authCode})
}

// Logout tears down the backend session. The response body is ignored;
// returns the Set-Cookie headers so the front can relay cookie clears.
func (c *Client) Logout(ctx context.Context, cookieHeader string) ([]string, error) {
	_, setCookies, err := c.do(ctx, http.MethodPost, pathLogout, cookieHeader, nil)
	return setCookies, err
}

// SiteStatus fetches the site readiness report
func (c *Client) SiteStatus(ctx context.Context) (*SiteStatus, error) {
	env, _, err := c.do(ctx, http.MethodGet, pathSiteStatus, "", nil)
	if err != nil {
		return nil, err
	}

	var status SiteStatus
	if err := json.Unmarshal(env.Data, &status); err != nil {
		return nil, fmt.Errorf("decoding site status: %w", err)
	}
	return &status, nil
}
