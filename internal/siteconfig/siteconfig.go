// Package siteconfig fetches the site readiness report and decides the
// maintenance redirect, and extracts agent tags from URL queries.
package siteconfig

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/bigdata-query/query-front/internal/backend"
	"github.com/bigdata-query/query-front/internal/browserenv"
	"github.com/bigdata-query/query-front/internal/log"
)

// MaintenancePath is where browsers are sent when the site cannot serve them
const MaintenancePath = "/maintenance"

// Redirect reasons surfaced on the maintenance page
const (
	ReasonServerError      = "server_error"
	ReasonWechatOnly       = "wechat_only"
	ReasonConfigIncomplete = "config_incomplete"
)

// SiteConfig is the per-session view of the site readiness report.
// Immutable after fetch within one front session.
type SiteConfig struct {
	WechatAppID          string
	AlipayAppID          string
	WechatAccessRequired bool
	Ready                bool
	Reason               string
	Missing              []string
}

// Service fetches the site config once per front session and caches it
type Service struct {
	api   *backend.Client
	mu    sync.Mutex
	cache map[string]*SiteConfig
}

// NewService creates a site config service
func NewService(api *backend.Client) *Service {
	return &Service{
		api:   api,
		cache: make(map[string]*SiteConfig),
	}
}

// For returns the session's site config, fetching it on first use.
// Fetch failures are not cached so a reload can retry.
func (s *Service) For(ctx context.Context, sessionID string) (*SiteConfig, error) {
	s.mu.Lock()
	if cfg, ok := s.cache[sessionID]; ok {
		s.mu.Unlock()
		return cfg, nil
	}
	s.mu.Unlock()

	status, err := s.api.SiteStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching site status: %w", err)
	}

	cfg := &SiteConfig{
		WechatAppID:          status.WechatAppID,
		AlipayAppID:          status.AlipayAppID,
		WechatAccessRequired: status.WechatAccessRequired,
		Ready:                status.Ready,
		Reason:               status.Reason,
		Missing:              status.Missing,
	}

	s.mu.Lock()
	s.cache[sessionID] = cfg
	s.mu.Unlock()

	log.LogDebugWithFields("siteconfig", "Site status fetched", map[string]any{
		"session_id": sessionID,
		"ready":      cfg.Ready,
		"reason":     cfg.Reason,
	})
	return cfg, nil
}

// Forget drops a session's cached config (used when the session ends)
func (s *Service) Forget(sessionID string) {
	s.mu.Lock()
	delete(s.cache, sessionID)
	s.mu.Unlock()
}

// MaintenanceRedirect decides whether a browser must be sent to the
// maintenance page, and with what query, given the fetched config and the
// browser environment. Returns ("", false) when the site can serve.
func MaintenanceRedirect(cfg *SiteConfig, env browserenv.Env) (string, bool) {
	if cfg.WechatAccessRequired && env != browserenv.Wechat {
		return MaintenancePath + "?reason=" + ReasonWechatOnly, true
	}

	if !cfg.Ready {
		reason := cfg.Reason
		if reason == "" {
			reason = ReasonConfigIncomplete
		}
		q := url.Values{}
		q.Set("reason", reason)
		if len(cfg.Missing) > 0 {
			missing := ""
			for i, m := range cfg.Missing {
				if i > 0 {
					missing += ","
				}
				missing += m
			}
			q.Set("missing", missing)
		}
		return MaintenancePath + "?" + q.Encode(), true
	}

	return "", false
}

// ServerErrorRedirect is the maintenance target when the status fetch itself fails
func ServerErrorRedirect() string {
	return MaintenancePath + "?reason=" + ReasonServerError
}

// Query parameter names that can never be agent tags
var reservedQueryKeys = map[string]bool{
	"agent":     true,
	"agent_tag": true,
	"code":      true,
	"auth_code": true,
	"state":     true,
}

// AgentTagFromQuery extracts the agent tag from a URL query. Two forms are
// supported: a named parameter (?agent=xxx or ?agent_tag=xxx) and a bare
// valueless flag (?xxx). Named parameters win; among bare keys the first in
// sorted order wins so extraction is deterministic.
func AgentTagFromQuery(query url.Values) string {
	if tag := query.Get("agent"); tag != "" {
		return tag
	}
	if tag := query.Get("agent_tag"); tag != "" {
		return tag
	}

	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if reservedQueryKeys[key] {
			continue
		}
		values := query[key]
		if len(values) == 1 && values[0] == "" {
			return key
		}
	}
	return ""
}
