// Package storage persists front session records.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bigdata-query/query-front/internal/backend"
)

// ErrSessionNotFound is returned when a session doesn't exist
var ErrSessionNotFound = errors.New("session not found")

// Session is one browser's front session record. The backend still owns the
// real credential session; this record tracks what the front has observed.
type Session struct {
	ID        string        `json:"id"`
	User      *backend.User `json:"user,omitempty"`
	LoggedIn  bool          `json:"logged_in"`
	AgentTag  string        `json:"agent_tag,omitempty"`
	Created   time.Time     `json:"created"`
	LastSeen  time.Time     `json:"last_seen"`
	UserAgent string        `json:"user_agent,omitempty"`
}

// Storage persists front sessions
type Storage interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	PutSession(ctx context.Context, session *Session) error
	DeleteSession(ctx context.Context, id string) error
	// TouchSession updates LastSeen; missing sessions are not an error
	TouchSession(ctx context.Context, id string, at time.Time) error
	ListSessions(ctx context.Context) ([]*Session, error)
	Close() error
}
