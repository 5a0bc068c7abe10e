// Package authstate tracks the per-session authentication state record.
//
// The record mirrors what the page layer observes: whether the user is logged
// in, whether a bootstrap is in flight, the user record, and the last
// user-facing error. It is mutated only by the bootstrap flow and logout.
package authstate

import (
	"sync"

	"github.com/bigdata-query/query-front/internal/backend"
)

// State is one session's authentication record
type State struct {
	IsLoggedIn bool          `json:"isLoggedIn"`
	IsLoading  bool          `json:"isLoading"`
	User       *backend.User `json:"user"`
	Error      string        `json:"error,omitempty"`
}

// Store holds the transient auth state for every live front session
type Store struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewStore creates an empty state store
func NewStore() *Store {
	return &Store{
		states: make(map[string]*State),
	}
}

// Get returns a copy of the session's state (zero value if never touched)
func (s *Store) Get(sessionID string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if state, ok := s.states[sessionID]; ok {
		return *state
	}
	return State{}
}

func (s *Store) mutate(sessionID string, fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[sessionID]
	if !ok {
		state = &State{}
		s.states[sessionID] = state
	}
	fn(state)
}

// BeginBootstrap marks a bootstrap invocation in flight
func (s *Store) BeginBootstrap(sessionID string) {
	s.mutate(sessionID, func(st *State) {
		st.IsLoading = true
	})
}

// FinishBootstrap clears the in-flight flag. Always runs once per bootstrap,
// regardless of which path the flow took.
func (s *Store) FinishBootstrap(sessionID string) {
	s.mutate(sessionID, func(st *State) {
		st.IsLoading = false
	})
}

// SetAuthenticated records a successful probe or exchange
func (s *Store) SetAuthenticated(sessionID string, user *backend.User) {
	s.mutate(sessionID, func(st *State) {
		st.IsLoggedIn = true
		st.User = user
		st.Error = ""
	})
}

// SetUnauthenticated records a failed probe. Not an error: a logged-out
// browser is a normal state, so Error is left untouched.
func (s *Store) SetUnauthenticated(sessionID string) {
	s.mutate(sessionID, func(st *State) {
		st.IsLoggedIn = false
		st.User = nil
	})
}

// SetError records a user-facing bootstrap error
func (s *Store) SetError(sessionID, message string) {
	s.mutate(sessionID, func(st *State) {
		st.Error = message
	})
}

// Reset clears the session back to logged out. Idempotent; used by logout.
func (s *Store) Reset(sessionID string) {
	s.mutate(sessionID, func(st *State) {
		*st = State{}
	})
}
