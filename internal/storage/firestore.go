package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/bigdata-query/query-front/internal/backend"
	"github.com/bigdata-query/query-front/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const sessionCollection = "front_sessions"

// FirestoreStorage persists front sessions in Google Cloud Firestore.
//
// Error handling strategy:
// - Read operations: return errors (guards and handlers need the truth)
// - Write operations: log and continue (a lost LastSeen or session record
//   degrades to a fresh bootstrap, which the flow already handles)
type FirestoreStorage struct {
	client     *firestore.Client
	projectID  string
	collection string
}

// Ensure FirestoreStorage implements the Storage interface
var _ Storage = (*FirestoreStorage)(nil)

// sessionDoc is the Firestore document shape for a front session
type sessionDoc struct {
	ID        string        `firestore:"id"`
	User      *backend.User `firestore:"user,omitempty"`
	LoggedIn  bool          `firestore:"logged_in"`
	AgentTag  string        `firestore:"agent_tag,omitempty"`
	Created   time.Time     `firestore:"created"`
	LastSeen  time.Time     `firestore:"last_seen"`
	UserAgent string        `firestore:"user_agent,omitempty"`
}

func toDoc(s *Session) sessionDoc {
	return sessionDoc{
		ID:        s.ID,
		User:      s.User,
		LoggedIn:  s.LoggedIn,
		AgentTag:  s.AgentTag,
		Created:   s.Created,
		LastSeen:  s.LastSeen,
		UserAgent: s.UserAgent,
	}
}

func (d sessionDoc) toSession() *Session {
	return &Session{
		ID:        d.ID,
		User:      d.User,
		LoggedIn:  d.LoggedIn,
		AgentTag:  d.AgentTag,
		Created:   d.Created,
		LastSeen:  d.LastSeen,
		UserAgent: d.UserAgent,
	}
}

// NewFirestoreStorage connects to Firestore in the given project
func NewFirestoreStorage(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirestoreStorage, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Firestore storage initialized", map[string]any{
		"project":    projectID,
		"collection": sessionCollection,
	})

	return &FirestoreStorage{
		client:     client,
		projectID:  projectID,
		collection: sessionCollection,
	}, nil
}

func (s *FirestoreStorage) GetSession(ctx context.Context, id string) (*Session, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return doc.toSession(), nil
}

func (s *FirestoreStorage) PutSession(ctx context.Context, session *Session) error {
	_, err := s.client.Collection(s.collection).Doc(session.ID).Set(ctx, toDoc(session))
	if err != nil {
		log.LogErrorWithFields("storage", "Failed to write session", map[string]any{
			"session_id": session.ID,
			"error":      err.Error(),
		})
	}
	return nil
}

func (s *FirestoreStorage) DeleteSession(ctx context.Context, id string) error {
	_, err := s.client.Collection(s.collection).Doc(id).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		log.LogErrorWithFields("storage", "Failed to delete session", map[string]any{
			"session_id": id,
			"error":      err.Error(),
		})
	}
	return nil
}

func (s *FirestoreStorage) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.client.Collection(s.collection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "last_seen", Value: at},
	})
	if err != nil && status.Code(err) != codes.NotFound {
		log.LogWarnWithFields("storage", "Failed to touch session", map[string]any{
			"session_id": id,
			"error":      err.Error(),
		})
	}
	return nil
}

func (s *FirestoreStorage) ListSessions(ctx context.Context) ([]*Session, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	var sessions []*Session
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing sessions: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			log.LogWarnWithFields("storage", "Skipping undecodable session", map[string]any{
				"doc":   snap.Ref.ID,
				"error": err.Error(),
			})
			continue
		}
		sessions = append(sessions, doc.toSession())
	}
	return sessions, nil
}

func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
