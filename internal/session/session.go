// Package session provides server-side sessions backed by the shared
// cache. The browser holds only an opaque session ID in an HttpOnly
// cookie; tokens, identity, and in-flight login state live server-side.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/callezenwaka/authenticate/internal/cache"
	"github.com/callezenwaka/authenticate/internal/common/errors"
	"github.com/callezenwaka/authenticate/internal/common/logging"
	"github.com/callezenwaka/authenticate/internal/crypto"
	"github.com/callezenwaka/authenticate/internal/oidc"
	"github.com/callezenwaka/authenticate/internal/pkce"
)

const (
	sessionTTL = 24 * time.Hour
	idBytes    = 32
)

// Session is the server-side state for one browser
type Session struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	User      *oidc.UserInfo    `json:"user,omitempty"`
	Tokens    *oidc.TokenBundle `json:"tokens,omitempty"`
	Login     *pkce.Checkpoint  `json:"login,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// IsAuthenticated reports whether the session carries a logged-in user
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.UserID != "" && s.Tokens != nil
}

// Manager creates, loads, and destroys sessions in the cache
type Manager struct {
	store     *cache.Store
	encryptor *crypto.TokenEncryptor
	logger    logging.Logger
}

// NewManager creates a session manager over the given cache. The encryptor
// is optional; without one, session payloads are stored as plain JSON.
func NewManager(store *cache.Store, encryptor *crypto.TokenEncryptor, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Manager{
		store:     store,
		encryptor: encryptor,
		logger:    logger,
	}
}

// Create mints an empty session with a fresh random ID and persists it
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.InternalError("failed to generate session ID", err)
	}

	session := &Session{
		ID:        base64.RawURLEncoding.EncodeToString(buf),
		CreatedAt: time.Now(),
	}

	if err := m.Save(ctx, session); err != nil {
		return nil, err
	}

	m.logger.Debug("Session created", logging.Field{Key: "session_id", Value: session.ID})
	return session, nil
}

// Get loads a session by ID. The second return is false when the session
// does not exist, has expired, or is unreadable.
func (m *Manager) Get(ctx context.Context, id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}

	payload, ok := m.store.Get(ctx, cache.SessionKey(id))
	if !ok {
		return nil, false
	}

	session := &Session{}
	if err := m.decode(payload, session); err != nil {
		m.logger.Warn("Stored session is unreadable, discarding",
			logging.Field{Key: "session_id", Value: id},
			logging.Field{Key: "error", Value: err.Error()})
		m.store.Delete(ctx, cache.SessionKey(id))
		return nil, false
	}

	return session, true
}

// Save persists a session, resetting its TTL to the full window
func (m *Manager) Save(ctx context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return errors.ValidationError("session has no ID")
	}

	payload, err := m.encode(session)
	if err != nil {
		return err
	}

	m.store.Set(ctx, cache.SessionKey(session.ID), payload, sessionTTL)
	return nil
}

// Destroy removes a session entirely
func (m *Manager) Destroy(ctx context.Context, id string) {
	if id == "" {
		return
	}
	m.store.Delete(ctx, cache.SessionKey(id))
	m.logger.Debug("Session destroyed", logging.Field{Key: "session_id", Value: id})
}

func (m *Manager) encode(session *Session) (string, error) {
	if m.encryptor != nil {
		return m.encryptor.EncryptJSON(session)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return "", errors.InternalError("failed to encode session", err)
	}
	return string(data), nil
}

func (m *Manager) decode(payload string, session *Session) error {
	if m.encryptor != nil {
		return m.encryptor.DecryptJSON(payload, session)
	}
	if err := json.Unmarshal([]byte(payload), session); err != nil {
		return errors.InternalError("failed to decode session", err)
	}
	return nil
}
