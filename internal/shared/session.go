package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session holds per-request session data.
type Session struct {
	ID           string
	userID       int64
	tokenVersion int64
	isNew        bool
	dirty        bool
	destroyed    bool
}

type sessionPayload struct {
	UserID       int64 `json:"user_id"`
	TokenVersion int64 `json:"token_version"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// Load loads the session referenced by the request cookie, or creates a fresh
// anonymous session when no cookie is present.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			sess := sm.newSession()
			sess.ID = cookie.Value
			return sess, nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}

	return &Session{ID: cookie.Value, userID: stored.UserID, tokenVersion: stored.TokenVersion}, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}
	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil {
			return err
		}
		http.SetCookie(w, sm.cookie(sess.ID, -1))
		return nil
	}
	if !sess.dirty {
		return nil
	}
	payload, err := json.Marshal(sessionPayload{UserID: sess.userID, TokenVersion: sess.tokenVersion})
	if err != nil {
		return err
	}
	if err := sm.client.Set(ctx, sm.redisKey(sess.ID), payload, sm.ttl).Err(); err != nil {
		return err
	}
	http.SetCookie(w, sm.cookie(sess.ID, int(sm.ttl.Seconds())))
	return nil
}

// Revoke deletes a session from the store by ID, used when a user account is
// trashed and all its sessions must stop working immediately.
func (sm *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	return sm.client.Del(ctx, sm.redisKey(sessionID)).Err()
}

func (sm *SessionManager) newSession() *Session {
	return &Session{ID: uuid.NewString(), isNew: true}
}

func (sm *SessionManager) redisKey(id string) string {
	return "meridian:session:" + id
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// UserID returns the authenticated user ID, zero for anonymous sessions.
func (s *Session) UserID() int64 {
	if s == nil {
		return 0
	}
	return s.userID
}

// TokenVersion returns the token version captured at login time.
func (s *Session) TokenVersion() int64 {
	if s == nil {
		return 0
	}
	return s.tokenVersion
}

// Authenticate binds the session to a user and its current token version.
func (s *Session) Authenticate(userID, tokenVersion int64) {
	s.userID = userID
	s.tokenVersion = tokenVersion
	s.dirty = true
}

// Destroy marks the session for deletion on commit.
func (s *Session) Destroy() {
	s.destroyed = true
}
