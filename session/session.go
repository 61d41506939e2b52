package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// ErrNoSession is returned by providers that cannot produce a session at all.
var ErrNoSession = errors.New("no active session")

// User is the identity-provider user; Metadata carries the user_metadata claim.
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// Session is owned by the Provider. Everything else holds copies.
type Session struct {
	UserID      string
	Email       string
	Role        string
	AccessToken string
	ExpiresAt   time.Time
	User        User
}

// Expired reports whether the access token is past its expiry. A zero expiry never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// RoleOf reads the role claim from user metadata, defaulting to staff.
func RoleOf(u *User) string {
	if u == nil || u.Metadata == nil {
		return RoleStaff
	}
	if role, ok := u.Metadata["role"].(string); ok && role != "" {
		return role
	}
	return RoleStaff
}

type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Listener receives session changes. s is nil for EventSignedOut.
type Listener func(event Event, s *Session)

// Provider is the identity provider as consumed by this client.
// GetSession returns (nil, nil) when nobody is signed in.
type Provider interface {
	GetSession(ctx context.Context) (*Session, error)
	OnSessionChange(listener Listener) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// Storage is the durable key/value backend shared with the token store.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}
