// Package authstate tracks who is signed in and which role they hold.
package authstate

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-inventory-client/fetch"
	"github.com/jrsteele09/go-inventory-client/navigation"
	"github.com/jrsteele09/go-inventory-client/session"
	"github.com/jrsteele09/go-inventory-client/tokenstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// ErrAdminRequired is returned by RequireAdmin for a signed-in non-admin user.
var ErrAdminRequired = errors.New("administrator access required")

// State is a snapshot of the tracker. User is nil unless Status is StatusAuthenticated.
type State struct {
	Status Status
	User   *session.User
	Role   string
}

type Option func(*Tracker)

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithOnChange registers fn to be called after every state transition.
func WithOnChange(fn func(State)) Option {
	return func(t *Tracker) {
		t.onChange = fn
	}
}

// Tracker follows the provider's session and mirrors it into the token store.
type Tracker struct {
	provider  session.Provider
	store     *tokenstore.Store
	navigator navigation.Navigator
	logger    zerolog.Logger
	onChange  func(State)

	mu          sync.Mutex
	state       State
	version     uint64
	unsubscribe func()
}

func NewTracker(provider session.Provider, store *tokenstore.Store, navigator navigation.Navigator, options ...Option) (*Tracker, error) {
	if provider == nil {
		return nil, errors.New("[NewTracker] provider is required")
	}
	if store == nil {
		return nil, errors.New("[NewTracker] token store is required")
	}

	t := &Tracker{
		provider:  provider,
		store:     store,
		navigator: navigator,
		logger:    log.Logger,
		state:     State{Status: StatusInitializing},
	}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

// Mount subscribes to session changes and then queries the provider once.
// Calling Mount on a mounted tracker does nothing.
func (t *Tracker) Mount(ctx context.Context) error {
	t.mu.Lock()
	if t.unsubscribe != nil {
		t.mu.Unlock()
		return nil
	}
	version := t.version
	t.unsubscribe = t.provider.OnSessionChange(t.handleEvent)
	t.mu.Unlock()

	s, err := t.provider.GetSession(ctx)
	if err != nil {
		t.logger.Err(err).Msg("Failed to load session")
		t.initial(version, nil, false)
		return errors.Wrap(err, "[Tracker.Mount] GetSession")
	}
	t.initial(version, s, true)
	return nil
}

// initial applies the mount-time query unless an event arrived in the meantime.
func (t *Tracker) initial(version uint64, s *session.Session, syncStore bool) {
	t.mu.Lock()
	if t.version != version {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.apply(s, syncStore)
}

func (t *Tracker) Unmount() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (t *Tracker) handleEvent(event session.Event, s *session.Session) {
	t.logger.Debug().Str("event", string(event)).Msg("Session changed")
	if event == session.EventSignedOut {
		t.apply(nil, true)
		t.toLogin()
		return
	}
	t.apply(s, true)
}

// apply transitions to Authenticated or Unauthenticated. With syncStore the
// token store follows the session.
func (t *Tracker) apply(s *session.Session, syncStore bool) {
	next := State{Status: StatusUnauthenticated}
	if s != nil && s.AccessToken != "" {
		user := s.User
		if user.ID == "" {
			user.ID = s.UserID
		}
		if user.Email == "" {
			user.Email = s.Email
		}
		next = State{Status: StatusAuthenticated, User: &user, Role: session.RoleOf(&user)}
	}

	if syncStore {
		if next.Status == StatusAuthenticated {
			t.store.Set(s.AccessToken)
		} else {
			t.store.Clear()
		}
	}

	t.mu.Lock()
	t.version++
	t.state = next
	onChange := t.onChange
	t.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	if s.User != nil {
		user := *s.User
		s.User = &user
	}
	return s
}

func (t *Tracker) Status() Status {
	return t.State().Status
}

func (t *Tracker) User() *session.User {
	return t.State().User
}

// Role is the signed-in user's role, or "" when nobody is signed in.
func (t *Tracker) Role() string {
	return t.State().Role
}

func (t *Tracker) IsAdmin() bool {
	return t.Role() == session.RoleAdmin
}

// RequireAdmin gates admin-only actions.
func (t *Tracker) RequireAdmin() error {
	state := t.State()
	switch {
	case state.Status != StatusAuthenticated:
		return &fetch.Error{Kind: fetch.KindUnauthenticated, Message: "Not authenticated. Please sign in."}
	case state.Role != session.RoleAdmin:
		return ErrAdminRequired
	}
	return nil
}

// SignOut clears the local token first, then signs out with the provider. The
// user lands on the login view even when the provider fails. Safe to repeat.
func (t *Tracker) SignOut(ctx context.Context) error {
	t.apply(nil, true)

	err := t.provider.SignOut(ctx)
	if err != nil {
		t.logger.Err(err).Msg("Provider sign-out failed")
	}
	t.toLogin()
	return errors.Wrap(err, "[Tracker.SignOut]")
}

func (t *Tracker) toLogin() {
	if t.navigator == nil || navigation.IsLoginView(t.navigator.CurrentView()) {
		return
	}
	t.navigator.Navigate(navigation.ViewLogin)
}
