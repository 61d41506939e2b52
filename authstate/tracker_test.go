package authstate_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jrsteele09/go-inventory-client/authstate"
	"github.com/jrsteele09/go-inventory-client/fetch"
	"github.com/jrsteele09/go-inventory-client/navigation"
	"github.com/jrsteele09/go-inventory-client/session"
	"github.com/jrsteele09/go-inventory-client/session/providerfake"
	"github.com/jrsteele09/go-inventory-client/tokenstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type trackerFixture struct {
	provider *providerfake.FakeProvider
	store    *tokenstore.Store
	history  *navigation.History
	tracker  *authstate.Tracker
	changes  *[]authstate.Status
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()

	provider := providerfake.NewFakeProvider()
	store := tokenstore.New(tokenstore.NewMemoryStorage())
	history := navigation.NewHistory("/dashboard", nil)

	var mu sync.Mutex
	changes := []authstate.Status{}
	tracker, err := authstate.NewTracker(provider, store, history, authstate.WithOnChange(func(s authstate.State) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, s.Status)
	}))
	require.NoError(t, err)
	t.Cleanup(tracker.Unmount)

	return &trackerFixture{provider: provider, store: store, history: history, tracker: tracker, changes: &changes}
}

func sessionWithRole(token string, role any) *session.Session {
	user := session.User{ID: "user-9", Email: "jane@example.com"}
	if role != nil {
		user.Metadata = map[string]any{"role": role}
	}
	return &session.Session{UserID: user.ID, Email: user.Email, AccessToken: token, User: user}
}

func TestTracker_MountWithSession(t *testing.T) {
	f := newTrackerFixture(t)
	f.provider.SetSession(sessionWithRole("token-a", "staff"))
	require.Equal(t, authstate.StatusInitializing, f.tracker.Status())

	require.NoError(t, f.tracker.Mount(context.Background()))
	require.Equal(t, authstate.StatusAuthenticated, f.tracker.Status())
	require.Equal(t, "jane@example.com", f.tracker.User().Email)

	token, ok := f.store.Get()
	require.True(t, ok)
	require.Equal(t, "token-a", token)
	require.Equal(t, 1, f.provider.GetSessionCalls())
	require.Equal(t, 1, f.provider.Subscribers())

	require.NoError(t, f.tracker.Mount(context.Background()))
	require.Equal(t, 1, f.provider.GetSessionCalls())

	f.tracker.Unmount()
	require.Equal(t, 0, f.provider.Subscribers())
}

func TestTracker_MountWithoutSessionClearsStore(t *testing.T) {
	f := newTrackerFixture(t)
	f.store.Set("stale")

	require.NoError(t, f.tracker.Mount(context.Background()))
	require.Equal(t, authstate.StatusUnauthenticated, f.tracker.Status())
	require.Nil(t, f.tracker.User())
	_, ok := f.store.Get()
	require.False(t, ok)
}

func TestTracker_MountProviderFailureKeepsStore(t *testing.T) {
	f := newTrackerFixture(t)
	f.store.Set("cached")
	f.provider.SetGetError(errors.New("identity provider unreachable"))

	err := f.tracker.Mount(context.Background())
	require.Error(t, err)
	require.Equal(t, authstate.StatusUnauthenticated, f.tracker.Status())

	token, ok := f.store.Get()
	require.True(t, ok)
	require.Equal(t, "cached", token)
	require.Equal(t, 1, f.provider.Subscribers())
}

func TestTracker_IsAdmin(t *testing.T) {
	tests := []struct {
		name  string
		role  any
		admin bool
	}{
		{name: "role absent", role: nil, admin: false},
		{name: "staff", role: "staff", admin: false},
		{name: "admin", role: "admin", admin: true},
		{name: "non string role", role: 42, admin: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTrackerFixture(t)
			f.provider.SetSession(sessionWithRole("token", tt.role))
			require.NoError(t, f.tracker.Mount(context.Background()))
			require.Equal(t, tt.admin, f.tracker.IsAdmin())
		})
	}

	t.Run("signed out", func(t *testing.T) {
		f := newTrackerFixture(t)
		require.False(t, f.tracker.IsAdmin())
	})
}

func TestTracker_RequireAdmin(t *testing.T) {
	f := newTrackerFixture(t)
	require.True(t, fetch.IsKind(f.tracker.RequireAdmin(), fetch.KindUnauthenticated))

	f.provider.SetSession(sessionWithRole("token", "staff"))
	require.NoError(t, f.tracker.Mount(context.Background()))
	require.ErrorIs(t, f.tracker.RequireAdmin(), authstate.ErrAdminRequired)

	f.provider.Emit(session.EventTokenRefreshed, sessionWithRole("token-2", "admin"))
	require.NoError(t, f.tracker.RequireAdmin())
}

func TestTracker_FollowsSessionEvents(t *testing.T) {
	f := newTrackerFixture(t)
	require.NoError(t, f.tracker.Mount(context.Background()))

	f.provider.Emit(session.EventSignedIn, sessionWithRole("token-b", "admin"))
	require.Equal(t, authstate.StatusAuthenticated, f.tracker.Status())
	token, _ := f.store.Get()
	require.Equal(t, "token-b", token)

	f.provider.Emit(session.EventTokenRefreshed, sessionWithRole("token-c", "admin"))
	token, _ = f.store.Get()
	require.Equal(t, "token-c", token)

	f.provider.Emit(session.EventSignedOut, nil)
	require.Equal(t, authstate.StatusUnauthenticated, f.tracker.Status())
	_, ok := f.store.Get()
	require.False(t, ok)
	require.Equal(t, navigation.ViewLogin, f.history.CurrentView())

	require.Equal(t, []authstate.Status{
		authstate.StatusUnauthenticated,
		authstate.StatusAuthenticated,
		authstate.StatusAuthenticated,
		authstate.StatusUnauthenticated,
	}, *f.changes)
}

func TestTracker_SignOut(t *testing.T) {
	f := newTrackerFixture(t)
	f.provider.SetSession(sessionWithRole("token", "staff"))
	require.NoError(t, f.tracker.Mount(context.Background()))

	require.NoError(t, f.tracker.SignOut(context.Background()))
	require.Equal(t, authstate.StatusUnauthenticated, f.tracker.Status())
	_, ok := f.store.Get()
	require.False(t, ok)
	require.Equal(t, navigation.ViewLogin, f.history.CurrentView())
	require.Equal(t, 1, f.history.Visits(navigation.ViewLogin))

	require.NoError(t, f.tracker.SignOut(context.Background()))
	require.Equal(t, 1, f.history.Visits(navigation.ViewLogin))
	require.Equal(t, 2, f.provider.SignOutCalls())
}

func TestTracker_SignOutNavigatesWhenProviderFails(t *testing.T) {
	f := newTrackerFixture(t)
	f.provider.SetSession(sessionWithRole("token", "staff"))
	require.NoError(t, f.tracker.Mount(context.Background()))
	f.provider.SetSignOutError(errors.New("revocation endpoint down"))

	err := f.tracker.SignOut(context.Background())
	require.Error(t, err)
	require.Equal(t, authstate.StatusUnauthenticated, f.tracker.Status())
	_, ok := f.store.Get()
	require.False(t, ok)
	require.Equal(t, navigation.ViewLogin, f.history.CurrentView())
}

func TestNewTracker_Validation(t *testing.T) {
	_, err := authstate.NewTracker(nil, tokenstore.New(nil), nil)
	require.Error(t, err)

	_, err = authstate.NewTracker(providerfake.NewFakeProvider(), nil, nil)
	require.Error(t, err)

	tracker, err := authstate.NewTracker(providerfake.NewFakeProvider(), tokenstore.New(nil), nil)
	require.NoError(t, err)
	require.NoError(t, tracker.SignOut(context.Background()))
}
