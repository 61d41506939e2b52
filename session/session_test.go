package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-inventory-client/session"
	"github.com/jrsteele09/go-inventory-client/tokenstore"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testEmail    = "jane@example.com"
	testPassword = "Password123"
	testClientID = "anon-key"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func userClaims(role string, exp time.Time) jwt.MapClaims {
	claims := jwt.MapClaims{
		"sub":   "user-42",
		"email": testEmail,
		"exp":   exp.Unix(),
	}
	if role != "" {
		claims["user_metadata"] = map[string]any{"role": role}
	}
	return claims
}

func TestFromAccessToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	t.Run("admin role", func(t *testing.T) {
		s, err := session.FromAccessToken(signedToken(t, userClaims("admin", exp)))
		require.NoError(t, err)
		require.Equal(t, "user-42", s.UserID)
		require.Equal(t, testEmail, s.Email)
		require.Equal(t, session.RoleAdmin, s.Role)
		require.True(t, exp.Equal(s.ExpiresAt))
		require.False(t, s.Expired(time.Now()))
	})

	t.Run("missing role defaults to staff", func(t *testing.T) {
		s, err := session.FromAccessToken(signedToken(t, userClaims("", exp)))
		require.NoError(t, err)
		require.Equal(t, session.RoleStaff, s.Role)
	})

	t.Run("not a jwt", func(t *testing.T) {
		_, err := session.FromAccessToken("opaque")
		require.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := session.FromAccessToken("  ")
		require.Error(t, err)
	})
}

func TestRoleOf(t *testing.T) {
	require.Equal(t, session.RoleStaff, session.RoleOf(nil))
	require.Equal(t, session.RoleStaff, session.RoleOf(&session.User{}))
	require.Equal(t, session.RoleStaff, session.RoleOf(&session.User{Metadata: map[string]any{"role": 7}}))
	require.Equal(t, session.RoleAdmin, session.RoleOf(&session.User{Metadata: map[string]any{"role": "admin"}}))
}

func TestListeners(t *testing.T) {
	var l session.Listeners
	var got []session.Event

	unsubscribe := l.Add(func(e session.Event, _ *session.Session) { got = append(got, e) })
	l.Emit(session.EventSignedIn, &session.Session{})
	unsubscribe()
	unsubscribe()
	l.Emit(session.EventSignedOut, nil)

	require.Equal(t, []session.Event{session.EventSignedIn}, got)
	require.Equal(t, 0, l.Len())
}

// tokenServer is a minimal OAuth2 token endpoint.
type tokenServer struct {
	t         *testing.T
	srv       *httptest.Server
	mu        sync.Mutex
	refreshes int
	role      string
}

func newTokenServer(t *testing.T, role string) *tokenServer {
	ts := &tokenServer{t: t, role: role}
	ts.srv = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *tokenServer) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch r.FormValue("grant_type") {
	case "password":
		if r.FormValue("username") != testEmail || r.FormValue("password") != testPassword {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
	case "refresh_token":
		ts.mu.Lock()
		ts.refreshes++
		ts.mu.Unlock()
	default:
		http.Error(w, "unsupported grant", http.StatusBadRequest)
		return
	}

	claims := userClaims(ts.role, time.Now().Add(time.Hour))
	claims["jti"] = time.Now().String()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  signedToken(ts.t, claims),
		"token_type":    "bearer",
		"refresh_token": "refresh-1",
		"expires_in":    3600,
	})
}

func (ts *tokenServer) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID: testClientID,
		Endpoint: oauth2.Endpoint{TokenURL: ts.srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
	}
}

func (ts *tokenServer) refreshCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.refreshes
}

func TestTokenSourceProvider_SignInPersistAndRestore(t *testing.T) {
	ts := newTokenServer(t, "admin")
	storage := tokenstore.NewMemoryStorage()

	p, err := session.NewTokenSourceProvider(ts.config(), storage)
	require.NoError(t, err)

	s, err := p.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, s)

	var events []session.Event
	unsubscribe := p.OnSessionChange(func(e session.Event, _ *session.Session) { events = append(events, e) })
	defer unsubscribe()

	s, err = p.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, session.RoleAdmin, s.Role)
	require.Equal(t, []session.Event{session.EventSignedIn}, events)

	_, ok, err := storage.Get(session.SessionKey)
	require.NoError(t, err)
	require.True(t, ok)

	restored, err := session.NewTokenSourceProvider(ts.config(), storage)
	require.NoError(t, err)
	rs, err := restored.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rs)
	require.Equal(t, s.AccessToken, rs.AccessToken)
	require.Equal(t, testEmail, rs.Email)
	require.Equal(t, 0, ts.refreshCount())
}

func TestTokenSourceProvider_BadCredentials(t *testing.T) {
	ts := newTokenServer(t, "")
	p, err := session.NewTokenSourceProvider(ts.config(), tokenstore.NewMemoryStorage())
	require.NoError(t, err)

	_, err = p.SignInWithPassword(context.Background(), testEmail, "wrong")
	require.Error(t, err)

	s, err := p.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestTokenSourceProvider_RefreshesExpiredToken(t *testing.T) {
	ts := newTokenServer(t, "staff")
	storage := tokenstore.NewMemoryStorage()

	expired := signedToken(t, userClaims("staff", time.Now().Add(-time.Hour)))
	saved, err := json.Marshal(map[string]any{
		"token": map[string]any{
			"access_token":  expired,
			"token_type":    "bearer",
			"refresh_token": "refresh-0",
			"expiry":        time.Now().Add(-time.Hour),
		},
	})
	require.NoError(t, err)
	require.NoError(t, storage.Set(session.SessionKey, string(saved)))

	p, err := session.NewTokenSourceProvider(ts.config(), storage)
	require.NoError(t, err)

	var events []session.Event
	p.OnSessionChange(func(e session.Event, _ *session.Session) { events = append(events, e) })

	s, err := p.GetSession(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, expired, s.AccessToken)
	require.Equal(t, 1, ts.refreshCount())
	require.Equal(t, []session.Event{session.EventTokenRefreshed}, events)
}

func TestTokenSourceProvider_SignOut(t *testing.T) {
	storage := tokenstore.NewMemoryStorage()
	token := signedToken(t, userClaims("staff", time.Now().Add(time.Hour)))

	p, err := session.NewTokenSourceProvider(&oauth2.Config{}, storage,
		session.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})))
	require.NoError(t, err)

	s, err := p.GetSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, token, s.AccessToken)

	var events []session.Event
	p.OnSessionChange(func(e session.Event, s *session.Session) {
		require.Nil(t, s)
		events = append(events, e)
	})

	require.NoError(t, p.SignOut(context.Background()))
	require.Equal(t, []session.Event{session.EventSignedOut}, events)

	s, err = p.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, s)

	_, ok, _ := storage.Get(session.SessionKey)
	require.False(t, ok)
}

func TestTokenSourceProvider_CorruptPersistedSession(t *testing.T) {
	storage := tokenstore.NewMemoryStorage()
	require.NoError(t, storage.Set(session.SessionKey, "{not json"))

	p, err := session.NewTokenSourceProvider(&oauth2.Config{}, storage)
	require.NoError(t, err)

	s, err := p.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, s)

	_, ok, _ := storage.Get(session.SessionKey)
	require.False(t, ok)
}

func TestNewTokenSourceProvider_Validation(t *testing.T) {
	_, err := session.NewTokenSourceProvider(nil, tokenstore.NewMemoryStorage())
	require.Error(t, err)
	_, err = session.NewTokenSourceProvider(&oauth2.Config{}, nil)
	require.Error(t, err)
}

// blockingSource hands out its token only after release is closed.
type blockingSource struct {
	started chan struct{}
	release chan struct{}
	token   *oauth2.Token
}

func (b *blockingSource) Token() (*oauth2.Token, error) {
	close(b.started)
	<-b.release
	return b.token, nil
}

func TestTokenSourceProvider_SignOutDuringRefresh(t *testing.T) {
	storage := tokenstore.NewMemoryStorage()
	source := &blockingSource{
		started: make(chan struct{}),
		release: make(chan struct{}),
		token:   &oauth2.Token{AccessToken: signedToken(t, userClaims("staff", time.Now().Add(time.Hour)))},
	}

	p, err := session.NewTokenSourceProvider(&oauth2.Config{}, storage, session.WithTokenSource(source))
	require.NoError(t, err)

	var refreshed int
	p.OnSessionChange(func(e session.Event, _ *session.Session) {
		if e == session.EventTokenRefreshed {
			refreshed++
		}
	})

	type result struct {
		s   *session.Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := p.GetSession(context.Background())
		done <- result{s, err}
	}()

	<-source.started
	require.NoError(t, p.SignOut(context.Background()))
	close(source.release)

	r := <-done
	require.NoError(t, r.err)
	require.Nil(t, r.s)
	require.Zero(t, refreshed)

	_, ok, err := storage.Get(session.SessionKey)
	require.NoError(t, err)
	require.False(t, ok)

	s, err := p.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, s)
}
