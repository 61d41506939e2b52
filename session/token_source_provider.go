package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// SessionKey is the storage key of the persisted OAuth2 token.
const SessionKey = "inventory.auth.session"

var _ Provider = (*TokenSourceProvider)(nil)

type persistedToken struct {
	Token   *oauth2.Token `json:"token"`
	IDToken string        `json:"id_token,omitempty"`
}

var errSessionReplaced = errors.New("[TokenSourceProvider.persist] session was signed out or replaced")

// TokenSourceProvider is a Provider backed by an OAuth2 token source. The
// token is refreshed transparently and persisted so sessions survive restarts.
type TokenSourceProvider struct {
	config     *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	storage    Storage
	httpClient *http.Client
	logger     zerolog.Logger
	listeners  Listeners

	// storeMu orders persisted writes against SignOut's removal.
	storeMu sync.Mutex

	mu          sync.Mutex
	source      oauth2.TokenSource
	epoch       uint64
	accessToken string
	idToken     string
}

type ProviderOption func(*TokenSourceProvider)

func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *TokenSourceProvider) {
		p.httpClient = client
	}
}

func WithVerifier(verifier *oidc.IDTokenVerifier) ProviderOption {
	return func(p *TokenSourceProvider) {
		p.verifier = verifier
	}
}

func WithProviderLogger(logger zerolog.Logger) ProviderOption {
	return func(p *TokenSourceProvider) {
		p.logger = logger
	}
}

// WithTokenSource installs a ready token source, e.g. oauth2.StaticTokenSource.
func WithTokenSource(source oauth2.TokenSource) ProviderOption {
	return func(p *TokenSourceProvider) {
		p.source = source
	}
}

// NewTokenSourceProvider restores any persisted token from storage.
func NewTokenSourceProvider(config *oauth2.Config, storage Storage, options ...ProviderOption) (*TokenSourceProvider, error) {
	if config == nil {
		return nil, errors.New("[NewTokenSourceProvider] oauth2 config is required")
	}
	if storage == nil {
		return nil, errors.New("[NewTokenSourceProvider] storage is required")
	}

	p := &TokenSourceProvider{
		config:  config,
		storage: storage,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(p)
	}

	if p.source == nil {
		if err := p.restore(); err != nil {
			p.logger.Err(err).Msg("Discarding unreadable persisted session")
			_ = p.storage.Remove(SessionKey)
		}
	}
	return p, nil
}

// DiscoverProvider resolves endpoints and the ID token verifier from the issuer's
// OpenID configuration.
func DiscoverProvider(ctx context.Context, issuerURL, clientID string, storage Storage, options ...ProviderOption) (*TokenSourceProvider, error) {
	preview := &TokenSourceProvider{}
	for _, opt := range options {
		opt(preview)
	}
	if preview.httpClient != nil {
		ctx = oidc.ClientContext(ctx, preview.httpClient)
	}

	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[DiscoverProvider] NewProvider")
	}

	config := &oauth2.Config{
		ClientID: clientID,
		Endpoint: provider.Endpoint(),
		Scopes:   []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess},
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})

	return NewTokenSourceProvider(config, storage, append([]ProviderOption{WithVerifier(verifier)}, options...)...)
}

// SignInWithPassword runs the resource-owner password grant.
func (p *TokenSourceProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	token, err := p.config.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenSourceProvider.SignInWithPassword]")
	}

	if err := p.adopt(token); err != nil {
		return nil, err
	}

	s, err := p.sessionFrom(ctx, token)
	if err != nil {
		return nil, err
	}
	p.listeners.Emit(EventSignedIn, s)
	return s, nil
}

func (p *TokenSourceProvider) GetSession(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	source := p.source
	epoch := p.epoch
	previous := p.accessToken
	p.mu.Unlock()

	if source == nil {
		return nil, nil
	}

	token, err := p.token(ctx, source)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenSourceProvider.GetSession]")
	}

	refreshed := previous != "" && token.AccessToken != previous
	if token.AccessToken != previous {
		err := p.persist(epoch, token)
		if errors.Is(err, errSessionReplaced) {
			return nil, nil
		}
		if err != nil {
			p.logger.Err(err).Msg("Failed to persist refreshed session")
		}
	} else if !p.current(epoch) {
		return nil, nil
	}

	s, err := p.sessionFrom(ctx, token)
	if err != nil {
		return nil, err
	}
	if refreshed {
		p.listeners.Emit(EventTokenRefreshed, s)
	}
	return s, nil
}

func (p *TokenSourceProvider) OnSessionChange(listener Listener) func() {
	return p.listeners.Add(listener)
}

func (p *TokenSourceProvider) SignOut(ctx context.Context) error {
	p.storeMu.Lock()
	p.mu.Lock()
	p.source = nil
	p.epoch++
	p.accessToken = ""
	p.idToken = ""
	p.mu.Unlock()

	err := p.storage.Remove(SessionKey)
	p.storeMu.Unlock()

	p.listeners.Emit(EventSignedOut, nil)
	return errors.Wrap(err, "[TokenSourceProvider.SignOut]")
}

// token runs the (possibly refreshing) token source, giving up when ctx ends.
func (p *TokenSourceProvider) token(ctx context.Context, source oauth2.TokenSource) (*oauth2.Token, error) {
	type result struct {
		token *oauth2.Token
		err   error
	}
	done := make(chan result, 1)
	go func() {
		t, err := source.Token()
		done <- result{t, err}
	}()

	select {
	case r := <-done:
		return r.token, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *TokenSourceProvider) adopt(token *oauth2.Token) error {
	source := p.config.TokenSource(p.clientContext(context.Background()), token)

	p.mu.Lock()
	p.source = source
	p.epoch++
	epoch := p.epoch
	p.mu.Unlock()

	return p.persist(epoch, token)
}

func (p *TokenSourceProvider) current(epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch == epoch
}

// persist records token as the current session unless the session it was
// issued for has since been signed out or replaced.
func (p *TokenSourceProvider) persist(epoch uint64, token *oauth2.Token) error {
	idToken, _ := token.Extra("id_token").(string)

	p.storeMu.Lock()
	defer p.storeMu.Unlock()

	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		return errSessionReplaced
	}
	p.accessToken = token.AccessToken
	if idToken != "" {
		p.idToken = idToken
	}
	idToken = p.idToken
	p.mu.Unlock()

	data, err := json.Marshal(persistedToken{Token: token, IDToken: idToken})
	if err != nil {
		return errors.Wrap(err, "[TokenSourceProvider.persist] Marshal")
	}
	return errors.Wrap(p.storage.Set(SessionKey, string(data)), "[TokenSourceProvider.persist] Set")
}

func (p *TokenSourceProvider) restore() error {
	raw, ok, err := p.storage.Get(SessionKey)
	if err != nil {
		return errors.Wrap(err, "[TokenSourceProvider.restore] Get")
	}
	if !ok {
		return nil
	}

	var saved persistedToken
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return errors.Wrap(err, "[TokenSourceProvider.restore] Unmarshal")
	}
	if saved.Token == nil || (saved.Token.AccessToken == "" && saved.Token.RefreshToken == "") {
		return errors.New("[TokenSourceProvider.restore] persisted session has no token")
	}

	p.mu.Lock()
	p.source = p.config.TokenSource(p.clientContext(context.Background()), saved.Token)
	p.epoch++
	p.accessToken = saved.Token.AccessToken
	p.idToken = saved.IDToken
	p.mu.Unlock()
	return nil
}

func (p *TokenSourceProvider) sessionFrom(ctx context.Context, token *oauth2.Token) (*Session, error) {
	s, err := FromAccessToken(token.AccessToken)
	if err != nil {
		s = opaqueSession(token.AccessToken, token.Expiry)
	}
	if !token.Expiry.IsZero() {
		s.ExpiresAt = token.Expiry
	}

	p.mu.Lock()
	rawIDToken := p.idToken
	p.mu.Unlock()

	if p.verifier != nil && rawIDToken != "" {
		idToken, err := p.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			p.logger.Err(err).Msg("ID token verification failed, using access token claims")
			return s, nil
		}
		var claims struct {
			Sub          string         `json:"sub"`
			Email        string         `json:"email"`
			UserMetadata map[string]any `json:"user_metadata"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, errors.Wrap(err, "[TokenSourceProvider.sessionFrom] Claims")
		}
		if claims.Sub != "" {
			s.UserID, s.User.ID = claims.Sub, claims.Sub
		}
		if claims.Email != "" {
			s.Email, s.User.Email = claims.Email, claims.Email
		}
		if claims.UserMetadata != nil && s.User.Metadata == nil {
			s.User.Metadata = claims.UserMetadata
			s.Role = RoleOf(&s.User)
		}
	}
	return s, nil
}

func (p *TokenSourceProvider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}
