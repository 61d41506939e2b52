package main

import (
	"context"
	"io"

	"github.com/jrsteele09/go-inventory-client/authstate"
	"github.com/jrsteele09/go-inventory-client/fetch"
	"github.com/jrsteele09/go-inventory-client/internal/config"
	"github.com/jrsteele09/go-inventory-client/inventory"
	"github.com/jrsteele09/go-inventory-client/navigation"
	"github.com/jrsteele09/go-inventory-client/resources"
	"github.com/jrsteele09/go-inventory-client/session"
	"github.com/jrsteele09/go-inventory-client/tokenstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type app struct {
	config   config.Config
	storage  tokenstore.Storage
	store    *tokenstore.Store
	provider *session.TokenSourceProvider
	history  *navigation.History
	tracker  *authstate.Tracker
	api      *inventory.API
}

func newApp(ctx context.Context, c config.Config) (*app, error) {
	storage, err := newStorage(c)
	if err != nil {
		return nil, err
	}
	a := &app{config: c, storage: storage}

	a.provider, err = newProvider(ctx, c, storage)
	if err != nil {
		a.close()
		return nil, err
	}

	a.store = tokenstore.New(storage)
	a.history = navigation.NewHistory("/", func(view string) {
		if navigation.IsLoginView(view) {
			log.Warn().Msg("Session ended. Run `inventory login` to sign in again.")
		}
	})

	a.tracker, err = authstate.NewTracker(a.provider, a.store, a.history)
	if err != nil {
		a.close()
		return nil, err
	}
	if err := a.tracker.Mount(ctx); err != nil {
		log.Warn().Err(err).Msg("Continuing with the stored token")
	}

	client, err := fetch.NewClient(c.GetAPIBaseURL(), a.provider, a.store, a.history,
		fetch.WithSessionTimeout(c.GetSessionTimeout()),
		fetch.WithRedirectDelay(c.GetRedirectDelay()),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.api = inventory.NewAPI(client)
	return a, nil
}

func newStorage(c config.StorageConfig) (tokenstore.Storage, error) {
	switch c.GetStorageKind() {
	case config.StorageMemory:
		return tokenstore.NewMemoryStorage(), nil
	case config.StorageSQLite:
		storage, err := tokenstore.NewSQLiteStorage(c.GetStoragePath())
		if err != nil {
			return nil, err
		}
		return storage, nil
	default:
		var options []tokenstore.FileStorageOption
		if passphrase := c.GetStoragePassphrase(); passphrase != "" {
			options = append(options, tokenstore.WithPassphrase(passphrase))
		}
		storage, err := tokenstore.NewFileStorage(c.GetStoragePath(), options...)
		if err != nil {
			return nil, err
		}
		return storage, nil
	}
}

// newProvider uses the explicit token URL when configured and OIDC discovery otherwise.
func newProvider(ctx context.Context, c config.IdentityConfig, storage session.Storage) (*session.TokenSourceProvider, error) {
	if tokenURL := c.GetIdentityTokenURL(); tokenURL != "" {
		return session.NewTokenSourceProvider(&oauth2.Config{
			ClientID: c.GetIdentityPublicKey(),
			Endpoint: oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		}, storage)
	}

	provider, err := session.DiscoverProvider(ctx, c.GetIdentityURL(), c.GetIdentityPublicKey(), storage)
	return provider, errors.Wrap(err, "identity provider")
}

func (a *app) retry() resources.Option {
	return resources.WithRetry(a.config.GetMaxRetries(), a.config.GetRetryDelay())
}

// equipments loads the full equipment list.
func (a *app) equipments(ctx context.Context) (*resources.Equipments, error) {
	h := resources.NewEquipments(a.api, a.retry())
	if err := h.Refetch(ctx); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func (a *app) close() {
	if a.tracker != nil {
		a.tracker.Unmount()
	}
	if closer, ok := a.storage.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Err(err).Msg("Failed to close session storage")
		}
	}
}
