package tokenstore

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TokenKey is the durable-storage key holding the access token.
const TokenKey = "inventory.auth.token"

// Storage is a durable key/value backend.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Store holds the current bearer token and mirrors every change into Storage.
// It is a denormalised copy of the session's access token, never the authority.
type Store struct {
	storage Storage
	key     string
	logger  zerolog.Logger

	mu    sync.RWMutex
	token string
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store, seeding the in-memory copy from storage so a restarted
// process can still build one authenticated request.
func New(storage Storage, options ...Option) *Store {
	s := &Store{
		storage: storage,
		key:     TokenKey,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}

	if s.storage == nil {
		s.storage = NewMemoryStorage()
	}

	token, ok, err := s.storage.Get(s.key)
	if err != nil {
		s.logger.Err(err).Str("key", s.key).Msg("Failed to read stored token")
	} else if ok {
		s.token = token
	}
	return s
}

// Set overwrites the token. An empty token is treated as Clear.
func (s *Store) Set(token string) {
	if token == "" {
		s.Clear()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	if err := s.storage.Set(s.key, token); err != nil {
		s.logger.Err(err).Str("key", s.key).Msg("Failed to persist token")
	}
}

func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	if err := s.storage.Remove(s.key); err != nil {
		s.logger.Err(err).Str("key", s.key).Msg("Failed to remove stored token")
	}
}

// Storage exposes the backend so collaborators can keep their own keys next to the token.
func (s *Store) Storage() Storage {
	return s.storage
}
