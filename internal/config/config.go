package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config interface {
	EnvConfig
	APIConfig
	IdentityConfig
	StorageConfig
	Validate() error
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	API
	Identity
	Storage
	loadErr error
}

// New loads .env and the optional YAML overlay once, then reads settings lazily
// from the environment.
func New() Config {
	_ = godotenv.Load()
	return mainConfig{loadErr: loadFileValues(GetEnv(configFileVar, ""))}
}

// Validate reports missing required settings. Callers treat a non-nil result as fatal.
func (c mainConfig) Validate() error {
	if c.loadErr != nil {
		return errors.Wrap(c.loadErr, "config file")
	}

	var missing []string
	if c.GetAPIBaseURL() == "" {
		missing = append(missing, apiURLVar)
	}
	if c.GetIdentityURL() == "" {
		missing = append(missing, identityURLVar)
	}
	if c.GetIdentityPublicKey() == "" {
		missing = append(missing, identityKeyVar)
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.GetStorageKind() {
	case StorageFile, StorageSQLite, StorageMemory:
	default:
		return errors.Errorf("invalid %s %q", storageKindVar, c.GetStorageKind())
	}
	return nil
}
