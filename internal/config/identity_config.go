package config

import (
	"strings"
	"time"
)

const (
	identityURLVar      = "INVENTORY_IDENTITY_URL"
	identityKeyVar      = "INVENTORY_IDENTITY_PUBLIC_KEY"
	identityTokenURLVar = "INVENTORY_IDENTITY_TOKEN_URL"
	sessionTimeoutVar   = "INVENTORY_SESSION_TIMEOUT"
)

type IdentityConfig interface {
	GetIdentityURL() string
	GetIdentityPublicKey() string
	GetIdentityTokenURL() string
	GetSessionTimeout() time.Duration
}

type Identity struct{}

var _ IdentityConfig = Identity{}

// GetIdentityURL is the OIDC issuer used for discovery.
func (Identity) GetIdentityURL() string {
	return strings.TrimRight(GetEnv(identityURLVar, ""), "/")
}

// GetIdentityPublicKey is the public (anon) key, sent as the OAuth2 client ID.
func (Identity) GetIdentityPublicKey() string {
	return GetEnv(identityKeyVar, "")
}

// GetIdentityTokenURL skips discovery when set.
func (Identity) GetIdentityTokenURL() string {
	return GetEnv(identityTokenURLVar, "")
}

func (Identity) GetSessionTimeout() time.Duration {
	return GetEnvDuration(sessionTimeoutVar, 5*time.Second)
}
