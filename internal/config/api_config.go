package config

import (
	"strings"
	"time"
)

const (
	apiURLVar        = "INVENTORY_API_URL"
	maxRetriesVar    = "INVENTORY_MAX_RETRIES"
	retryDelayVar    = "INVENTORY_RETRY_DELAY"
	redirectDelayVar = "INVENTORY_REDIRECT_DELAY"
)

type APIConfig interface {
	GetAPIBaseURL() string
	GetMaxRetries() int
	GetRetryDelay() time.Duration
	GetRedirectDelay() time.Duration
}

type API struct{}

var _ APIConfig = API{}

func (API) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv(apiURLVar, ""), "/")
}

func (API) GetMaxRetries() int {
	return GetEnvInt(maxRetriesVar, 2)
}

func (API) GetRetryDelay() time.Duration {
	return GetEnvDuration(retryDelayVar, 2*time.Second)
}

func (API) GetRedirectDelay() time.Duration {
	return GetEnvDuration(redirectDelayVar, 100*time.Millisecond)
}
