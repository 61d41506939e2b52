package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-inventory-client/navigation"
	"github.com/jrsteele09/go-inventory-client/session"
	"github.com/jrsteele09/go-inventory-client/tokenstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSessionTimeout = 5 * time.Second
	DefaultRedirectDelay  = 100 * time.Millisecond

	// RequestIDHeader carries a per-request uuid for correlating client and server logs.
	RequestIDHeader = "X-Request-ID"
)

// Client issues bearer-authenticated requests against the inventory API.
type Client struct {
	baseURL        string
	provider       session.Provider
	store          *tokenstore.Store
	navigator      navigation.Navigator
	httpClient     *http.Client
	sessionTimeout time.Duration
	redirectDelay  time.Duration
	logger         zerolog.Logger

	redirectMu      sync.Mutex
	redirectPending bool
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithSessionTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.sessionTimeout = timeout
	}
}

// WithRedirectDelay sets how long a 401 burst is coalesced before navigating to the login view.
func WithRedirectDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		c.redirectDelay = delay
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client. provider and navigator may be nil: without a
// provider the stored token is used, without a navigator no redirect happens.
func NewClient(baseURL string, provider session.Provider, store *tokenstore.Store, navigator navigation.Navigator, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[NewClient] base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "[NewClient] invalid base URL")
	}
	if store == nil {
		return nil, errors.New("[NewClient] token store is required")
	}

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		provider:       provider,
		store:          store,
		navigator:      navigator,
		httpClient:     http.DefaultClient,
		sessionTimeout: DefaultSessionTimeout,
		redirectDelay:  DefaultRedirectDelay,
		logger:         log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Options describes one API call. Method defaults to GET.
type Options struct {
	Method string
	Query  url.Values
	Body   any
	Upload *Upload
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// Request performs the call and decodes the envelope's data field into T.
// Every returned error is a *Error.
func Request[T any](ctx context.Context, c *Client, endpoint string, opts Options) (T, error) {
	var result T

	data, err := c.do(ctx, endpoint, opts)
	if err != nil {
		return result, err
	}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return result, newError(KindMissingData, "No data received from server", 0, nil)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, newError(KindServer, "Invalid response from server", 0, errors.Wrap(err, "[Request] Unmarshal"))
	}
	return result, nil
}

// Exec performs the call and ignores the payload.
func Exec(ctx context.Context, c *Client, endpoint string, opts Options) error {
	_, err := c.do(ctx, endpoint, opts)
	return err
}

func (c *Client) do(ctx context.Context, endpoint string, opts Options) (json.RawMessage, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, endpoint, opts, token)
	if err != nil {
		return nil, err
	}

	requestID := req.Header.Get(RequestIDHeader)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Err(err).Str("method", req.Method).Str("endpoint", endpoint).Str("request_id", requestID).Msg("API request failed")
		return nil, newError(KindNetwork, NetworkMessage, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.logger.Debug().
		Str("method", req.Method).
		Str("endpoint", endpoint).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("API request")
	if err != nil {
		return nil, newError(KindNetwork, NetworkMessage, 0, err)
	}

	var env envelope
	parseErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := statusMessage(resp.StatusCode)
		if parseErr == nil {
			message = fmt.Sprintf("API request failed with status %d", resp.StatusCode)
			if env.Error != "" {
				message = env.Error
			} else if env.Message != "" {
				message = env.Message
			}
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.handleUnauthorized()
			return nil, newError(KindAuthorizationFailure, message, resp.StatusCode, nil)
		}
		return nil, newError(KindServer, message, resp.StatusCode, nil)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if parseErr != nil {
		return nil, newError(KindServer, "Invalid response from server", resp.StatusCode, errors.Wrap(parseErr, "[Client.do] Unmarshal"))
	}
	if env.Success != nil && !*env.Success {
		message := env.Error
		if message == "" {
			message = env.Message
		}
		if message == "" {
			message = "Request failed"
		}
		return nil, newError(KindServer, message, resp.StatusCode, nil)
	}
	return env.Data, nil
}

// token prefers a fresh session from the provider, falling back to the stored copy.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.provider != nil {
		sessionCtx, cancel := context.WithTimeout(ctx, c.sessionTimeout)
		s, err := c.provider.GetSession(sessionCtx)
		cancel()

		switch {
		case err != nil:
			c.logger.Warn().Err(err).Msg("Session provider unavailable, using stored token")
		case s != nil && s.AccessToken != "":
			c.store.Set(s.AccessToken)
			return s.AccessToken, nil
		}
	}

	if token, ok := c.store.Get(); ok {
		return token, nil
	}
	return "", newError(KindUnauthenticated, "Not authenticated. Please sign in.", 0, nil)
}

func (c *Client) newRequest(ctx context.Context, endpoint string, opts Options, token string) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(opts.Query) > 0 {
		target += "?" + opts.Query.Encode()
	}

	var body io.Reader
	contentType := "application/json"
	switch {
	case opts.Upload != nil:
		buf, ct, err := opts.Upload.encode()
		if err != nil {
			return nil, newError(KindValidation, "Unable to read the file to upload", 0, err)
		}
		body, contentType = buf, ct
	case opts.Body != nil:
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, newError(KindValidation, "Unable to encode the request", 0, errors.Wrap(err, "[Client.newRequest] Marshal"))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, newError(KindNetwork, NetworkMessage, 0, errors.Wrap(err, "[Client.newRequest]"))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	return req, nil
}

// handleUnauthorized clears the token and schedules one login redirect per burst of 401s.
func (c *Client) handleUnauthorized() {
	c.redirectMu.Lock()
	defer c.redirectMu.Unlock()

	if c.redirectPending {
		return
	}
	c.redirectPending = true
	c.store.Clear()
	c.logger.Warn().Msg("API rejected the session, signing out")

	time.AfterFunc(c.redirectDelay, func() {
		if c.navigator != nil && !navigation.IsLoginView(c.navigator.CurrentView()) {
			c.navigator.Navigate(navigation.ViewLogin)
		}
		c.redirectMu.Lock()
		c.redirectPending = false
		c.redirectMu.Unlock()
	})
}

func statusMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("API request failed with status %d", status)
}
