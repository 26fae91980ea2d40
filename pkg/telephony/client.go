// Package telephony provides a client for the outbound-call provider's
// REST API (Twilio-compatible). The emergency call orchestrator uses it to
// place an automated voice call and to poll the call's status until a
// terminal state.
//
//	client := telephony.NewClient(accountSID, telephony.WithAuthToken(token))
//	call, err := client.Calls.Create(ctx, &telephony.CallRequest{...})
package telephony

import (
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.twilio.com/2010-04-01"
	defaultTimeout = 30 * time.Second
)

// Client is the call-provider API client.
type Client struct {
	// Calls provides outbound call operations.
	Calls *CallService

	config *clientConfig
}

// clientConfig holds client configuration.
type clientConfig struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures the client.
type Option func(*clientConfig)

// NewClient creates a call-provider client for the given account.
func NewClient(accountSID string, opts ...Option) *Client {
	config := &clientConfig{
		accountSID: accountSID,
		baseURL:    defaultBaseURL,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.httpClient == nil {
		config.httpClient = &http.Client{Timeout: config.timeout}
	}

	c := &Client{config: config}
	c.Calls = newCallService(c)
	return c
}

// WithAuthToken sets the account auth token used for basic auth.
func WithAuthToken(token string) Option {
	return func(c *clientConfig) {
		c.authToken = token
	}
}

// WithBaseURL overrides the API base URL (useful for tests and regional
// endpoints).
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// Configured reports whether the client carries usable credentials.
// An unconfigured client makes the orchestrator fall back to simulation.
func (c *Client) Configured() bool {
	return c.config.accountSID != "" && c.config.authToken != ""
}
