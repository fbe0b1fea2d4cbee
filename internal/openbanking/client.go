// Package openbanking is a client for the open banking aggregator API.
package openbanking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the aggregator's public API.
	DefaultBaseURL = "https://api.yapily.com"
	// DefaultTimeout bounds one HTTP round trip.
	DefaultTimeout = 30 * time.Second
	// DefaultRetryInitialInterval is the first wait between retries.
	DefaultRetryInitialInterval = 500 * time.Millisecond

	consentHeader = "Consent"
)

// Config holds the client's connection settings and credentials.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string

	// Timeout is applied when the client builds its own http.Client.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after a transient failure
	// (transport error, 429 or 5xx). 4xx responses are never retried.
	MaxRetries int

	// RetryInitialInterval is the first backoff wait.
	RetryInitialInterval time.Duration

	// RequestsPerSecond throttles outgoing requests; <= 0 disables throttling.
	RequestsPerSecond float64
}

// Client calls the aggregator. It is safe for concurrent use.
type Client struct {
	baseURL      *url.URL
	clientID     string
	clientSecret string
	httpClient   *http.Client
	limiter      *rate.Limiter
	maxTries     uint
	retryInitial time.Duration
	log          zerolog.Logger
}

// NewClient creates a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, log zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid open banking base URL %q", cfg.BaseURL)
	}

	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	retryInitial := cfg.RetryInitialInterval
	if retryInitial <= 0 {
		retryInitial = DefaultRetryInitialInterval
	}

	return &Client{
		baseURL:      base,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
		limiter:      limiter,
		maxTries:     uint(retries) + 1,
		retryInitial: retryInitial,
		log:          log,
	}, nil
}

// GetInstitutions lists the banks available through the aggregator.
func (c *Client) GetInstitutions(ctx context.Context) (*InstitutionsResponse, error) {
	var out InstitutionsResponse
	if err := c.get(ctx, "/institutions", "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccounts lists the accounts the consent token grants access to.
func (c *Client) GetAccounts(ctx context.Context, consentToken string) (*AccountsResponse, error) {
	var out AccountsResponse
	if err := c.get(ctx, "/accounts", consentToken, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchTransactions fetches every transaction of an account.
func (c *Client) FetchTransactions(ctx context.Context, accountID, consentToken string) (*TransactionsResponse, error) {
	var out TransactionsResponse
	path := "/accounts/" + url.PathEscape(accountID) + "/transactions"
	if err := c.get(ctx, path, consentToken, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// get performs a GET with retries and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path, consentToken string, out any) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInitial
	policy.MaxInterval = c.retryInitial * 10

	notify := func(err error, wait time.Duration) {
		c.log.Warn().
			Err(err).
			Str("path", path).
			Dur("backoff", wait).
			Msg("Retrying open banking request")
	}

	operation := func() (struct{}, error) {
		return struct{}{}, c.do(ctx, path, consentToken, out)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(notify))
	return err
}

// do performs a single attempt. Errors that cannot be fixed by
// retrying are wrapped with backoff.Permanent.
func (c *Client) do(ctx context.Context, path, consentToken string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+path, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if consentToken != "" {
		req.Header.Set(consentHeader, consentToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if apiErr.Retryable() {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}
