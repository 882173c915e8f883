package compass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default endpoints, overridable with WithBaseURL / WithAuthURL.
const (
	DefaultBaseURL = "https://api.blackbird.ai"

	// DefaultCognitoAuthURL is the token endpoint for the
	// client-credentials grant. The password grant uses
	// {base}/compass/token instead.
	DefaultCognitoAuthURL = "https://blackbird-ai.auth.us-west-2.amazoncognito.com/oauth2/token"
)

// defaultTokenMargin is subtracted from the stated token lifetime so a token
// is never presented right at its expiry boundary (clock skew, in-flight
// request latency).
const defaultTokenMargin = 30 * time.Second

// Kind identifies a Compass resource collection.
type Kind string

const (
	// KindContext submits a passage of text for claim/risk analysis.
	KindContext Kind = "compass/contextChecks"

	// KindVision submits an image URL for fake/AI-generation analysis.
	KindVision Kind = "compass/visionAnalyses"
)

// PollConfig bounds the submit-then-poll workflow of SubmitAndWait.
type PollConfig struct {
	Interval  time.Duration // delay between result checks
	MaxChecks int           // upper bound on checks per job
	MaxWait   time.Duration // wall-clock ceiling per job
}

// DefaultPollConfig matches the vendor's stated processing envelope.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:  10 * time.Second,
		MaxChecks: 60,
		MaxWait:   10 * time.Minute,
	}
}

// Client is the Compass SDK entry point. Safe for concurrent use; the only
// mutable shared state is the cached session, guarded by the token manager.
type Client struct {
	baseURL string
	authURL string // set lazily from creds when not overridden
	tr      *transport
	tokens  *tokenManager
	poll    PollConfig
	logger  *zap.Logger
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the Compass API base URL.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithAuthURL overrides the token endpoint for both auth modes.
func WithAuthURL(u string) Option {
	return func(c *Client) { c.authURL = u }
}

// WithHTTPClient sets a custom http.Client for all outbound calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.tr.hc = hc }
}

// WithRetryPolicy replaces the default transient-failure retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.tr.policy = p }
}

// WithRateLimit caps outbound attempts at rps requests per second with the
// given burst. Zero rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.tr.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger sets the structured logger. Defaults to zap.NewNop.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTokenMargin sets the safety margin subtracted from token lifetimes.
func WithTokenMargin(d time.Duration) Option {
	return func(c *Client) { c.tokens.margin = d }
}

// WithPollConfig replaces the default SubmitAndWait polling bounds.
func WithPollConfig(p PollConfig) Option {
	return func(c *Client) { c.poll = p }
}

// WithHooks installs observability callbacks.
func WithHooks(h Hooks) Option {
	return func(c *Client) { c.tr.hooks = h }
}

// New creates a Compass client for the given credentials.
//
//	creds, _ := compass.ResolveCredentials(os.Getenv)
//	c, err := compass.New(creds,
//	    compass.WithLogger(logger),
//	    compass.WithRetryPolicy(compass.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: 0.5}),
//	)
func New(creds Credentials, opts ...Option) (*Client, error) {
	switch creds.Mode {
	case AuthClientCredentials, AuthPassword:
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", creds.Mode)
	}

	c := &Client{
		baseURL: DefaultBaseURL,
		tr: &transport{
			hc:     &http.Client{Timeout: 30 * time.Second},
			policy: DefaultRetryPolicy(),
		},
		poll:   DefaultPollConfig(),
		logger: zap.NewNop(),
	}
	c.tokens = &tokenManager{
		creds:  creds,
		margin: defaultTokenMargin,
		tr:     c.tr,
	}
	for _, o := range opts {
		o(c)
	}

	if c.authURL == "" {
		switch creds.Mode {
		case AuthClientCredentials:
			c.authURL = DefaultCognitoAuthURL
		case AuthPassword:
			c.authURL = c.baseURL + "/compass/token"
		}
	}
	c.tokens.authURL = c.authURL
	c.tokens.logger = c.logger
	c.tr.logger = c.logger
	return c, nil
}

// AuthMode reports which credential variant the client was built with.
func (c *Client) AuthMode() AuthMode { return c.tokens.creds.Mode }

// BaseURL reports the configured Compass API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Submit posts input to the given resource collection and returns the job id.
func (c *Client) Submit(ctx context.Context, kind Kind, input string, opts map[string]any) (string, error) {
	payload := map[string]any{"input": input}
	if len(opts) > 0 {
		payload["options"] = opts
	}

	body, err := c.authorized(ctx, http.MethodPost, c.baseURL+"/"+string(kind), payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &APIError{Status: http.StatusOK, Body: "submit response is not JSON: " + excerpt(body)}
	}
	if resp.ID == "" {
		return "", &APIError{Status: http.StatusOK, Body: "submit response carries no id: " + excerpt(body)}
	}
	return resp.ID, nil
}

// Check fetches the current record of a submitted job.
func (c *Client) Check(ctx context.Context, kind Kind, id string) (map[string]any, error) {
	body, err := c.authorized(ctx, http.MethodGet, c.baseURL+"/"+string(kind)+"/"+id, nil)
	if err != nil {
		return nil, err
	}

	var record map[string]any
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, &APIError{Status: http.StatusOK, Body: "check response is not JSON: " + excerpt(body)}
	}
	return record, nil
}

// SubmitAndWait submits input and polls until the job completes, the polling
// bounds are exhausted, or ctx is cancelled. Jobs that report "failed" are
// polled again — Compass re-runs them — and the last reported error is
// surfaced if the job never recovers.
func (c *Client) SubmitAndWait(ctx context.Context, kind Kind, input string, opts map[string]any) (map[string]any, error) {
	id, err := c.Submit(ctx, kind, input, opts)
	if err != nil {
		return nil, err
	}
	c.logger.Info("compass job submitted",
		zap.String("kind", string(kind)),
		zap.String("id", id),
	)

	deadline := time.Now().Add(c.poll.MaxWait)
	var lastJobErr string

	for checks := 0; checks < c.poll.MaxChecks && time.Now().Before(deadline); checks++ {
		record, err := c.Check(ctx, kind, id)
		if err != nil {
			return nil, err
		}

		status, _ := record["status"].(string)
		switch status {
		case "success":
			if result, ok := completedResult(kind, record); ok {
				return result, nil
			}
			// Success without the expected payload shape: treat like an
			// in-flight record and check again.
			c.logger.Warn("compass job succeeded with unexpected shape", zap.String("id", id))
		case "failed":
			if msg, _ := record["error"].(string); msg != "" {
				lastJobErr = msg
			}
			c.logger.Warn("compass job reported failure, polling again",
				zap.String("id", id),
				zap.String("error", lastJobErr),
			)
		case "processing":
		default:
			c.logger.Warn("compass job in unknown state, polling again",
				zap.String("id", id),
				zap.String("status", status),
			)
		}

		if err := sleepCtx(ctx, c.poll.Interval); err != nil {
			return nil, err
		}
	}

	if lastJobErr != "" {
		return nil, fmt.Errorf("compass job %s did not complete within %s: %s", id, c.poll.MaxWait, lastJobErr)
	}
	return nil, fmt.Errorf("compass job %s did not complete within %s", id, c.poll.MaxWait)
}

// completedResult flattens a finished job record into the shape returned to
// callers: context checks merge the context fields with the original input;
// vision analyses merge the analysis with its options and input.
func completedResult(kind Kind, record map[string]any) (map[string]any, bool) {
	switch kind {
	case KindContext:
		data, ok := record["context"].(map[string]any)
		if !ok {
			return nil, false
		}
		out := make(map[string]any, len(data)+1)
		for k, v := range data {
			out[k] = v
		}
		out["input"] = record["input"]
		return out, true
	case KindVision:
		analysis, ok := record["analysis"].(map[string]any)
		if !ok {
			return nil, false
		}
		out := make(map[string]any, len(analysis)+2)
		for k, v := range analysis {
			out[k] = v
		}
		out["options"] = record["options"]
		out["input"] = record["input"]
		return out, true
	}
	return nil, false
}

// authorized performs one authenticated API call. A 401/403 invalidates the
// cached session and the call is replayed once with a fresh token; a second
// rejection is an *AuthError.
func (c *Client) authorized(ctx context.Context, method, url string, payload any) ([]byte, error) {
	requestID := uuid.New().String()

	tok, err := c.tokens.token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.call(ctx, method, url, payload, tok, requestID)
	if err == nil {
		return body, nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || (apiErr.Status != http.StatusUnauthorized && apiErr.Status != http.StatusForbidden) {
		return nil, err
	}

	// Upstream rejected a token we thought was valid. Re-authenticate once
	// and replay; if Compass still refuses, the credentials are the problem.
	c.logger.Warn("compass rejected session token, re-authenticating",
		zap.Int("status", apiErr.Status),
		zap.String("request_id", requestID),
	)
	c.tokens.invalidate(tok)
	tok, err = c.tokens.token(ctx)
	if err != nil {
		return nil, err
	}

	body, err = c.call(ctx, method, url, payload, tok, requestID)
	if err == nil {
		return body, nil
	}
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		return nil, &AuthError{Cause: apiErr}
	}
	return nil, err
}

// call issues one request through the retrying transport.
func (c *Client) call(ctx context.Context, method, url string, payload any, token, requestID string) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		if encoded, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	_, body, err := c.tr.do(ctx, func() (*http.Request, error) {
		var reader *bytes.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}

		var req *http.Request
		var err error
		if reader != nil {
			req, err = http.NewRequestWithContext(ctx, method, url, reader)
		} else {
			req, err = http.NewRequestWithContext(ctx, method, url, nil)
		}
		if err != nil {
			return nil, err
		}
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Request-ID", requestID)
		return req, nil
	})
	return body, err
}
