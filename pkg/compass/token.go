package compass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// defaultTokenLifetime is assumed when the token endpoint states no lifetime
// and the access token carries no exp claim.
const defaultTokenLifetime = 5 * time.Minute

// session is the cached outcome of one successful handshake. It is replaced
// atomically on refresh and never persisted.
type session struct {
	accessToken string
	expiresAt   time.Time
}

// tokenManager owns the process-wide session. token() is the single entry
// point: a valid cached token is returned without I/O; otherwise one
// handshake runs while concurrent callers wait on the mutex and observe its
// outcome (single-flight).
type tokenManager struct {
	creds   Credentials
	authURL string
	margin  time.Duration
	tr      *transport
	logger  *zap.Logger

	mu   sync.Mutex
	sess *session
}

// token returns a bearer token valid for at least the safety margin.
func (m *tokenManager) token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess != nil && time.Now().Before(m.sess.expiresAt) {
		return m.sess.accessToken, nil
	}
	m.sess = nil

	tok, expiresAt, err := m.handshake(ctx)
	if m.tr.hooks.OnTokenRefresh != nil {
		m.tr.hooks.OnTokenRefresh(err == nil)
	}
	if err != nil {
		return "", err
	}

	m.sess = &session{accessToken: tok, expiresAt: expiresAt}
	m.logger.Info("compass session established",
		zap.String("auth_mode", string(m.creds.Mode)),
		zap.Time("expires_at", expiresAt),
	)
	return tok, nil
}

// invalidate drops the cached session if it still holds tok. Compare-and-
// clear so a refresh that already replaced the session is not discarded.
func (m *tokenManager) invalidate(tok string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil && m.sess.accessToken == tok {
		m.sess = nil
	}
}

// handshake performs one auth exchange through the retrying transport.
// Transient network failures are retried beneath this layer; any other
// failure is an *AuthError — bad credentials are terminal, not backed off.
func (m *tokenManager) handshake(ctx context.Context) (string, time.Time, error) {
	form := url.Values{}
	switch m.creds.Mode {
	case AuthClientCredentials:
		form.Set("client_id", m.creds.ClientKey)
		form.Set("client_secret", m.creds.SecretKey)
		form.Set("grant_type", "client_credentials")
	case AuthPassword:
		form.Set("username", m.creds.Username)
		form.Set("password", m.creds.Password)
		form.Set("grant_type", "password")
	default:
		return "", time.Time{}, &AuthError{Cause: fmt.Errorf("unknown auth mode %q", m.creds.Mode)}
	}
	encoded := form.Encode()

	_, body, err := m.tr.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", time.Time{}, ctx.Err()
		}
		return "", time.Time{}, &AuthError{Cause: err}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", time.Time{}, &AuthError{Cause: fmt.Errorf("decode token response: %w", err)}
	}
	if payload.Error != "" {
		return "", time.Time{}, &AuthError{Cause: fmt.Errorf("token endpoint: %s", payload.Error)}
	}
	if payload.AccessToken == "" {
		return "", time.Time{}, &AuthError{Cause: fmt.Errorf("token endpoint returned no access_token")}
	}

	return payload.AccessToken, m.expiry(payload.AccessToken, payload.ExpiresIn), nil
}

// expiry computes the session deadline: the stated lifetime minus the safety
// margin, falling back to the JWT exp claim when the endpoint states none.
func (m *tokenManager) expiry(accessToken string, expiresIn int) time.Time {
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn)*time.Second - m.margin)
	}

	// Cognito access tokens are JWTs; the exp claim is authoritative even
	// when expires_in is absent. Signature verification is the vendor's
	// concern, not ours — we only need the deadline.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time.Add(-m.margin)
		}
	}
	return time.Now().Add(defaultTokenLifetime - m.margin)
}
