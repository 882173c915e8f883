package compass

import (
	"fmt"
	"strings"
)

// maxBodyExcerpt bounds how much of an upstream response body is carried in
// an APIError message.
const maxBodyExcerpt = 512

// ConfigError reports a missing or partially populated credential
// configuration. It names exactly which environment variables are absent.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf(
		"incomplete Blackbird credentials: set %s and %s, or %s and %s (missing: %s)",
		EnvClientKey, EnvSecretKey, EnvUsername, EnvPassword,
		strings.Join(e.Missing, ", "),
	)
}

// AuthError reports a failed authentication handshake: credentials were
// rejected, the token endpoint returned an error payload, or the handshake
// exhausted its transient retries. The session returns to the
// unauthenticated state, so a later call may try again.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// APIError is a terminal upstream rejection — an HTTP status that retrying
// cannot fix (4xx other than 429) or a malformed response. It carries the
// status and a bounded excerpt of the response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("compass API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("compass API error: HTTP %d: %s", e.Status, e.Body)
}

// RetryExhaustedError reports that a transient failure persisted beyond the
// retry policy. Last is the failure from the final attempt.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// excerpt trims body for inclusion in error messages.
func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyExcerpt {
		s = s[:maxBodyExcerpt] + "…"
	}
	return s
}
