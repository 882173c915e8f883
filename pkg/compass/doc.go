// Package compass is the Go client for the Blackbird Compass API.
//
// It handles the full credential/session lifecycle so callers only ever see
// a synchronous "submit work, get result" surface:
//
//   - credential resolution from the four BLACKBIRD_* environment variables
//     (client-key/secret pair wins when both pairs are configured)
//   - token acquisition against the Compass token endpoint (password grant)
//     or the Cognito OAuth2 endpoint (client-credentials grant), cached and
//     refreshed before expiry
//   - transient-failure retries with exponential backoff and jitter for
//     timeouts, resets, HTTP 429, and 5xx responses
//
// # Submitting work
//
// Compass operations are asynchronous jobs: a submit call returns an id and
// the result is polled until the job leaves the "processing" state.
// SubmitAndWait does both in one step:
//
//	creds, err := compass.ResolveCredentials(os.Getenv)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c, err := compass.New(creds)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := c.SubmitAndWait(ctx, compass.KindContext, "The moon landing was faked.", nil)
//
// # Error taxonomy
//
// Failures surface as one of four types, matched with errors.As:
//
//	*ConfigError         — missing/partial credential configuration (startup-fatal)
//	*AuthError           — handshake rejected or credentials refused
//	*RetryExhaustedError — a transient failure persisted past the retry policy
//	*APIError            — a terminal upstream rejection (status + body excerpt)
//
// Transient failures are retried inside the client; everything else
// propagates unchanged in kind.
package compass
