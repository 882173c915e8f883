package compass

// Environment variables consulted by ResolveCredentials. Exactly one pair
// must be fully present.
const (
	EnvClientKey = "BLACKBIRD_CLIENT_KEY"
	EnvSecretKey = "BLACKBIRD_SECRET_KEY"
	EnvUsername  = "BLACKBIRD_USERNAME"
	EnvPassword  = "BLACKBIRD_PASSWORD"
)

// AuthMode selects which OAuth2 grant the client uses for the handshake.
type AuthMode string

const (
	// AuthClientCredentials authenticates with a client key/secret pair
	// against the Cognito OAuth2 endpoint (client_credentials grant).
	AuthClientCredentials AuthMode = "client_credentials"

	// AuthPassword authenticates with a username/password pair against the
	// Compass token endpoint (password grant).
	AuthPassword AuthMode = "password"
)

// Credentials is the closed set of supported credential variants. Exactly
// one variant is populated; Mode records which. Immutable after resolution.
type Credentials struct {
	Mode AuthMode

	// AuthClientCredentials variant.
	ClientKey string
	SecretKey string

	// AuthPassword variant.
	Username string
	Password string
}

// ClientKeyCredentials builds the client-key/secret variant.
func ClientKeyCredentials(clientKey, secretKey string) Credentials {
	return Credentials{Mode: AuthClientCredentials, ClientKey: clientKey, SecretKey: secretKey}
}

// PasswordCredentials builds the username/password variant.
func PasswordCredentials(username, password string) Credentials {
	return Credentials{Mode: AuthPassword, Username: username, Password: password}
}

// ResolveCredentials reads the four BLACKBIRD_* variables through getenv and
// selects the credential variant to use. The client-key/secret pair takes
// precedence when both pairs are fully present. A configuration where
// neither pair is complete returns a *ConfigError naming the absent
// variables — this is a fatal startup condition, never retried.
func ResolveCredentials(getenv func(string) string) (Credentials, error) {
	clientKey := getenv(EnvClientKey)
	secretKey := getenv(EnvSecretKey)
	username := getenv(EnvUsername)
	password := getenv(EnvPassword)

	if clientKey != "" && secretKey != "" {
		return ClientKeyCredentials(clientKey, secretKey), nil
	}
	if username != "" && password != "" {
		return PasswordCredentials(username, password), nil
	}

	var missing []string
	for _, v := range []struct {
		name, value string
	}{
		{EnvClientKey, clientKey},
		{EnvSecretKey, secretKey},
		{EnvUsername, username},
		{EnvPassword, password},
	} {
		if v.value == "" {
			missing = append(missing, v.name)
		}
	}
	return Credentials{}, &ConfigError{Missing: missing}
}
