package auth

import (
	"errors"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Authenticator guards the incident query surface with a single operator
// account. Credentials come from the environment: AUTH_ENABLED turns the
// gate on, AUTH_USERNAME defaults to "admin", and AUTH_PASSWORD holds either
// a plaintext password or a pre-computed bcrypt hash.
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	jwtManager   *JWTManager
}

// NewAuthenticator resolves the operator credentials from the environment.
func NewAuthenticator() *Authenticator {
	enabled := os.Getenv("AUTH_ENABLED") == "true"

	username := os.Getenv("AUTH_USERNAME")
	if username == "" {
		username = "admin"
	}

	var passwordHash []byte
	if enabled {
		passwordHash = resolveHash(os.Getenv("AUTH_PASSWORD"))
	}

	return &Authenticator{
		enabled:      enabled,
		username:     username,
		passwordHash: passwordHash,
		jwtManager:   NewJWTManager(),
	}
}

// resolveHash accepts a bcrypt hash as-is and hashes anything else. An empty
// password yields a nil hash, which rejects every login.
func resolveHash(password string) []byte {
	if password == "" {
		return nil
	}
	if strings.HasPrefix(password, "$2") && len(password) == 60 {
		return []byte(password)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil
	}
	return hash
}

// IsEnabled reports whether the auth gate is active.
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate checks the operator credentials and mints a token. The second
// return is the token expiry as a Unix timestamp.
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}
	if username != a.username {
		return "", 0, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.jwtManager.GenerateToken(username)
	if err != nil {
		return "", 0, err
	}
	return token, expiresAt.Unix(), nil
}

// ValidateToken parses and verifies a token minted by Authenticate.
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.jwtManager.ValidateToken(token)
}

// HashPassword produces a bcrypt hash suitable for AUTH_PASSWORD, so the
// plaintext never has to live in the environment.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
