package auth

import (
	"testing"
)

func TestAuthenticateRoundTrip(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_USERNAME", "operator")
	t.Setenv("AUTH_PASSWORD", "hunter2")
	t.Setenv("JWT_SECRET", "test-secret")

	a := NewAuthenticator()
	if !a.IsEnabled() {
		t.Fatal("authenticator should be enabled")
	}

	token, expiresAt, err := a.Authenticate("operator", "hunter2")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if token == "" || expiresAt == 0 {
		t.Fatal("empty token or expiry")
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("token validation failed: %v", err)
	}
	if claims.Username != "operator" {
		t.Errorf("unexpected username in claims: %s", claims.Username)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_USERNAME", "operator")
	t.Setenv("AUTH_PASSWORD", "hunter2")

	a := NewAuthenticator()

	if _, _, err := a.Authenticate("operator", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := a.Authenticate("intruder", "hunter2"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for wrong user, got %v", err)
	}
}

func TestAuthenticateAcceptsPrehashedPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_USERNAME", "operator")
	t.Setenv("AUTH_PASSWORD", hash)
	t.Setenv("JWT_SECRET", "test-secret")

	a := NewAuthenticator()
	if _, _, err := a.Authenticate("operator", "hunter2"); err != nil {
		t.Fatalf("authenticate with pre-hashed password failed: %v", err)
	}
}

func TestAuthenticateDisabled(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "false")

	a := NewAuthenticator()
	if _, _, err := a.Authenticate("operator", "hunter2"); err != ErrAuthDisabled {
		t.Errorf("expected ErrAuthDisabled, got %v", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	m := NewJWTManager()
	if _, err := m.ValidateToken("not.a.token"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
