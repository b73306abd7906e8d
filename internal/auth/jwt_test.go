package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateAccessToken(42, "alice@example.com", "alice")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "alice@example.com" || claims.Nickname != "alice" {
		t.Errorf("claims mangled: %+v", claims)
	}
	if claims.Issuer != "canvas-api" {
		t.Errorf("wrong issuer: %s", claims.Issuer)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute)

	token, err := m.GenerateAccessToken(1, "a@b.c", "a")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := m.ValidateAccessToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", time.Hour)
	verifier := NewJWTManager("secret-b", time.Hour)

	token, _ := issuer.GenerateAccessToken(1, "a@b.c", "a")
	if _, err := verifier.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	if _, err := m.ValidateAccessToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
