package service

import (
	"testing"
	"time"

	"github.com/gradia-app/gradia-backend/internal/config"
)

func authConfig(expiry time.Duration) *config.Config {
	return &config.Config{JWTSecret: "test-secret", JWTExpiry: expiry}
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(authConfig(time.Hour))

	token, err := svc.GenerateToken(42, TokenTypeLearner, "class-9")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != 42 || claims.TokenType != TokenTypeLearner || claims.ClassID != "class-9" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewAuthService(authConfig(time.Hour)).GenerateToken(42, TokenTypeTeacher, "")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	other := NewAuthService(&config.Config{JWTSecret: "different", JWTExpiry: time.Hour})
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatal("expected validation failure with wrong secret")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc := NewAuthService(authConfig(-time.Minute))

	token, err := svc.GenerateToken(42, TokenTypeLearner, "")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expected expired token to fail validation")
	}
}
