package auth

import (
	"testing"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/common/config"
	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAccessToken(t *testing.T) {
	cfg := config.AuthConfig{
		Enabled:   true,
		JWTSecret: "test-secret",
		Issuer:    "swiftcourier",
		Audience:  "swiftcourier",
	}

	token, exp, err := GenerateAccessToken(cfg, "u-1", []string{"user"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	if exp.Before(time.Now()) {
		t.Fatalf("expected exp in future")
	}

	claims := &struct {
		Roles []string `json:"roles"`
		jwt.RegisteredClaims
	}{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || parsed == nil || !parsed.Valid {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "u-1" {
		t.Fatalf("subject mismatch: %s", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "user" {
		t.Fatalf("roles mismatch: %#v", claims.Roles)
	}
}

func TestParseAccessToken(t *testing.T) {
	cfg := config.AuthConfig{
		Enabled:   true,
		JWTSecret: "test-secret",
		Issuer:    "swiftcourier",
		Audience:  "swiftcourier",
	}

	token, _, err := GenerateAccessToken(cfg, "u-2", []string{"user", "admin"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.Subject != "u-2" {
		t.Fatalf("subject mismatch: %s", claims.Subject)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("roles mismatch: %#v", claims.Roles)
	}

	// 错误的 issuer 应被拒绝
	bad := cfg
	bad.Issuer = "someone-else"
	if _, err := ParseAccessToken(bad, token); err == nil {
		t.Fatalf("expected issuer mismatch to fail")
	}

	// 改动签名应被拒绝
	if _, err := ParseAccessToken(cfg, token+"x"); err == nil {
		t.Fatalf("expected tampered token to fail")
	}
}

func TestBearerToken(t *testing.T) {
	if got := BearerToken("Bearer abc"); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := BearerToken("bearer   abc  "); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := BearerToken(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
