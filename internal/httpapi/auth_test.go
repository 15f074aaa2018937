package httpapi

import (
	"testing"
	"time"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/store/memory"
)

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, memory.NewSeeded())

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %q", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, memory.NewSeeded())

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "nope"}); err == nil {
		t.Fatalf("expected bad password to be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, nil)

	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	signer := NewAuthManager("secret-a", time.Hour, memory.NewSeeded())
	verifier := NewAuthManager("secret-b", time.Hour, nil)

	resp, err := signer.Login(domain.LoginRequest{Username: "cashier", Password: "cashier123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
