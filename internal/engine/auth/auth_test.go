package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	iss := Issuer{Secret: "s3cret", Issuer: "jiradialog", TTL: time.Minute, Now: func() time.Time { return now }}

	tok, err := iss.Issue("alice", "https://jira.example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := iss.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "alice" || claims.BaseURL != "https://jira.example.com" || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := iss.VerifyFor(tok, "https://jira.example.com/"); err != nil {
		t.Fatalf("verify for same base url: %v", err)
	}
	var aud AudienceError
	if _, err := iss.VerifyFor(tok, "https://other.example.com"); !errors.As(err, &aud) {
		t.Fatalf("expected audience error, got %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	iss := Issuer{Secret: "s3cret", TTL: time.Minute, Now: func() time.Time { return now }}
	tok, err := iss.Issue("alice", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := Issuer{Secret: "different", Now: iss.Now}
	if _, err := other.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}

	later := iss
	later.Now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := later.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token after expiry, got %v", err)
	}

	if _, err := iss.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for garbage, got %v", err)
	}

	if _, err := (Issuer{}).Issue("alice", ""); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
	if _, err := iss.Issue(" ", ""); err == nil {
		t.Fatalf("expected subject required error")
	}
}
