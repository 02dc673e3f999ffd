package auth

import (
	"errors"
	"testing"
	"time"

	"hisab/internal/core"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("password should match its hash")
	}
	if CheckPassword(hash, "wrong horse") {
		t.Error("wrong password must not match")
	}
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestIssuer_RoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 19, 10, 0, 0, 0, time.UTC)
	iss := NewIssuer("test-secret", time.Hour).WithClock(func() time.Time { return now })

	token, exp, err := iss.Issue(core.User{ID: 42, Name: "Asha", Role: core.UserRoleParent})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Errorf("expiry = %v", exp)
	}

	claims, err := iss.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	id, _ := claims.UserID()
	if id != 42 || claims.Role != core.UserRoleParent || claims.Name != "Asha" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestIssuer_Rejects(t *testing.T) {
	now := time.Date(2025, 3, 19, 10, 0, 0, 0, time.UTC)
	iss := NewIssuer("test-secret", time.Minute).WithClock(func() time.Time { return now })
	token, _, err := iss.Issue(core.User{ID: 1})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := NewIssuer("other-secret", time.Minute).WithClock(func() time.Time { return now })
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign secret: got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := iss.Parse(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired token: got %v", err)
	}

	if _, err := iss.Parse("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: got %v", err)
	}
}
