package auth

import (
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	m := NewTokenManager("test-secret")

	token, err := m.Issue(42, "owner@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "owner@example.com" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := NewTokenManager("secret-a").Issue(1, "a@b.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := NewTokenManager("secret-b").Verify(token); err == nil {
		t.Fatal("expected verification failure with wrong secret")
	}
}

func TestVerifyExpired(t *testing.T) {
	m := NewTokenManager("test-secret")

	issued := time.Now()
	m.now = func() time.Time { return issued }
	token, err := m.Issue(1, "a@b.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	m.now = func() time.Time { return issued.Add(TokenTTL + time.Minute) }
	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected expired token to fail verification")
	}
}

func TestVerifyGarbage(t *testing.T) {
	if _, err := NewTokenManager("test-secret").Verify("not-a-token"); err == nil {
		t.Fatal("expected parse failure")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "hunter22" {
		t.Fatal("hash must not equal plaintext")
	}
	if !CheckPassword(hash, "hunter22") {
		t.Fatal("correct password rejected")
	}
	if CheckPassword(hash, "hunter23") {
		t.Fatal("wrong password accepted")
	}
}
