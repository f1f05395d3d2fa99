package auth

import (
	"testing"
	"time"
)

func TestSignAndVerifyHS256(t *testing.T) {
	claims := Claims{Sub: "client-1", Role: "client", Iat: time.Now().Unix(), Exp: time.Now().Add(time.Hour).Unix()}
	token, err := SignHS256(claims, "s3cret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	got, err := ParseAndVerifyHS256(token, "s3cret")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if got.Sub != "client-1" || got.Role != "client" {
		t.Fatalf("unexpected claims %+v", got)
	}

	if _, err := ParseAndVerifyHS256(token, "other"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	claims := Claims{Sub: "admin-1", Role: "admin", Exp: time.Now().Add(-time.Minute).Unix()}
	token, err := SignHS256(claims, "s3cret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s3cret"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc.def.ghi"); !ok || tok != "abc.def.ghi" {
		t.Fatalf("unexpected %q %v", tok, ok)
	}
	if _, ok := BearerToken("Basic xyz"); ok {
		t.Fatal("expected non-bearer header to be rejected")
	}
	if _, ok := BearerToken("Bearer "); ok {
		t.Fatal("expected empty token to be rejected")
	}
}
