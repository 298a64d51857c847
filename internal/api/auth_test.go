package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	token, err := v.Sign("agent-1", "org-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := v.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.AgentID != "agent-1" || claims.OrganizationID != "org-1" {
		t.Fatalf("claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenVerifier("secret-a").Sign("agent-1", "org-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokenVerifier("secret-b").Verify(token); err == nil {
		t.Fatal("token verified with the wrong secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	token, err := v.Sign("agent-1", "org-1", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expired token verified")
	}
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	claims := Claims{AgentID: "agent-1", OrganizationID: "org-1"}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokenVerifier("test-secret").Verify(unsigned); err == nil {
		t.Fatal("alg=none token verified")
	}
}
