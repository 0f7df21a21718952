package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := &service{secret: []byte("test-secret"), tokenTTL: time.Hour}
	id := uuid.New()

	token, err := svc.issueToken(id)
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	got, err := svc.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if got != id {
		t.Errorf("subject: got %s, want %s", got, id)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := &service{secret: []byte("secret-a"), tokenTTL: time.Hour}
	verifier := &service{secret: []byte("secret-b"), tokenTTL: time.Hour}

	token, err := issuer.issueToken(uuid.New())
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	if _, err := verifier.ValidateToken(context.Background(), token); err == nil {
		t.Error("token signed with another secret must be rejected")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	svc := &service{secret: []byte("test-secret"), tokenTTL: -time.Minute}

	token, err := svc.issueToken(uuid.New())
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Error("expired token must be rejected")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := &service{secret: []byte("test-secret"), tokenTTL: time.Hour}
	if _, err := svc.ValidateToken(context.Background(), "not.a.token"); err == nil {
		t.Error("garbage must be rejected")
	}
}
