package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func withSecret(t *testing.T) {
	t.Helper()
	ResetSecretForTests()
	t.Setenv("LEKHA_AUTH_SECRET", "test-secret")
	t.Cleanup(ResetSecretForTests)
}

func TestTokenRoundTrip(t *testing.T) {
	withSecret(t)
	token, err := GenerateToken("user-1", "U@Example.com", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if claims.Email != "u@example.com" {
		t.Fatalf("email = %q", claims.Email)
	}
}

func TestTokenRejections(t *testing.T) {
	withSecret(t)
	if _, err := GenerateToken("", "e@example.com", time.Minute); err == nil {
		t.Fatal("empty user accepted")
	}
	if _, err := GenerateToken("u", "e@example.com", 0); err == nil {
		t.Fatal("zero ttl accepted")
	}
	if _, err := ParseAndValidate("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: %v", err)
	}
	if _, err := ParseAndValidate(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	withSecret(t)
	token, err := GenerateToken("user-1", "", time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	ResetSecretForTests()
	t.Setenv("LEKHA_AUTH_SECRET", "")
	t.Cleanup(ResetSecretForTests)
	if _, err := GenerateToken("user-1", "", time.Minute); err == nil {
		t.Fatal("expected missing-secret error")
	}
}

func TestPasswordHashVerify(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyPassword(hash, "s3cret"); err != nil {
		t.Fatal(err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
}

func TestRegisterLoginAuthenticate(t *testing.T) {
	withSecret(t)
	svc, err := NewService(NewInMemoryUsers(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	u, err := svc.Register(ctx, "Shop@Example.com", "Shop Keeper", "pw123")
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != "shop@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if _, err := svc.Register(ctx, "shop@example.com", "Dup", "pw"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate register: %v", err)
	}
	if _, err := svc.Register(ctx, "bad-email", "X", "pw"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email: %v", err)
	}

	token, logged, err := svc.Login(ctx, "shop@example.com", "pw123")
	if err != nil {
		t.Fatal(err)
	}
	if logged.ID != u.ID {
		t.Fatal("login returned wrong user")
	}
	if _, _, err := svc.Login(ctx, "shop@example.com", "nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, _, err := svc.Login(ctx, "ghost@example.com", "pw"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown user: %v", err)
	}

	id, err := svc.AuthenticateToken(ctx, token)
	if err != nil {
		t.Fatal(err)
	}
	if id.UserID != u.ID || id.Email != "shop@example.com" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := ContextWithIdentity(context.Background(), Identity{UserID: " u1 ", Email: "A@B.com"})
	id, ok := IdentityFromContext(ctx)
	if !ok || id.UserID != "u1" || id.Email != "a@b.com" {
		t.Fatalf("identity = %+v ok=%v", id, ok)
	}
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("identity from empty context")
	}
}
