package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *InMemory) {
	t.Helper()
	store := NewInMemory()
	svc, err := NewService(store, "access-secret", "refresh-secret", opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func registerTestUser(t *testing.T, svc *Service) Registration {
	t.Helper()
	reg, err := svc.Register(context.Background(), RegisterParams{
		Email:            "a@x.com",
		Password:         "longenough1",
		OrganizationName: "Acme",
		TeamName:         "Core",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func TestNewServiceRejectsSharedSecret(t *testing.T) {
	if _, err := NewService(NewInMemory(), "same", "same"); err == nil {
		t.Fatal("expected error for identical secrets")
	}
	if _, err := NewService(NewInMemory(), "", "refresh"); err == nil {
		t.Fatal("expected error for empty access secret")
	}
}

func TestRegisterIssuesAdminIdentity(t *testing.T) {
	svc, _ := newTestService(t)
	reg := registerTestUser(t, svc)

	if reg.User.Role != RoleAdmin {
		t.Fatalf("expected founding user role ADMIN, got %s", reg.User.Role)
	}
	if reg.Team.OrganizationID != reg.Organization.ID {
		t.Fatalf("team not linked to organization")
	}
	if reg.User.TeamID != reg.Team.ID {
		t.Fatalf("user not linked to team")
	}

	identity, err := svc.ValidateAccess(reg.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if identity.UserID != reg.User.ID {
		t.Fatalf("round-trip identity mismatch: %s != %s", identity.UserID, reg.User.ID)
	}
	if identity.TeamID != reg.Team.ID || identity.Role != RoleAdmin {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []RegisterParams{
		{Email: "", Password: "longenough1", OrganizationName: "A", TeamName: "B"},
		{Email: "not-an-email", Password: "longenough1", OrganizationName: "A", TeamName: "B"},
		{Email: "a@x.com", Password: "short", OrganizationName: "A", TeamName: "B"},
		{Email: "a@x.com", Password: "longenough1", OrganizationName: "", TeamName: "B"},
		{Email: "a@x.com", Password: "longenough1", OrganizationName: "A", TeamName: ""},
	}
	for i, params := range cases {
		if _, err := svc.Register(context.Background(), params); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	registerTestUser(t, svc)

	_, err := svc.Register(context.Background(), RegisterParams{
		Email:            "A@X.COM",
		Password:         "longenough1",
		OrganizationName: "Other",
		TeamName:         "Other",
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for case-normalized duplicate, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	reg := registerTestUser(t, svc)

	pair, user, err := svc.Login(context.Background(), "A@x.com", "longenough1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != reg.User.ID {
		t.Fatalf("unexpected user: %s", user.ID)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected token pair")
	}

	if _, _, err := svc.Login(context.Background(), "a@x.com", "wrongpassword"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for bad password, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody@x.com", "longenough1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown email, got %v", err)
	}
}

func TestValidateAccessRejectsExpired(t *testing.T) {
	now := time.Now().UTC()
	clock := now
	svc, _ := newTestService(t, WithAccessTTL(time.Minute), WithClock(func() time.Time { return clock }))
	reg := registerTestUser(t, svc)

	clock = now.Add(2 * time.Minute)
	if _, err := svc.ValidateAccess(reg.Tokens.AccessToken); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateAccessRejectsForgery(t *testing.T) {
	svc, _ := newTestService(t)
	reg := registerTestUser(t, svc)

	if _, err := svc.ValidateAccess("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
	if _, err := svc.ValidateAccess(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
	// A refresh token signed with the other secret must not pass the guard.
	if _, err := svc.ValidateAccess(reg.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for refresh token, got %v", err)
	}

	other, err := NewService(NewInMemory(), "other-access", "other-refresh")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := other.ValidateAccess(reg.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken across secrets, got %v", err)
	}
}

func TestRefreshMintsNewAccessToken(t *testing.T) {
	svc, _ := newTestService(t)
	reg := registerTestUser(t, svc)

	token, exp, err := svc.Refresh(context.Background(), reg.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", exp)
	}
	identity, err := svc.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess on refreshed token: %v", err)
	}
	if identity.UserID != reg.User.ID {
		t.Fatalf("refreshed identity mismatch: %s", identity.UserID)
	}

	// Refresh tokens are not single-use: a second refresh also succeeds.
	if _, _, err := svc.Refresh(context.Background(), reg.Tokens.RefreshToken); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
}

func TestValidateRefreshUnknownAfterRevoke(t *testing.T) {
	svc, _ := newTestService(t)
	reg := registerTestUser(t, svc)

	if err := svc.Revoke(context.Background(), reg.Tokens.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.ValidateRefresh(context.Background(), reg.Tokens.RefreshToken); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken after revoke, got %v", err)
	}

	// Idempotent: revoking again is not an error.
	if err := svc.Revoke(context.Background(), reg.Tokens.RefreshToken); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	// Malformed tokens are treated as already revoked.
	if err := svc.Revoke(context.Background(), "garbage"); err != nil {
		t.Fatalf("Revoke garbage: %v", err)
	}
}

func TestValidateRefreshHonorsPersistedExpiry(t *testing.T) {
	now := time.Now().UTC()
	clock := now
	svc, store := newTestService(t, WithClock(func() time.Time { return clock }))
	reg := registerTestUser(t, svc)

	// Age the persisted record past its expiry while the signed token itself
	// would still verify at +29d; the stored timestamp wins.
	rec, err := store.FindRefreshToken(context.Background(), refreshID(t, svc, reg.Tokens.RefreshToken))
	if err != nil {
		t.Fatalf("FindRefreshToken: %v", err)
	}
	rec.ExpiresAt = now.Add(time.Hour)
	if err := store.CreateRefreshToken(context.Background(), rec); err != nil {
		t.Fatalf("update record: %v", err)
	}

	clock = now.Add(2 * time.Hour)
	if _, err := svc.ValidateRefresh(context.Background(), reg.Tokens.RefreshToken); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken from persisted expiry, got %v", err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	svc, _ := newTestService(t)
	reg := registerTestUser(t, svc)

	pair2, err := svc.Issue(context.Background(), reg.User)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.RevokeAllForUser(context.Background(), reg.User.ID); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	for _, tok := range []string{reg.Tokens.RefreshToken, pair2.RefreshToken} {
		if _, err := svc.ValidateRefresh(context.Background(), tok); !errors.Is(err, ErrUnknownToken) {
			t.Fatalf("expected ErrUnknownToken, got %v", err)
		}
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("longenough1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "longenough1" {
		t.Fatal("hash must not equal plaintext")
	}
	if err := VerifyPassword(hash, "longenough1"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
	if _, err := HashPassword("short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
}

func TestContextIdentity(t *testing.T) {
	ctx := context.Background()
	if _, ok := IdentityFromContext(ctx); ok {
		t.Fatal("expected no identity on empty context")
	}
	want := Identity{UserID: "u1", TeamID: "t1", OrganizationID: "o1", Role: RoleMember}
	ctx = ContextWithIdentity(ctx, want)
	got, ok := IdentityFromContext(ctx)
	if !ok || got != want {
		t.Fatalf("identity round-trip failed: %+v ok=%v", got, ok)
	}
	if got.IsAdmin() {
		t.Fatal("member identity must not report admin")
	}
}

// refreshID extracts the persisted record id from a refresh token.
func refreshID(t *testing.T, svc *Service, token string) string {
	t.Helper()
	claims, err := svc.parseRefresh(token, true)
	if err != nil {
		t.Fatalf("parseRefresh: %v", err)
	}
	return claims.ID
}
