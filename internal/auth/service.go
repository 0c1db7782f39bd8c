package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"spaq.app/internal/ids"
)

const (
	defaultIssuer     = "spaq"
	defaultAccessTTL  = 7 * 24 * time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Service issues and validates credential pairs and resolves identities.
// Access and refresh tokens are signed with distinct secrets so neither can
// forge the other.
type Service struct {
	store Store
	now   func() time.Time

	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// AccessClaims are the claims embedded in access tokens.
type AccessClaims struct {
	TeamID    string `json:"team"`
	OrgID     string `json:"org"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service. Both secrets are required and must differ.
func NewService(store Store, accessSecret, refreshSecret string, opts ...ServiceOption) (*Service, error) {
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: both signing secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	svc := &Service{
		store:         store,
		now:           time.Now,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        defaultIssuer,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// RegisterParams carries the registration request.
type RegisterParams struct {
	Email            string
	Password         string
	Name             string
	OrganizationName string
	TeamName         string
}

// Registration is the result of a successful account creation.
type Registration struct {
	User         *User
	Organization *Organization
	Team         *Team
	Tokens       TokenPair
}

// Register creates organization, team and founding ADMIN user in a single
// store transaction, then issues a credential pair.
func (s *Service) Register(ctx context.Context, params RegisterParams) (Registration, error) {
	email := NormalizeEmail(params.Email)
	orgName := strings.TrimSpace(params.OrganizationName)
	teamName := strings.TrimSpace(params.TeamName)
	if email == "" || !strings.Contains(email, "@") {
		return Registration{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if orgName == "" || teamName == "" {
		return Registration{}, fmt.Errorf("%w: organization and team names are required", ErrInvalidInput)
	}
	hash, err := HashPassword(params.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return Registration{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
		}
		return Registration{}, err
	}

	now := s.now().UTC()
	org := &Organization{ID: ids.New(), Name: orgName, CreatedAt: now, UpdatedAt: now}
	team := &Team{ID: ids.New(), OrganizationID: org.ID, Name: teamName, CreatedAt: now, UpdatedAt: now}
	user := &User{
		ID:             ids.New(),
		OrganizationID: org.ID,
		TeamID:         team.ID,
		Email:          email,
		Name:           strings.TrimSpace(params.Name),
		PasswordHash:   hash,
		Role:           RoleAdmin,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Register(ctx, org, team, user); err != nil {
		return Registration{}, err
	}

	pair, err := s.Issue(ctx, user)
	if err != nil {
		return Registration{}, err
	}
	return Registration{User: user, Organization: org, Team: team, Tokens: pair}, nil
}

// Login authenticates credentials and issues a fresh pair. Every failure is
// reported as ErrUnauthorized so callers cannot probe for registered emails.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrUnauthorized
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrUnauthorized
		}
		return TokenPair{}, nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrUnauthorized
	}
	pair, err := s.Issue(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Issue mints an access/refresh pair for the user and persists the refresh
// token record. One row is inserted per issuance.
func (s *Service) Issue(ctx context.Context, user *User) (TokenPair, error) {
	now := s.now().UTC()

	accessToken, accessExp, err := s.signAccessToken(user, now)
	if err != nil {
		return TokenPair{}, err
	}

	refreshExp := now.Add(s.refreshTTL)
	jti := ids.New()
	refreshToken, err := s.signRefreshToken(user.ID, jti, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	rec := &RefreshToken{
		ID:        jti,
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: refreshExp,
		CreatedAt: now,
	}
	if err := s.store.CreateRefreshToken(ctx, rec); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateAccess verifies signature and expiry and returns the embedded
// identity. No store lookup happens here: the guard stays stateless.
func (s *Service) ValidateAccess(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.accessSecret, nil
	}, s.parserOptions()...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}
	if !parsed.Valid || claims.TokenType != tokenTypeAccess || claims.Subject == "" || claims.TeamID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		UserID:         claims.Subject,
		TeamID:         claims.TeamID,
		OrganizationID: claims.OrgID,
		Role:           claims.Role,
	}, nil
}

// ValidateRefresh verifies token signature/structure, then checks the
// persisted record: absent rows fail with ErrUnknownToken and a stored
// expiry at or before now fails with ErrExpiredToken even when the token
// itself still verifies. On success the owning user is resolved.
func (s *Service) ValidateRefresh(ctx context.Context, token string) (*User, error) {
	claims, err := s.parseRefresh(token, true)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.FindRefreshToken(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnknownToken
		}
		return nil, err
	}
	if !rec.ExpiresAt.After(s.now()) {
		return nil, ErrExpiredToken
	}
	if subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(hashToken(token))) != 1 {
		return nil, ErrInvalidToken
	}

	user, err := s.store.FindUser(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnknownToken
		}
		return nil, err
	}
	return user, nil
}

// Refresh mints a new access token for a valid refresh token. Refresh tokens
// are not single-use; overlapping refreshes both succeed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	user, err := s.ValidateRefresh(ctx, refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.signAccessToken(user, s.now().UTC())
}

// Revoke deletes the persisted refresh token row. Idempotent: revoking an
// unknown or malformed token is treated as already revoked.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.parseRefresh(refreshToken, false)
	if err != nil {
		return nil
	}
	return s.store.DeleteRefreshToken(ctx, claims.ID)
}

// RevokeAllForUser drops every persisted refresh token owned by the user.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.store.DeleteRefreshTokensByUser(ctx, userID)
}

// Profile loads the user with team and organization for /me responses.
func (s *Service) Profile(ctx context.Context, userID string) (*User, *Team, *Organization, error) {
	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	team, err := s.store.FindTeam(ctx, user.TeamID)
	if err != nil {
		return nil, nil, nil, err
	}
	org, err := s.store.FindOrganization(ctx, user.OrganizationID)
	if err != nil {
		return nil, nil, nil, err
	}
	return user, team, org, nil
}

func (s *Service) signAccessToken(user *User, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.accessTTL)
	claims := AccessClaims{
		TeamID:    user.TeamID,
		OrgID:     user.OrganizationID,
		Role:      user.Role,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        ids.New(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

func (s *Service) signRefreshToken(userID, jti string, now, exp time.Time) (string, error) {
	claims := refreshClaims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

// parseRefresh verifies signature and structure of a refresh token. When
// validate is false claim validation is skipped so expired tokens can still
// be revoked.
func (s *Service) parseRefresh(token string, validate bool) (*refreshClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := s.parserOptions()
	if !validate {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	claims := &refreshClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.refreshSecret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.TokenType != tokenTypeRefresh || claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	}
}

// NormalizeEmail lower-cases and trims an email so uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
