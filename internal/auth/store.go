package auth

import "context"

// Store describes persistence operations required by the credential service.
type Store interface {
	// Register creates the organization, team and founding ADMIN user
	// atomically. Partial creation must not survive a failure.
	Register(ctx context.Context, org *Organization, team *Team, user *User) error

	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindTeam(ctx context.Context, id string) (*Team, error)
	FindOrganization(ctx context.Context, id string) (*Organization, error)

	CreateRefreshToken(ctx context.Context, tok *RefreshToken) error
	FindRefreshToken(ctx context.Context, id string) (*RefreshToken, error)
	// DeleteRefreshToken is idempotent: deleting an absent token is not an error.
	DeleteRefreshToken(ctx context.Context, id string) error
	DeleteRefreshTokensByUser(ctx context.Context, userID string) error
}
