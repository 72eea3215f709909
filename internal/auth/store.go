package auth

import (
	"context"
	"time"
)

// Store is the persistence boundary for users, the refresh-token ledger and
// the authorization-code ledger. Implementations must make the two Consume
// operations conditional updates: given concurrent calls for the same id,
// exactly one may return true.
//
// Lookups return sql.ErrNoRows when nothing matches.
type Store interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByNaverID(ctx context.Context, naverID string) (User, error)
	// UpdateNaverUser rewrites the stored (encrypted) provider tokens and,
	// when provided, refreshes the profile fields.
	UpdateNaverUser(ctx context.Context, userID, encryptedAccessToken, encryptedRefreshToken string, email *string, name string) (User, error)

	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (RefreshTokenRecord, error)
	// ConsumeRefreshToken marks the record revoked iff it is not already;
	// reports whether this call won.
	ConsumeRefreshToken(ctx context.Context, id string) (bool, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error

	CreateAuthorizationCode(ctx context.Context, record AuthorizationCodeRecord) error
	GetAuthorizationCode(ctx context.Context, codeHash string) (AuthorizationCodeRecord, error)
	// ConsumeAuthorizationCode marks the code used iff it is not already;
	// reports whether this call won.
	ConsumeAuthorizationCode(ctx context.Context, id string) (bool, error)
}
