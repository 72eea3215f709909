package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Repository is the Postgres-backed Store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

const userColumns = `id, email, name, provider, password_hash, naver_id, naver_access_token, naver_refresh_token, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.Provider,
		&user.PasswordHash, &user.NaverID, &user.NaverAccessToken, &user.NaverRefreshToken,
		&user.CreatedAt, &user.UpdatedAt,
	)
	return user, err
}

func (r *Repository) CreateUser(ctx context.Context, user User) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	now := time.Now().UTC()
	user.ID = id.String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, provider, password_hash, naver_id, naver_access_token, naver_refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, user.ID, user.Email, user.Name, user.Provider, user.PasswordHash, user.NaverID, user.NaverAccessToken, user.NaverRefreshToken, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "users_email_key" {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1
	`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByNaverID(ctx context.Context, naverID string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE naver_id = $1
	`, naverID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by naver id: %w", err)
	}
	return user, nil
}

func (r *Repository) UpdateNaverUser(ctx context.Context, userID, encryptedAccessToken, encryptedRefreshToken string, email *string, name string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET naver_access_token = $2,
			naver_refresh_token = $3,
			email = COALESCE($4, email),
			name = COALESCE(NULLIF($5, ''), name),
			updated_at = $6
		WHERE id = $1
		RETURNING `+userColumns+`
	`, userID, encryptedAccessToken, encryptedRefreshToken, email, name, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("update naver user: %w", err)
	}
	return user, nil
}

func (r *Repository) CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, id.String(), userID, tokenHash, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

func (r *Repository) GetRefreshToken(ctx context.Context, tokenHash string) (RefreshTokenRecord, error) {
	var record RefreshTokenRecord
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		FROM auth_refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&record.ID, &record.UserID, &record.TokenHash, &record.ExpiresAt, &revokedAt, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshTokenRecord{}, err
		}
		return RefreshTokenRecord{}, fmt.Errorf("query refresh token: %w", err)
	}
	if revokedAt.Valid {
		value := revokedAt.Time.UTC()
		record.RevokedAt = &value
	}

	return record, nil
}

func (r *Repository) ConsumeRefreshToken(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume refresh token rows affected: %w", err)
	}

	return affected == 1, nil
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE token_hash = $1
	`, tokenHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

func (r *Repository) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE user_id = $1
	`, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh tokens for user: %w", err)
	}

	return nil
}

func (r *Repository) CreateAuthorizationCode(ctx context.Context, record AuthorizationCodeRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate authorization code id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO auth_authorization_codes (id, user_id, code_hash, code_challenge, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), record.UserID, record.CodeHash, record.CodeChallenge, record.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert authorization code: %w", err)
	}

	return nil
}

func (r *Repository) GetAuthorizationCode(ctx context.Context, codeHash string) (AuthorizationCodeRecord, error) {
	var record AuthorizationCodeRecord
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, code_hash, code_challenge, used_at, expires_at, created_at
		FROM auth_authorization_codes
		WHERE code_hash = $1
	`, codeHash).Scan(&record.ID, &record.UserID, &record.CodeHash, &record.CodeChallenge, &usedAt, &record.ExpiresAt, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthorizationCodeRecord{}, err
		}
		return AuthorizationCodeRecord{}, fmt.Errorf("query authorization code: %w", err)
	}
	if usedAt.Valid {
		value := usedAt.Time.UTC()
		record.UsedAt = &value
	}

	return record, nil
}

func (r *Repository) ConsumeAuthorizationCode(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_authorization_codes
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("consume authorization code: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume authorization code rows affected: %w", err)
	}

	return affected == 1, nil
}

// CleanupResult reports what an offline purge removed.
type CleanupResult struct {
	DeletedRefreshTokens      int64 `json:"deleted_refresh_tokens"`
	DeletedAuthorizationCodes int64 `json:"deleted_authorization_codes"`
}

// CleanupStaleAuthData batch-deletes refresh tokens that are expired or
// long-revoked and authorization codes past their retention window. The
// online path never deletes rows; this is the offline counterpart.
func (r *Repository) CleanupStaleAuthData(ctx context.Context, refreshRetention, codeRetention time.Duration, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if refreshRetention <= 0 {
		refreshRetention = 14 * 24 * time.Hour
	}
	if codeRetention <= 0 {
		codeRetention = 24 * time.Hour
	}

	refreshCutoff := time.Now().UTC().Add(-refreshRetention)
	codeCutoff := time.Now().UTC().Add(-codeRetention)

	deletedTokens, err := r.deleteStaleRefreshTokens(ctx, refreshCutoff, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	deletedCodes, err := r.deleteStaleAuthorizationCodes(ctx, codeCutoff, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	return CleanupResult{
		DeletedRefreshTokens:      deletedTokens,
		DeletedAuthorizationCodes: deletedCodes,
	}, nil
}

func (r *Repository) deleteStaleRefreshTokens(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM auth_refresh_tokens
			WHERE expires_at < NOW() OR (revoked_at IS NOT NULL AND revoked_at < $1)
			ORDER BY created_at ASC
			LIMIT $2
		)
		DELETE FROM auth_refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale refresh tokens rows affected: %w", err)
	}

	return affected, nil
}

func (r *Repository) deleteStaleAuthorizationCodes(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM auth_authorization_codes
			WHERE expires_at < $1
			ORDER BY created_at ASC
			LIMIT $2
		)
		DELETE FROM auth_authorization_codes t
		USING stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale authorization codes: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale authorization codes rows affected: %w", err)
	}

	return affected, nil
}
