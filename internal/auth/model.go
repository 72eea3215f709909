package auth

import (
	"errors"
	"time"
)

type Provider string

const (
	ProviderLocal Provider = "LOCAL"
	ProviderNaver Provider = "NAVER"
)

type User struct {
	ID       string   `json:"id"`
	Email    *string  `json:"email"`
	Name     string   `json:"name"`
	Provider Provider `json:"provider"`

	// local accounts only
	PasswordHash *string `json:"-"`

	// Naver accounts only; tokens are stored encrypted
	NaverID           *string `json:"-"`
	NaverAccessToken  *string `json:"-"`
	NaverRefreshToken *string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AuthResponse struct {
	Tokens
	User User `json:"user"`
}

// RefreshTokenRecord is one link of a session chain. Only the SHA-256 hash
// of the opaque token is stored. Rotation revokes the presented record and
// inserts a new one; records are never deleted by the online path.
type RefreshTokenRecord struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// AuthorizationCodeRecord is a single-use PKCE code minted after a completed
// Naver authentication, bound to the client's code challenge.
type AuthorizationCodeRecord struct {
	ID            string
	UserID        string
	CodeHash      string
	CodeChallenge string
	UsedAt        *time.Time
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")

	ErrInvalidAccessToken = errors.New("invalid or expired access token")

	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenRevoked = errors.New("refresh token has been revoked")
	ErrRefreshTokenExpired = errors.New("refresh token has expired")

	ErrInvalidAuthorizationCode = errors.New("invalid authorization code")
	ErrInvalidVerifier          = errors.New("invalid verifier")
	ErrInvalidState             = errors.New("invalid state parameter")

	// ErrProvider is the opaque failure surfaced when the Naver round trip
	// breaks; the underlying cause stays in server logs.
	ErrProvider = errors.New("provider authentication failed")
)
