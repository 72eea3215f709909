package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access-token payload. Validity is signature + expiry only;
// no storage lookup happens on verification.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Provider  string `json:"provider"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies short-lived HS256 bearer tokens. It is
// stateless and safe for concurrent use.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs an access token for user and returns it with its lifetime in
// seconds.
func (i *TokenIssuer) Issue(user User) (string, int64, error) {
	now := time.Now().UTC()

	var email string
	if user.Email != nil {
		email = *user.Email
	}

	claims := Claims{
		Email:     email,
		Provider:  string(user.Provider),
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", 0, fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, int64(i.ttl.Seconds()), nil
}

// Verify checks signature and expiry and returns the claims.
func (i *TokenIssuer) Verify(tokenStr string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidAccessToken
	}
	if claims.TokenType != "access" {
		return Claims{}, ErrInvalidAccessToken
	}

	return claims, nil
}
