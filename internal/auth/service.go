package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"contract-secretary/internal/crypto"
	"contract-secretary/internal/oauth"
)

const (
	defaultRefreshTTL = 30 * 24 * time.Hour
	codeTTL           = 5 * time.Minute

	// 32 random bytes: 256 bits for refresh tokens and authorization codes.
	opaqueTokenBytes = 32
)

type Service struct {
	store      Store
	cipher     *crypto.Cipher
	issuer     *TokenIssuer
	bridge     oauth.Provider
	refreshTTL time.Duration
	logger     *zap.Logger
}

func NewService(store Store, cipher *crypto.Cipher, issuer *TokenIssuer, bridge oauth.Provider, refreshTTL time.Duration, logger *zap.Logger) *Service {
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &Service{
		store:      store,
		cipher:     cipher,
		issuer:     issuer,
		bridge:     bridge,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// Register creates a local account and signs it in.
func (s *Service) Register(ctx context.Context, email, password, name string) (AuthResponse, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	passwordHash := string(hash)
	user, err := s.store.CreateUser(ctx, User{
		Email:        &email,
		Name:         name,
		Provider:     ProviderLocal,
		PasswordHash: &passwordHash,
	})
	if err != nil {
		return AuthResponse{}, err
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{Tokens: tokens, User: user}, nil
}

// Login authenticates a local account.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return AuthResponse{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthResponse{}, ErrInvalidCredentials
		}
		return AuthResponse{}, err
	}
	if user.PasswordHash == nil {
		return AuthResponse{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return AuthResponse{}, ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{Tokens: tokens, User: user}, nil
}

// Refresh rotates a refresh token: the presented record is revoked and a
// fresh pair is issued. Presenting an already-revoked token is treated as a
// theft signal and revokes every refresh token the owner holds.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Tokens{}, ErrInvalidRefreshToken
	}

	record, err := s.store.GetRefreshToken(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tokens{}, ErrInvalidRefreshToken
		}
		return Tokens{}, err
	}

	if record.RevokedAt != nil {
		return Tokens{}, s.escalateRefreshReuse(ctx, record.UserID)
	}
	if time.Now().UTC().After(record.ExpiresAt.UTC()) {
		return Tokens{}, ErrRefreshTokenExpired
	}

	won, err := s.store.ConsumeRefreshToken(ctx, record.ID)
	if err != nil {
		return Tokens{}, err
	}
	if !won {
		// a concurrent rotation beat us to the same record
		return Tokens{}, s.escalateRefreshReuse(ctx, record.UserID)
	}

	user, err := s.store.GetUserByID(ctx, record.UserID)
	if err != nil {
		return Tokens{}, fmt.Errorf("load user for rotation: %w", err)
	}

	return s.issueTokens(ctx, user)
}

func (s *Service) escalateRefreshReuse(ctx context.Context, userID string) error {
	s.logger.Warn("refresh token reuse detected, revoking session family", zap.String("user_id", userID))
	if err := s.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return err
	}
	return ErrRefreshTokenRevoked
}

// Logout revokes a single refresh token. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return ErrInvalidRefreshToken
	}
	return s.store.RevokeRefreshToken(ctx, hashToken(refreshToken))
}

// LogoutAll revokes every refresh token the user holds.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.store.RevokeAllRefreshTokens(ctx, userID)
}

// CurrentUser resolves a user id (from a verified access token) to the
// stored profile.
func (s *Service) CurrentUser(ctx context.Context, userID string) (User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// NaverTokens returns the decrypted provider tokens for a Naver account,
// for calls against Naver APIs on the user's behalf. Rows still sealed under
// the previous key are upgraded to the active key on the way out, so a key
// rotation converges without a bulk migration.
func (s *Service) NaverTokens(ctx context.Context, userID string) (accessToken, refreshToken string, err error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if user.NaverAccessToken == nil || user.NaverRefreshToken == nil {
		return "", "", sql.ErrNoRows
	}

	access := s.cipher.Decrypt(*user.NaverAccessToken)
	refresh := s.cipher.Decrypt(*user.NaverRefreshToken)

	if s.cipher.NeedsReEncryption(*user.NaverAccessToken) || s.cipher.NeedsReEncryption(*user.NaverRefreshToken) {
		if err := s.reEncryptNaverTokens(ctx, user.ID, access, refresh); err != nil {
			s.logger.Warn("provider token re-encryption failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return access, refresh, nil
}

func (s *Service) reEncryptNaverTokens(ctx context.Context, userID, access, refresh string) error {
	encryptedAccess, err := s.cipher.Encrypt(access)
	if err != nil {
		return err
	}
	encryptedRefresh, err := s.cipher.Encrypt(refresh)
	if err != nil {
		return err
	}
	_, err = s.store.UpdateNaverUser(ctx, userID, encryptedAccess, encryptedRefresh, nil, "")
	return err
}

// AuthorizeURL builds the Naver authorization redirect for a PKCE login.
// The challenge and the app callback ride inside the anti-forgery state,
// which the provider echoes back unmodified; no server-side session exists.
func (s *Service) AuthorizeURL(codeChallenge, appCallbackURL string) (string, error) {
	if !ValidChallenge(codeChallenge) {
		return "", ErrInvalidVerifier
	}

	nonce, err := randomToken(16)
	if err != nil {
		return "", fmt.Errorf("generate state nonce: %w", err)
	}

	return s.bridge.AuthCodeURL(encodeState(nonce, codeChallenge, appCallbackURL)), nil
}

// CallbackResult is what the provider callback hands back to the client via
// redirect: a single-use authorization code plus the original state nonce.
type CallbackResult struct {
	AppCallbackURL string
	Code           string
	Nonce          string
}

// CompleteCallback finishes the provider round trip: it exchanges the
// provider code, fetches the profile, upserts the local user and mints a
// challenge-bound single-use authorization code.
func (s *Service) CompleteCallback(ctx context.Context, providerCode, state string) (CallbackResult, error) {
	nonce, challenge, appCallback, err := parseState(state)
	if err != nil {
		return CallbackResult{}, err
	}

	user, err := s.authenticateWithProvider(ctx, providerCode, state)
	if err != nil {
		return CallbackResult{}, err
	}

	code, err := randomToken(opaqueTokenBytes)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("generate authorization code: %w", err)
	}

	err = s.store.CreateAuthorizationCode(ctx, AuthorizationCodeRecord{
		UserID:        user.ID,
		CodeHash:      hashToken(code),
		CodeChallenge: challenge,
		ExpiresAt:     time.Now().UTC().Add(codeTTL),
	})
	if err != nil {
		return CallbackResult{}, err
	}

	return CallbackResult{AppCallbackURL: appCallback, Code: code, Nonce: nonce}, nil
}

// Exchange redeems an authorization code with its PKCE verifier for a token
// pair. A code can be redeemed exactly once; a replay, even with the right
// verifier, revokes the owner's whole session family.
func (s *Service) Exchange(ctx context.Context, code, verifier string) (AuthResponse, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return AuthResponse{}, ErrInvalidAuthorizationCode
	}
	if !ValidVerifier(verifier) {
		return AuthResponse{}, ErrInvalidVerifier
	}

	record, err := s.store.GetAuthorizationCode(ctx, hashToken(code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthResponse{}, ErrInvalidAuthorizationCode
		}
		return AuthResponse{}, err
	}

	if record.UsedAt != nil {
		return AuthResponse{}, s.escalateCodeReuse(ctx, record.UserID)
	}
	if time.Now().UTC().After(record.ExpiresAt.UTC()) {
		return AuthResponse{}, ErrInvalidAuthorizationCode
	}

	if !VerifierMatches(verifier, record.CodeChallenge) {
		return AuthResponse{}, ErrInvalidVerifier
	}

	won, err := s.store.ConsumeAuthorizationCode(ctx, record.ID)
	if err != nil {
		return AuthResponse{}, err
	}
	if !won {
		return AuthResponse{}, s.escalateCodeReuse(ctx, record.UserID)
	}

	user, err := s.store.GetUserByID(ctx, record.UserID)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("load user for exchange: %w", err)
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{Tokens: tokens, User: user}, nil
}

func (s *Service) escalateCodeReuse(ctx context.Context, userID string) error {
	s.logger.Warn("authorization code replay detected, revoking session family", zap.String("user_id", userID))
	if err := s.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return err
	}
	return ErrInvalidAuthorizationCode
}

// LoginWithProviderCode signs in with a provider code the client obtained
// directly from Naver, forwarding the original anti-forgery state. No PKCE
// pair is involved on this path.
func (s *Service) LoginWithProviderCode(ctx context.Context, code, state string) (AuthResponse, error) {
	code = strings.TrimSpace(code)
	state = strings.TrimSpace(state)
	if code == "" || state == "" {
		return AuthResponse{}, ErrInvalidState
	}

	user, err := s.authenticateWithProvider(ctx, code, state)
	if err != nil {
		return AuthResponse{}, err
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{Tokens: tokens, User: user}, nil
}

// authenticateWithProvider runs the server-to-server exchange and profile
// fetch, then upserts the local account. Provider failures are logged in
// detail and surfaced as the opaque ErrProvider.
func (s *Service) authenticateWithProvider(ctx context.Context, code, state string) (User, error) {
	token, err := s.bridge.ExchangeCode(ctx, code, state)
	if err != nil {
		s.logger.Error("provider token exchange failed", zap.Error(err))
		return User{}, ErrProvider
	}

	profile, err := s.bridge.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		s.logger.Error("provider profile fetch failed", zap.Error(err))
		return User{}, ErrProvider
	}

	return s.upsertNaverUser(ctx, token, profile)
}

func (s *Service) upsertNaverUser(ctx context.Context, token oauth.Token, profile oauth.Profile) (User, error) {
	encryptedAccess, err := s.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return User{}, fmt.Errorf("encrypt provider access token: %w", err)
	}
	encryptedRefresh, err := s.cipher.Encrypt(token.RefreshToken)
	if err != nil {
		return User{}, fmt.Errorf("encrypt provider refresh token: %w", err)
	}

	var email *string
	if profile.Email != "" {
		email = &profile.Email
	}

	existing, err := s.store.GetUserByNaverID(ctx, profile.ID)
	if err == nil {
		return s.store.UpdateNaverUser(ctx, existing.ID, encryptedAccess, encryptedRefresh, email, profile.Name)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, err
	}

	naverID := profile.ID
	return s.store.CreateUser(ctx, User{
		Email:             email,
		Name:              profile.Name,
		Provider:          ProviderNaver,
		NaverID:           &naverID,
		NaverAccessToken:  &encryptedAccess,
		NaverRefreshToken: &encryptedRefresh,
	})
}

func (s *Service) issueTokens(ctx context.Context, user User) (Tokens, error) {
	access, expiresIn, err := s.issuer.Issue(user)
	if err != nil {
		return Tokens{}, err
	}

	refreshToken, err := randomToken(opaqueTokenBytes)
	if err != nil {
		return Tokens{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.store.CreateRefreshToken(ctx, user.ID, hashToken(refreshToken), time.Now().UTC().Add(s.refreshTTL)); err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	}, nil
}

// state is {nonce}|{code_challenge}|{base64url(appCallbackURL)}; the
// provider echoes it back verbatim, which is what lets the callback run
// without session affinity.
func encodeState(nonce, challenge, appCallbackURL string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(appCallbackURL))
	return nonce + "|" + challenge + "|" + encoded
}

func parseState(state string) (nonce, challenge, appCallbackURL string, err error) {
	parts := strings.Split(state, "|")
	if len(parts) != 3 {
		return "", "", "", ErrInvalidState
	}

	nonce = parts[0]
	challenge = parts[1]
	if nonce == "" || !ValidChallenge(challenge) {
		return "", "", "", ErrInvalidState
	}

	decoded, decodeErr := base64.RawURLEncoding.DecodeString(parts[2])
	if decodeErr != nil || len(decoded) == 0 {
		return "", "", "", ErrInvalidState
	}

	return nonce, challenge, string(decoded), nil
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
