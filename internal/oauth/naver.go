// Package oauth bridges to the external identity provider. The Provider
// interface is the whole surface the auth core sees, so additional
// providers can be added without touching the rotation/PKCE core.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Token carries the provider-issued tokens from a code exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Profile is the provider's view of the authenticated user.
type Profile struct {
	ID    string
	Name  string
	Email string
}

// Provider is the adapter the auth core talks to. Both calls are blocking
// network round trips with no retries: ExchangeCode consumes a single-use
// provider code and must never be retried blindly.
type Provider interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code, state string) (Token, error)
	FetchProfile(ctx context.Context, accessToken string) (Profile, error)
}

const (
	naverAuthURL    = "https://nid.naver.com/oauth2.0/authorize"
	naverTokenURL   = "https://nid.naver.com/oauth2.0/token"
	naverProfileURL = "https://openapi.naver.com/v1/nid/me"
)

// Naver implements Provider against the Naver OAuth 2.0 endpoints.
type Naver struct {
	config     *oauth2.Config
	profileURL string
	client     *http.Client
}

type Option func(*Naver)

// WithEndpoints overrides the provider endpoints, for tests.
func WithEndpoints(authURL, tokenURL, profileURL string) Option {
	return func(n *Naver) {
		n.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
		n.profileURL = profileURL
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(n *Naver) {
		n.client = client
	}
}

func NewNaver(clientID, clientSecret, callbackURL string, opts ...Option) *Naver {
	n := &Naver{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  naverAuthURL,
				TokenURL: naverTokenURL,
			},
		},
		profileURL: naverProfileURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

func (n *Naver) AuthCodeURL(state string) string {
	return n.config.AuthCodeURL(state)
}

// ExchangeCode swaps an authorization code for provider tokens. Naver
// expects the anti-forgery state alongside the code.
func (n *Naver) ExchangeCode(ctx context.Context, code, state string) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, n.client)

	tok, err := n.config.Exchange(ctx, code, oauth2.SetAuthURLParam("state", state))
	if err != nil {
		return Token{}, fmt.Errorf("naver token exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("naver token exchange: empty access token")
	}

	return Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}, nil
}

type naverProfileResponse struct {
	ResultCode string `json:"resultcode"`
	Message    string `json:"message"`
	Response   struct {
		ID       string `json:"id"`
		Nickname string `json:"nickname"`
		Name     string `json:"name"`
		Email    string `json:"email"`
	} `json:"response"`
}

// FetchProfile resolves the provider identity behind an access token.
func (n *Naver) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.profileURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build naver profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("naver profile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Profile{}, fmt.Errorf("naver profile request: status %d: %s", resp.StatusCode, body)
	}

	var parsed naverProfileResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Profile{}, fmt.Errorf("decode naver profile: %w", err)
	}
	if parsed.ResultCode != "00" {
		return Profile{}, fmt.Errorf("naver profile error: %s %s", parsed.ResultCode, parsed.Message)
	}
	if parsed.Response.ID == "" {
		return Profile{}, fmt.Errorf("naver profile error: missing id")
	}

	name := parsed.Response.Nickname
	if name == "" {
		name = parsed.Response.Name
	}
	if name == "" {
		name = "Unknown"
	}

	return Profile{
		ID:    parsed.Response.ID,
		Name:  name,
		Email: parsed.Response.Email,
	}, nil
}
