package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service        *Service
	appCallbackURL string
}

// NewHandler wires the auth HTTP boundary. appCallbackURL is the deep link
// used when the authorize request does not name one.
func NewHandler(service *Service, appCallbackURL string) *Handler {
	return &Handler{service: service, appCallbackURL: appCallbackURL}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type exchangeRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"codeVerifier"`
}

type providerCodeRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	body.Name = strings.TrimSpace(body.Name)
	if !emailRegex.MatchString(body.Email) {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if len(body.Password) < 8 || len(body.Password) > 200 {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}
	if body.Name == "" || len(body.Name) > 100 {
		writeError(w, http.StatusBadRequest, "name format is invalid")
		return
	}

	response, err := h.service.Register(r.Context(), body.Email, body.Password, body.Name)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, response)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	response, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRefreshToken):
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
		case errors.Is(err, ErrRefreshTokenRevoked):
			writeError(w, http.StatusUnauthorized, "refresh token has been revoked")
		case errors.Is(err, ErrRefreshTokenExpired):
			writeError(w, http.StatusUnauthorized, "refresh token has expired")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to refresh token")
		}
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.Logout(r.Context(), body.RefreshToken); err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			writeError(w, http.StatusBadRequest, "invalid refresh token")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll revokes every refresh token of the authenticated caller.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	if err := h.service.LogoutAll(r.Context(), userID); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Authorize begins a PKCE login: it redirects to the Naver authorize URL
// with the client's code challenge riding in the state parameter.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	challenge := strings.TrimSpace(r.URL.Query().Get("code_challenge"))
	appCallback := strings.TrimSpace(r.URL.Query().Get("redirect_uri"))
	if appCallback == "" {
		appCallback = h.appCallbackURL
	}

	target, err := h.service.AuthorizeURL(challenge, appCallback)
	if err != nil {
		if errors.Is(err, ErrInvalidVerifier) {
			writeError(w, http.StatusBadRequest, "code_challenge is invalid")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to begin authorization")
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// Callback receives the provider redirect, completes the exchange and sends
// the client back to its deep link with a single-use authorization code.
// Provider-reported errors are passed through to the app callback.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")

	if providerErr := query.Get("error"); providerErr != "" {
		target := h.appCallbackURL
		if _, _, appCallback, err := parseState(state); err == nil {
			target = appCallback
		}
		redirectWithParams(w, r, target, url.Values{
			"error":             {providerErr},
			"error_description": {query.Get("error_description")},
		})
		return
	}

	result, err := h.service.CompleteCallback(r.Context(), code, state)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidState):
			writeError(w, http.StatusBadRequest, "state parameter is invalid")
		case errors.Is(err, ErrProvider):
			writeError(w, http.StatusUnauthorized, "provider authentication failed")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to complete authorization")
		}
		return
	}

	redirectWithParams(w, r, result.AppCallbackURL, url.Values{
		"code":  {result.Code},
		"state": {result.Nonce},
	})
}

// Exchange redeems an authorization code plus PKCE verifier for tokens.
func (h *Handler) Exchange(w http.ResponseWriter, r *http.Request) {
	var body exchangeRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	response, err := h.service.Exchange(r.Context(), body.Code, body.CodeVerifier)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAuthorizationCode):
			writeError(w, http.StatusUnauthorized, "invalid authorization code")
		case errors.Is(err, ErrInvalidVerifier):
			writeError(w, http.StatusUnauthorized, "invalid verifier")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to exchange code")
		}
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// ProviderToken signs in with a Naver-issued authorization code forwarded
// directly by the client (the non-PKCE bridging path).
func (h *Handler) ProviderToken(w http.ResponseWriter, r *http.Request) {
	var body providerCodeRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	response, err := h.service.LoginWithProviderCode(r.Context(), body.Code, body.State)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidState):
			writeError(w, http.StatusBadRequest, "code and state are required")
		case errors.Is(err, ErrProvider):
			writeError(w, http.StatusUnauthorized, "provider authentication failed")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to login with provider code")
		}
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func redirectWithParams(w http.ResponseWriter, r *http.Request, target string, params url.Values) {
	parsed, err := url.Parse(target)
	if err != nil {
		writeError(w, http.StatusBadRequest, "callback url is invalid")
		return
	}

	query := parsed.Query()
	for key, values := range params {
		for _, value := range values {
			if value != "" {
				query.Set(key, value)
			}
		}
	}
	parsed.RawQuery = query.Encode()

	http.Redirect(w, r, parsed.String(), http.StatusFound)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
