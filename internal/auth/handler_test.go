package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contract-secretary/internal/auth"
	"contract-secretary/internal/crypto"
)

func newTestRouter(t *testing.T, bridge *fakeBridge) (*http.ServeMux, *auth.Service) {
	t.Helper()

	cipher, err := crypto.New(strings.Repeat("11", 32), "", zap.NewNop())
	require.NoError(t, err)

	issuer := auth.NewTokenIssuer(testSecret, 15*time.Minute)
	service := auth.NewService(newMemoryStore(), cipher, issuer, bridge, 30*24*time.Hour, zap.NewNop())
	handler := auth.NewHandler(service, "contractsecretary://auth/callback")

	authed := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(issuer, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", handler.Register)
	mux.HandleFunc("POST /auth/login", handler.Login)
	mux.HandleFunc("POST /auth/refresh", handler.Refresh)
	mux.HandleFunc("POST /auth/logout", handler.Logout)
	mux.Handle("POST /auth/logout-all", authed(handler.LogoutAll))
	mux.HandleFunc("GET /auth/naver/authorize", handler.Authorize)
	mux.HandleFunc("GET /auth/naver/callback", handler.Callback)
	mux.HandleFunc("POST /auth/naver/exchange", handler.Exchange)
	mux.HandleFunc("POST /auth/naver/token", handler.ProviderToken)
	mux.Handle("GET /users/me", authed(handler.Me))

	return mux, service
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	return decoded
}

func TestSignupEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t, &fakeBridge{})

	resp := doJSON(t, mux, http.MethodPost, "/auth/signup",
		`{"email":"a@x.com","password":"Passw0rd1","name":"A"}`, nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	body := decodeBody(t, resp)
	require.NotEmpty(t, body["access_token"])
	require.NotEmpty(t, body["refresh_token"])
	require.Equal(t, "Bearer", body["token_type"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "a@x.com", user["email"])
	require.NotContains(t, user, "password_hash")
	require.NotContains(t, user, "naver_access_token")

	resp = doJSON(t, mux, http.MethodPost, "/auth/signup",
		`{"email":"a@x.com","password":"Other-Pass1","name":"B"}`, nil)
	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestSignupValidation(t *testing.T) {
	mux, _ := newTestRouter(t, &fakeBridge{})

	cases := []struct {
		name string
		body string
	}{
		{"bad email", `{"email":"not-an-email","password":"Passw0rd1","name":"A"}`},
		{"short password", `{"email":"a@x.com","password":"short","name":"A"}`},
		{"empty name", `{"email":"a@x.com","password":"Passw0rd1","name":" "}`},
		{"unknown field", `{"email":"a@x.com","password":"Passw0rd1","name":"A","admin":true}`},
		{"not json", `hello`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, mux, http.MethodPost, "/auth/signup", tc.body, nil)
			require.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestLoginEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t, &fakeBridge{})

	resp := doJSON(t, mux, http.MethodPost, "/auth/signup",
		`{"email":"a@x.com","password":"Passw0rd1","name":"A"}`, nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"email":"a@x.com","password":"Passw0rd1"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"email":"a@x.com","password":"wrong-password"}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Equal(t, "invalid credentials", decodeBody(t, resp)["error"])
}

func TestRefreshEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t, &fakeBridge{})

	resp := doJSON(t, mux, http.MethodPost, "/auth/signup",
		`{"email":"a@x.com","password":"Passw0rd1","name":"A"}`, nil)
	require.Equal(t, http.StatusCreated, resp.Code)
	refresh1, _ := decodeBody(t, resp)["refresh_token"].(string)
	require.NotEmpty(t, refresh1)

	resp = doJSON(t, mux, http.MethodPost, "/auth/refresh",
		`{"refreshToken":"`+refresh1+`"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	refresh2, _ := decodeBody(t, resp)["refresh_token"].(string)
	require.NotEmpty(t, refresh2)
	require.NotEqual(t, refresh1, refresh2)

	resp = doJSON(t, mux, http.MethodPost, "/auth/refresh",
		`{"refreshToken":"`+refresh1+`"}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Equal(t, "refresh token has been revoked", decodeBody(t, resp)["error"])

	resp = doJSON(t, mux, http.MethodPost, "/auth/refresh",
		`{"refreshToken":"`+refresh2+`"}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doJSON(t, mux, http.MethodPost, "/auth/refresh",
		`{"refreshToken":"no-such-token"}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Equal(t, "invalid refresh token", decodeBody(t, resp)["error"])
}

func TestLogoutEndpoints(t *testing.T) {
	mux, _ := newTestRouter(t, &fakeBridge{})

	resp := doJSON(t, mux, http.MethodPost, "/auth/signup",
		`{"email":"a@x.com","password":"Passw0rd1","name":"A"}`, nil)
	require.Equal(t, http.StatusCreated, resp.Code)
	body := decodeBody(t, resp)
	refresh, _ := body["refresh_token"].(string)
	access, _ := body["access_token"].(string)

	resp = doJSON(t, mux, http.MethodPost, "/auth/logout",
		`{"refreshToken":"`+refresh+`"}`, nil)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = doJSON(t, mux, http.MethodPost, "/auth/logout", `{"refreshToken":""}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doJSON(t, mux, http.MethodPost, "/auth/logout-all", `{}`,
		map[string]string{"Authorization": "Bearer " + access})
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = doJSON(t, mux, http.MethodPost, "/auth/logout-all", `{}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestMeEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t, &fakeBridge{})

	resp := doJSON(t, mux, http.MethodPost, "/auth/signup",
		`{"email":"a@x.com","password":"Passw0rd1","name":"A"}`, nil)
	require.Equal(t, http.StatusCreated, resp.Code)
	access, _ := decodeBody(t, resp)["access_token"].(string)

	resp = doJSON(t, mux, http.MethodGet, "/users/me", "",
		map[string]string{"Authorization": "Bearer " + access})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "a@x.com", decodeBody(t, resp)["email"])

	resp = doJSON(t, mux, http.MethodGet, "/users/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doJSON(t, mux, http.MethodGet, "/users/me", "",
		map[string]string{"Authorization": "Bearer not-a-token"})
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthorizeEndpoint(t *testing.T) {
	bridge := naverBridge()
	mux, _ := newTestRouter(t, bridge)

	challenge := auth.ComputeChallenge(strings.Repeat("v", 43))
	resp := doJSON(t, mux, http.MethodGet,
		"/auth/naver/authorize?code_challenge="+challenge, "", nil)
	require.Equal(t, http.StatusFound, resp.Code)

	location := resp.Header().Get("Location")
	require.Contains(t, location, "https://provider.example/authorize?state=")
	require.Contains(t, bridge.state(), challenge)
	require.Contains(t, bridge.state(), "|")

	resp = doJSON(t, mux, http.MethodGet,
		"/auth/naver/authorize?code_challenge=short", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCallbackEndpoint(t *testing.T) {
	bridge := naverBridge()
	mux, _ := newTestRouter(t, bridge)

	challenge := auth.ComputeChallenge(strings.Repeat("v", 43))
	resp := doJSON(t, mux, http.MethodGet,
		"/auth/naver/authorize?code_challenge="+challenge, "", nil)
	require.Equal(t, http.StatusFound, resp.Code)
	state := bridge.state()

	resp = doJSON(t, mux, http.MethodGet,
		"/auth/naver/callback?code=provider-code&state="+url.QueryEscape(state), "", nil)
	require.Equal(t, http.StatusFound, resp.Code)

	redirect, err := url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "contractsecretary", redirect.Scheme)
	require.NotEmpty(t, redirect.Query().Get("code"))
	require.Equal(t, strings.Split(state, "|")[0], redirect.Query().Get("state"))
}

func TestCallbackEndpointProviderError(t *testing.T) {
	mux, _ := newTestRouter(t, naverBridge())

	resp := doJSON(t, mux, http.MethodGet,
		"/auth/naver/callback?error=access_denied&error_description=user+cancelled", "", nil)
	require.Equal(t, http.StatusFound, resp.Code)

	redirect, err := url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "contractsecretary", redirect.Scheme)
	require.Equal(t, "access_denied", redirect.Query().Get("error"))
	require.Equal(t, "user cancelled", redirect.Query().Get("error_description"))
}

func TestCallbackEndpointBadState(t *testing.T) {
	mux, _ := newTestRouter(t, naverBridge())

	resp := doJSON(t, mux, http.MethodGet,
		"/auth/naver/callback?code=provider-code&state=garbage", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestExchangeEndpoint(t *testing.T) {
	bridge := naverBridge()
	mux, service := newTestRouter(t, bridge)

	verifier := strings.Repeat("v", 43)
	result := completeProviderLogin(t, service, bridge, verifier)

	resp := doJSON(t, mux, http.MethodPost, "/auth/naver/exchange",
		`{"code":"`+result.Code+`","codeVerifier":"`+verifier+`"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotEmpty(t, decodeBody(t, resp)["access_token"])

	resp = doJSON(t, mux, http.MethodPost, "/auth/naver/exchange",
		`{"code":"`+result.Code+`","codeVerifier":"`+verifier+`"}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Equal(t, "invalid authorization code", decodeBody(t, resp)["error"])
}

func TestProviderTokenEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t, naverBridge())

	resp := doJSON(t, mux, http.MethodPost, "/auth/naver/token",
		`{"code":"provider-code","state":"some-state"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	require.NotEmpty(t, body["access_token"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "NAVER", user["provider"])

	resp = doJSON(t, mux, http.MethodPost, "/auth/naver/token",
		`{"code":"","state":""}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
