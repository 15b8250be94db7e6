package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/aussiebroadwan/passport/internal/identity"
	identityhttp "github.com/aussiebroadwan/passport/internal/identity/http"
	"github.com/aussiebroadwan/passport/internal/identity/identitytest"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func seed() identity.Seed {
	return identity.Seed{
		Users: []identity.SeedUser{identitytest.User("ada@example.com", map[string]any{"name": "Ada"})},
		Applications: []identity.SeedApp{{
			ClientID:       "app_shop",
			Name:           "Shop",
			Scopes:         []string{"profile"},
			RequiredFields: []string{"name"},
			RedirectURIs:   []string{"https://shop.example.com/callback"},
		}},
	}
}

func do(t *testing.T, method, url string, body any, bearer string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func signIn(t *testing.T, base string) (string, string) {
	t.Helper()
	resp, body := do(t, http.MethodPost, base+"/v1/auth/sign_ins", map[string]string{"email": "ada@example.com"}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sid := body["sid"].(string)

	resp, body = do(t, http.MethodPost, base+"/v1/auth/sign_ins/password",
		map[string]string{"sid": sid, "password": identitytest.Password}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	return sid, body["jwt"].(string)
}

func TestErrorEnvelope(t *testing.T) {
	t.Parallel()
	env := identitytest.Start(t, seed(), nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown account", http.MethodPost, "/v1/auth/sign_ins", map[string]string{"email": "x@example.com"}, http.StatusNotFound, "account_not_found"},
		{"invalid email", http.MethodPost, "/v1/auth/sign_ins", map[string]string{"email": "nope"}, http.StatusBadRequest, "invalid_request"},
		{"unknown field", http.MethodPost, "/v1/auth/sign_ins", map[string]string{"email": "ada@example.com", "x": "y"}, http.StatusBadRequest, "invalid_request"},
		{"unknown sign-in", http.MethodPost, "/v1/auth/sign_ins/password", map[string]string{"sid": "sin_x", "password": "p"}, http.StatusNotFound, "sign_in_not_found"},
		{"refresh", http.MethodPost, "/v1/auth/tokens/refresh", map[string]string{"sid": "sin_x", "refresh_token": "rt"}, http.StatusUnauthorized, "invalid_refresh_token"},
		{"missing sid", http.MethodPatch, "/v1/auth/sign_ins/missing_fields", map[string]string{"name": "Ada"}, http.StatusBadRequest, "invalid_request"},
		{"no bearer", http.MethodGet, "/v1/oauth/consent?client_id=app_shop", nil, http.StatusUnauthorized, "not_authenticated"},
		{"bad one-time token", http.MethodGet, "/one_time_login?token=nope", nil, http.StatusBadRequest, "invalid_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, body := do(t, tt.method, env.URL()+tt.path, tt.body, "")
			require.Equal(t, tt.status, resp.StatusCode)
			require.Equal(t, tt.code, body["error"])
		})
	}
}

func TestMagicCodeCooldownPayload(t *testing.T) {
	t.Parallel()
	env := identitytest.Start(t, seed(), nil)

	_, body := do(t, http.MethodPost, env.URL()+"/v1/auth/sign_ins", map[string]string{"email": "ada@example.com"}, "")
	sid := body["sid"].(string)

	resp, body := do(t, http.MethodPost, env.URL()+"/v1/auth/sign_ins/magic_code/send", map[string]string{"sid": sid}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 30, body["enable_resend_after"])

	resp, body = do(t, http.MethodPost, env.URL()+"/v1/auth/sign_ins/magic_code/send", map[string]string{"sid": sid}, "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "magic_code_recently_created", body["error"])
	require.Contains(t, body, "enable_resend_after")

	resp, _ = do(t, http.MethodGet, env.URL()+"/dev/outbox?email=ada@example.com", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConnectFlow(t *testing.T) {
	t.Parallel()
	env := identitytest.Start(t, seed(), nil)
	_, jwt := signIn(t, env.URL())

	req := map[string]any{"client_id": "app_shop"}
	resp, body := do(t, http.MethodPost, env.URL()+"/v1/oauth/connect", req, jwt)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "consent", body["kind"])
	require.Equal(t, "consent_not_granted", body["error"])
	require.Equal(t, "Shop", body["application"].(map[string]any)["name"])

	resp, body = do(t, http.MethodPost, env.URL()+"/v1/oauth/connect", map[string]any{"client_id": "app_nope"}, jwt)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "error", body["kind"])
	require.Equal(t, "application_not_found", body["error"])

	resp, body = do(t, http.MethodPost, env.URL()+"/v1/oauth/consent", req, jwt)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["token"])

	resp, body = do(t, http.MethodPost, env.URL()+"/v1/oauth/connect", req, jwt)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "token", body["kind"])
	token := body["token"].(string)

	resp, _ = do(t, http.MethodGet, env.URL()+"/one_time_login?token="+url.QueryEscape(token), nil, "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/callback", loc.Path)
	require.NotEmpty(t, loc.Query().Get("sid"))
	require.NotEmpty(t, loc.Query().Get("refresh_token"))
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	svc := identity.NewService(identity.Options{}, identitytest.NewSigner(t), nil, slogx.Discard())
	limits := identitytest.Unlimited()
	limits.Credential = httpx.RateLimit{Requests: 1, Window: time.Hour, Burst: 1}
	srv := httptest.NewServer(identityhttp.NewRouter(svc, nil, limits, "test", slogx.Discard()))
	t.Cleanup(srv.Close)

	body := map[string]string{"sid": "sin_x", "password": "p"}
	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/auth/sign_ins/password", body, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, payload := do(t, http.MethodPost, srv.URL+"/v1/auth/sign_ins/password", body, "")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "rate_limit_exceeded", payload["error"])
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = do(t, http.MethodGet, srv.URL+"/dev/outbox?email=a@example.com", nil, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSystemEndpoints(t *testing.T) {
	t.Parallel()
	env := identitytest.Start(t, seed(), nil)

	resp, body := do(t, http.MethodGet, env.URL()+"/livez", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
	require.NotEmpty(t, resp.Header.Get(slogx.RequestIDHeader))

	resp, body = do(t, http.MethodGet, env.URL()+"/v1/config", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "captcha")
}
