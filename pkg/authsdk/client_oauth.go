package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// CheckConsent returns the consent status of the current user for clientID.
func (c *SDKClient) CheckConsent(ctx context.Context, bearer, clientID string, scopes []string) (*ConsentStatus, error) {
	q := url.Values{"client_id": {clientID}}
	if len(scopes) > 0 {
		q.Set("scopes", strings.Join(scopes, " "))
	}

	var out ConsentStatus
	if err := c.call(ctx, http.MethodGet, "/v1/oauth/consent?"+q.Encode(), nil, bearer, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateConsent applies a partial profile update scoped to the fields an
// application requires.
func (c *SDKClient) UpdateConsent(ctx context.Context, bearer, clientID string, updates map[string]any) (*ConsentStatus, error) {
	body := map[string]any{"client_id": clientID, "user_updates": updates}

	var out ConsentStatus
	if err := c.call(ctx, http.MethodPatch, "/v1/oauth/consent", body, bearer, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GrantConsent records consent and returns a one-time login token.
func (c *SDKClient) GrantConsent(ctx context.Context, bearer string, req ConsentRequest) (*OneTimeTokenResponse, error) {
	var out OneTimeTokenResponse
	if err := c.call(ctx, http.MethodPost, "/v1/oauth/consent", req, bearer, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Connect is check-and-grant in one call. Responses carrying consent
// information are returned as a ConnectResult, not an error; plain failures
// (application_not_found, auth errors) come back as *APIError.
func (c *SDKClient) Connect(ctx context.Context, bearer string, req ConsentRequest) (*ConnectResult, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/oauth/connect", req, bearer, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var env connectEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 300 {
			return nil, parseErrorResponse(resp, body)
		}
		return nil, &SchemaError{Err: err}
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	switch env.Kind {
	case "token":
		if !ok || env.Token == "" {
			return nil, &SchemaError{Err: fmt.Errorf("token response without token")}
		}
		return &ConnectResult{Token: env.Token}, nil
	case "consent":
		return c.consentResult(env)
	case "error":
		return nil, parseErrorResponse(resp, body)
	}

	// Untagged response: try the richer consent shape first, then a plain error.
	if ok && env.Token != "" {
		return &ConnectResult{Token: env.Token}, nil
	}
	if env.Application != nil {
		return c.consentResult(env)
	}
	if !ok {
		return nil, parseErrorResponse(resp, body)
	}
	return nil, &SchemaError{Err: fmt.Errorf("unrecognised connect response")}
}

func (c *SDKClient) consentResult(env connectEnvelope) (*ConnectResult, error) {
	status := env.ConsentStatus
	if err := c.validate.Struct(&status); err != nil {
		return nil, &SchemaError{Err: err}
	}

	code := ErrorCode(env.Error)
	if code == "" {
		code = CodeConsentNotGranted
		if len(status.MissingFields) > 0 {
			code = CodeMissingRequiredFields
		}
	}
	return &ConnectResult{Consent: &status, Code: code}, nil
}

// OneTimeLoginURL builds the redirect that exchanges a one-time token for a
// session at the relying party.
func (c *SDKClient) OneTimeLoginURL(token, redirectURI string) string {
	q := url.Values{"token": {token}}
	if redirectURI != "" {
		q.Set("redirect_uri", redirectURI)
	}
	return c.url("/one_time_login?" + q.Encode())
}
