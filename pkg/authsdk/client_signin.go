package authsdk

import (
	"context"
	"encoding/json"
	"net/http"
)

// CreateSignIn starts a sign-in for email. captchaToken and provider may be
// empty when the feature is not captcha-protected.
func (c *SDKClient) CreateSignIn(ctx context.Context, email, captchaToken, captchaProvider string) (*SignInResponse, error) {
	headers := map[string]string{}
	if captchaToken != "" {
		headers[HeaderCaptchaToken] = captchaToken
		headers[HeaderCaptchaProvider] = captchaProvider
	}

	var out SignInResponse
	err := c.call(ctx, http.MethodPost, "/v1/auth/sign_ins", map[string]string{"email": email}, "", headers, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticateWithPassword checks the password of an in-progress sign-in.
// A missing_required_fields failure carries a MissingFieldsPayload.
func (c *SDKClient) AuthenticateWithPassword(ctx context.Context, sid, password string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.call(ctx, http.MethodPost, "/v1/auth/sign_ins/password",
		map[string]string{"sid": sid, "password": password}, "", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMagicCode emails a one-time code for the sign-in.
func (c *SDKClient) SendMagicCode(ctx context.Context, sid string) (*MagicCodeResponse, error) {
	var out MagicCodeResponse
	err := c.call(ctx, http.MethodPost, "/v1/auth/sign_ins/magic_code/send",
		map[string]string{"sid": sid}, "", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticateWithMagicCode exchanges the emailed code for a session.
func (c *SDKClient) AuthenticateWithMagicCode(ctx context.Context, sid, code string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.call(ctx, http.MethodPost, "/v1/auth/sign_ins/magic_code",
		map[string]string{"sid": sid, "code": code}, "", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PasskeyOptions fetches assertion options for the sign-in.
func (c *SDKClient) PasskeyOptions(ctx context.Context, sid string) (*PasskeyOptions, error) {
	var out PasskeyOptions
	err := c.call(ctx, http.MethodPost, "/v1/auth/sign_ins/passkey/options",
		map[string]string{"sid": sid}, "", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticateWithPasskey posts a signed assertion.
func (c *SDKClient) AuthenticateWithPasskey(ctx context.Context, sid string, credential json.RawMessage) (*TokenResponse, error) {
	body := struct {
		SID        string          `json:"sid"`
		Credential json.RawMessage `json:"credential"`
	}{sid, credential}

	var out TokenResponse
	if err := c.call(ctx, http.MethodPost, "/v1/auth/sign_ins/passkey", body, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendResetPasswordEmail emails a reset link for the sign-in's account.
func (c *SDKClient) SendResetPasswordEmail(ctx context.Context, sid string) error {
	return c.call(ctx, http.MethodPost, "/v1/auth/sign_ins/reset_password",
		map[string]string{"sid": sid}, "", nil, &struct{}{})
}

// UpdateMissingFields submits the fields the service asked for.
func (c *SDKClient) UpdateMissingFields(ctx context.Context, sid string, fields map[string]any) (*TokenResponse, error) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["sid"] = sid

	var out TokenResponse
	if err := c.call(ctx, http.MethodPatch, "/v1/auth/sign_ins/missing_fields", body, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshToken rotates the session.
func (c *SDKClient) RefreshToken(ctx context.Context, sid, refreshToken string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.call(ctx, http.MethodPost, "/v1/auth/tokens/refresh",
		map[string]string{"sid": sid, "refresh_token": refreshToken}, "", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
