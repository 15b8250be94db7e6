package authsdk

import "github.com/aussiebroadwan/passport/pkg/captcha"

// ============================================================================
// Sign-in
// ============================================================================

// SignInResponse is returned by POST /v1/auth/sign_ins.
type SignInResponse struct {
	SID     string `json:"sid" validate:"required"`
	Status  string `json:"status"`
	Email   string `json:"email" validate:"required"`
	Expired bool   `json:"expired"`
}

// TokenResponse carries a freshly issued session.
type TokenResponse struct {
	// JWT is the short-lived session token
	JWT string `json:"jwt" validate:"required"`

	// RefreshToken is opaque; empty when the server did not rotate it
	RefreshToken string `json:"refresh_token,omitempty"`
}

// MissingFieldsPayload accompanies a missing_required_fields error.
type MissingFieldsPayload struct {
	// MissingFields is ordered as the server wants the inputs rendered
	MissingFields []string `json:"missing_fields" validate:"required,min=1"`

	// Values holds the current value of each missing field, if any
	Values map[string]any `json:"values,omitempty"`
}

// MagicCodeResponse is returned by the magic code send endpoint, and is also
// the payload of magic_code_recently_created.
type MagicCodeResponse struct {
	// EnableResendAfter is the cooldown in seconds
	EnableResendAfter int `json:"enable_resend_after" validate:"gte=0"`
}

// PasskeyOptions are the assertion options the authenticator signs.
type PasskeyOptions struct {
	Challenge        string   `json:"challenge" validate:"required"`
	RPID             string   `json:"rp_id" validate:"required"`
	AllowCredentials []string `json:"allow_credentials,omitempty"`
	TimeoutMS        int      `json:"timeout_ms,omitempty"`
}

// ============================================================================
// Remote configuration
// ============================================================================

// RemoteConfig is served at GET /v1/config.
type RemoteConfig struct {
	Captcha captcha.Config `json:"captcha"`
}

// ============================================================================
// OAuth consent
// ============================================================================

// Application describes the third-party app asking for consent.
type Application struct {
	ClientID    string   `json:"client_id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	LogoURL     string   `json:"logo_url,omitempty"`
}

// ConsentStatus is the body of check/update consent and of connect
// responses that need user interaction.
type ConsentStatus struct {
	HasConsent     bool           `json:"has_consent"`
	RequiredFields []string       `json:"required_fields"`
	MissingFields  []string       `json:"missing_fields"`
	Application    *Application   `json:"application" validate:"required"`
	Values         map[string]any `json:"values,omitempty"`
}

// ConsentRequest is the body of grant and connect calls.
type ConsentRequest struct {
	ClientID    string   `json:"client_id"`
	Scopes      []string `json:"scopes,omitempty"`
	RedirectURI string   `json:"redirect_uri,omitempty"`
}

// OneTimeTokenResponse carries the token for /one_time_login.
type OneTimeTokenResponse struct {
	Token string `json:"token" validate:"required"`
}

// ConnectResult is the outcome of POST /v1/oauth/connect. Exactly one of
// Token or Consent is set on success.
type ConnectResult struct {
	Token   string
	Consent *ConsentStatus

	// Code is consent_not_granted or missing_required_fields when Consent is set.
	Code ErrorCode
}

// connectEnvelope is the union of every connect response shape.
type connectEnvelope struct {
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
	Token string `json:"token,omitempty"`
	ConsentStatus
}
