package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/passport/pkg/captcha"
)

// ============================================================================
// Domain error codes
// ============================================================================

// ErrorCode is an expected failure identifier. Transitions return it as data;
// "" means success.
type ErrorCode string

const (
	CodeAccountNotFound          ErrorCode = "account_not_found"
	CodeInvalidPassword          ErrorCode = "invalid_password"
	CodeAccountLocked            ErrorCode = "account_locked"
	CodeMissingRequiredFields    ErrorCode = "missing_required_fields"
	CodeSignInExpired            ErrorCode = "sign_in_expired"
	CodeMagicCodeRecentlyCreated ErrorCode = "magic_code_recently_created"
	CodeNotValid                 ErrorCode = "not_valid"
	CodeUsed                     ErrorCode = "used"
	CodeExpired                  ErrorCode = "expired"
	CodeInvalidRefreshToken      ErrorCode = "invalid_refresh_token"
	CodeRefreshTokenRevoked      ErrorCode = "refresh_token_revoked"
	CodeApplicationNotFound      ErrorCode = "application_not_found"
	CodeConsentNotGranted        ErrorCode = "consent_not_granted"
	CodeInvalidUserUpdates       ErrorCode = "invalid_user_updates"
	CodeNotAuthenticated         ErrorCode = "not_authenticated"
	CodePasskeyNotFound          ErrorCode = "passkey_not_found"
	CodePasskeyRejected          ErrorCode = "passkey_rejected"
	CodeRateLimited              ErrorCode = "rate_limit_exceeded"

	// Client-side codes.
	CodeNetworkError          ErrorCode = "network_error"
	CodeSchemaValidationError ErrorCode = "schema_validation_error"
	CodeRequestInFlight       ErrorCode = "request_in_flight"
)

// GlobalField is the errors key for failures not tied to an input.
const GlobalField = "global"

// FieldFor returns the errors key a code is reported under.
func FieldFor(code ErrorCode) string {
	switch code {
	case CodeInvalidPassword:
		return "password"
	case CodeNotValid, CodeUsed, CodeExpired:
		return "code"
	case CodeAccountNotFound:
		return "email"
	}
	return GlobalField
}

// ============================================================================
// Programmer misuse
// ============================================================================

var (
	ErrNotInitialized    = errors.New("authsdk: sdk not initialized")
	ErrNoActiveSignIn    = errors.New("authsdk: no active sign-in")
	ErrIllegalTransition = errors.New("authsdk: illegal transition")
	ErrTokenConsumed     = errors.New("authsdk: one-time token already consumed")
	ErrClosed            = errors.New("authsdk: sdk closed")
	ErrNoPasskeys        = errors.New("authsdk: no passkey authenticator configured")
)

// ============================================================================
// Transport errors
// ============================================================================

// APIError is a non-2xx response from the identity service.
type APIError struct {
	// StatusCode is the HTTP status code of the response
	StatusCode int `json:"-"`

	// Code is the error identifier, e.g. "invalid_password"
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description,omitempty"`

	// Kind discriminates connect responses: "consent" or "error".
	Kind string `json:"kind,omitempty"`

	body []byte
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Decode unmarshals the raw error body into target, for codes that carry
// extra payload (missing fields, resend cooldowns).
func (e *APIError) Decode(target any) error {
	if len(e.body) == 0 {
		return errors.New("authsdk: empty error body")
	}
	return json.Unmarshal(e.body, target)
}

// SchemaError is a response that does not match the expected contract.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string { return "authsdk: response schema: " + e.Err.Error() }
func (e *SchemaError) Unwrap() error { return e.Err }

// parseErrorResponse converts a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, body: body}
	if err := json.Unmarshal(body, apiErr); err == nil && apiErr.Code != "" {
		return apiErr
	}

	// Not our envelope (a proxy page, an empty 502...).
	apiErr.Code = "server_error"
	apiErr.Description = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return apiErr
}

// CodeOf maps any transport error to a domain code:
//   - *APIError: its code
//   - *SchemaError: schema_validation_error
//   - *captcha.Error: the captcha code
//   - anything else: network_error
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return ErrorCode(apiErr.Code)
	}

	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return CodeSchemaValidationError
	}

	if c := captcha.CodeOf(err); c != "" {
		return ErrorCode(c)
	}

	return CodeNetworkError
}

// ============================================================================
// Token errors
// ============================================================================

// AuthErrorKind classifies GetToken failures.
type AuthErrorKind string

const (
	TokenExpired  AuthErrorKind = "TOKEN_EXPIRED"
	RefreshFailed AuthErrorKind = "REFRESH_FAILED"
)

// AuthError is returned by GetToken when no valid token can be produced.
type AuthError struct {
	Kind AuthErrorKind
	Code ErrorCode
	Err  error
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("authsdk: %s: %s", e.Kind, e.Code)
	}
	return "authsdk: " + string(e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is an *AuthError of the given kind.
func IsAuthError(err error, kind AuthErrorKind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == kind
}

// isCanceled reports whether err came from the caller giving up.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
