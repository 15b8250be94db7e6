package identity

import (
	"fmt"
	"net/http"
)

// Error is a domain failure with its wire representation. Handlers write it
// as {"error": Code, "error_description": Description, ...Extra}.
type Error struct {
	Status      int
	Code        string
	Description string
	Extra       map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Description)
}

// Is matches errors by code so sentinels match copies carrying Extra.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(status int, code, desc string) *Error {
	return &Error{Status: status, Code: code, Description: desc}
}

func (e *Error) with(extra map[string]any) *Error {
	c := *e
	c.Extra = extra
	return &c
}

var (
	ErrAccountNotFound     = newError(http.StatusNotFound, "account_not_found", "No account exists for this email")
	ErrInvalidPassword     = newError(http.StatusUnauthorized, "invalid_password", "The password is incorrect")
	ErrAccountLocked       = newError(http.StatusForbidden, "account_locked", "The account is locked")
	ErrMissingFields       = newError(http.StatusUnprocessableEntity, "missing_required_fields", "Profile fields are required before a session can be issued")
	ErrSignInExpired       = newError(http.StatusGone, "sign_in_expired", "The sign-in has expired")
	ErrSignInNotFound      = newError(http.StatusNotFound, "sign_in_not_found", "Unknown sign-in")
	ErrSignInNotVerified   = newError(http.StatusConflict, "sign_in_not_verified", "The sign-in has not been verified yet")
	ErrMagicCodeRecent     = newError(http.StatusConflict, "magic_code_recently_created", "A code was sent recently")
	ErrCodeNotValid        = newError(http.StatusUnauthorized, "not_valid", "The code is not valid")
	ErrCodeUsed            = newError(http.StatusUnauthorized, "used", "The code was already used")
	ErrCodeExpired         = newError(http.StatusUnauthorized, "expired", "The code has expired")
	ErrInvalidRefreshToken = newError(http.StatusUnauthorized, "invalid_refresh_token", "The refresh token is invalid or expired")
	ErrRefreshTokenRevoked = newError(http.StatusUnauthorized, "refresh_token_revoked", "The refresh token was revoked")
	ErrPasskeyNotFound     = newError(http.StatusNotFound, "passkey_not_found", "No matching passkey is registered")
	ErrPasskeyRejected     = newError(http.StatusUnauthorized, "passkey_rejected", "The passkey assertion was rejected")
	ErrApplicationNotFound = newError(http.StatusNotFound, "application_not_found", "Unknown application")
	ErrConsentNotGranted   = newError(http.StatusForbidden, "consent_not_granted", "The user has not granted consent")
	ErrInvalidUserUpdates  = newError(http.StatusUnprocessableEntity, "invalid_user_updates", "The user updates are not acceptable")
	ErrInvalidRedirectURI  = newError(http.StatusBadRequest, "invalid_redirect_uri", "The redirect URI is not registered")
	ErrNotAuthenticated    = newError(http.StatusUnauthorized, "not_authenticated", "A valid session token is required")
	ErrInvalidToken        = newError(http.StatusBadRequest, "invalid_token", "The one-time token is invalid or used")
	ErrCaptchaRequired     = newError(http.StatusBadRequest, "captcha_required", "A captcha token is required")
	ErrInvalidRequest      = newError(http.StatusBadRequest, "invalid_request", "The request is malformed")
	ErrServerError         = newError(http.StatusInternalServerError, "server_error", "Internal server error")
)
