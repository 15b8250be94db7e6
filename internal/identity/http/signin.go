package http

import (
	"encoding/json"
	"net/http"

	"github.com/aussiebroadwan/passport/internal/identity"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/go-playground/validator/v10"
)

// Header names shared with the SDK.
const (
	headerCaptchaToken    = "X-Captcha-Token"
	headerCaptchaProvider = "X-Captcha-Provider"
)

// SignInHandler serves the /v1/auth/sign_ins family.
type SignInHandler struct {
	Service  *identity.Service
	Validate *validator.Validate
}

type createSignInRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type sidRequest struct {
	SID string `json:"sid" validate:"required"`
}

type passwordRequest struct {
	SID      string `json:"sid" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type magicCodeRequest struct {
	SID  string `json:"sid" validate:"required"`
	Code string `json:"code" validate:"required"`
}

type passkeyRequest struct {
	SID        string          `json:"sid" validate:"required"`
	Credential json.RawMessage `json:"credential" validate:"required"`
}

type magicCodeResponse struct {
	EnableResendAfter int `json:"enable_resend_after"`
}

// HandleCreate godoc
//
//	@Summary		Create sign-in
//	@Description	Starts a sign-in for an email address. When captcha is enabled for login the X-Captcha-Token and X-Captcha-Provider headers are required.
//	@Tags			SignIn
//	@Accept			json
//	@Produce		json
//	@Param			X-Captcha-Token		header		string				false	"Captcha token"
//	@Param			X-Captcha-Provider	header		string				false	"Captcha provider"
//	@Param			body				body		createSignInRequest	true	"Email"
//	@Success		201					{object}	identity.SignInInfo
//	@Failure		400					{object}	map[string]any	"invalid_request, captcha_required"
//	@Failure		404					{object}	map[string]any	"account_not_found"
//	@Router			/v1/auth/sign_ins [post].
func (h *SignInHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSignInRequest
	if err := httpx.DecodeJSON(r, &req, h.Validate); err != nil {
		writeDecodeError(w, err)
		return
	}

	info, err := h.Service.CreateSignIn(r.Context(), req.Email,
		r.Header.Get(headerCaptchaToken), r.Header.Get(headerCaptchaProvider))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, info)
}

// HandlePassword godoc
//
//	@Summary		Authenticate with password
//	@Tags			SignIn
//	@Accept			json
//	@Produce		json
//	@Param			body	body		passwordRequest	true	"Sign-in id and password"
//	@Success		200		{object}	identity.TokenPair
//	@Failure		401		{object}	map[string]any	"invalid_password"
//	@Failure		403		{object}	map[string]any	"account_locked"
//	@Failure		422		{object}	map[string]any	"missing_required_fields"
//	@Router			/v1/auth/sign_ins/password [post].
func (h *SignInHandler) HandlePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := httpx.DecodeJSON(r, &req, h.Validate); err != nil {
		writeDecodeError(w, err)
		return
	}

	pair, err := h.Service.AuthenticatePassword(r.Context(), req.SID, req.Password)
	writeTokens(w, r, pair, err)
}

// HandleSendMagicCode godoc
//
//	@Summary		Send magic code
//	@Description	Emails a one-time code. Sending again inside the cooldown fails with magic_code_recently_created and enable_resend_after.
//	@Tags			SignIn
//	@Accept			json
//	@Produce		json
//	@Param			body	body		sidRequest	true	"Sign-in id"
//	@Success		200		{object}	magicCodeResponse
//	@Failure		409		{object}	map[string]any	"magic_code_recently_created"
//	@Router			/v1/auth/sign_ins/magic_code/send [post].
func (h *SignInHandler) HandleSendMagicCode(w http.ResponseWriter, r *http.Request) {
	var req sidRequest
	if err := httpx.DecodeJSON(r, &req, h.Validate); err != nil {
		writeDecodeError(w, err)
		return
	}

	after, err := h.Service.SendMagicCode(r.Context(), req.SID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, magicCodeResponse{EnableResendAfter: after})
}

// HandleMagicCode godoc
//
//	@Summary		Authenticate with magic code
//	@Tags			SignIn
//	@Accept			json
//	@Produce		json
//	@Param			body	body		magicCodeRequest	true	"Sign-in id and code"
//	@Success		200		{object}	identity.TokenPair
//	@Failure		401		{object}	map[string]any	"not_valid, used, expired"
//	@Router			/v1/auth/sign_ins/magic_code [post].
func (h *SignInHandler) HandleMagicCode(w http.ResponseWriter, r *http.Request) {
	var req magicCodeRequest
	if err := httpx.DecodeJSON(r, &req, h.Validate); err != nil {
		writeDecodeError(w, err)
		return
	}

	pair, err := h.Service.AuthenticateMagicCode(r.Context(), req.SID, req.Code)
	writeTokens(w, r, pair, err)
}

// HandlePasskeyOptions godoc
//
//	@Summary		Passkey assertion options
//	@Tags			SignIn
//	@Accept			json
//	@Produce		json
//	@Param			body	body		sidRequest	true	"Sign-in id"
//	@Success		200		{object}	identity.PasskeyOptions
//	@Failure		404		{object}	map[string]any	"passkey_not_found"
//	@Router			/v1/auth/sign_ins/passkey/options [post].
func (h *SignInHandler) HandlePasskeyOptions(w http.ResponseWriter, r *http.Request) {
	var req sidRequest
	if err := httpx.DecodeJSON(r, &req, h.Validate); err != nil {
		writeDecodeError(w, err)
		return
	}

	opts, err := h.Service.PasskeyOptions(r.Context(), req.SID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, opts)
}

// HandlePasskey godoc
//
//	@Summary		Authenticate with passkey
//	@Tags			SignIn
//	@Accept			json
//	@Produce		json
//	@Param			body	body		passkeyRequest	true	"Sign-in id and assertion"
//	@Success		200		{object}	identity.TokenPair
//	@Failure		401		{object}	map[string]any	"passkey_rejected"
//	@Router			/v1/auth/sign_ins/passkey [post].
func (h *SignInHandler) HandlePasskey(w http.ResponseWriter, r *http.Request) {
	var req passkeyRequest
	if err := httpx.DecodeJSON(r, &req, h.Validate); err != nil {
		writeDecodeError(w, err)
		return
	}

	pair, err := h.Service.AuthenticatePasskey(r.Context(), req.SID, req.Credential)
	writeTokens(w, r, pair, err)
}

// HandleResetPassword godoc
//
//	@Summary		Send reset password email
//	@Description	Idempotent per sign-in.
//	@Tags			SignIn
//	@Accept			json
//	@Produce		json
//	@Param			body	body	sidRequest	true	"Sign-in id"
//	@Success		200		"Email sent"
//	@Router			/v1/auth/sign_ins/reset_password [post].
func (h *SignInHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req sidRequest
	if err := httpx.DecodeJSON(r, &req, h.Validate); err != nil {
		writeDecodeError(w, err)
		return
	}

	if err := h.Service.SendPasswordReset(r.Context(), req.SID); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

// HandleMissingFields godoc
//
//	@Summary		Submit missing profile fields
//	@Description	Body is the sid plus one key per missing field.
//	@Tags			SignIn
//	@Accept			json
//	@Produce		json
//	@Param			body	body		map[string]any	true	"sid and field values"
//	@Success		200		{object}	identity.TokenPair
//	@Failure		409		{object}	map[string]any	"sign_in_not_verified"
//	@Failure		422		{object}	map[string]any	"missing_required_fields"
//	@Router			/v1/auth/sign_ins/missing_fields [patch].
func (h *SignInHandler) HandleMissingFields(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := httpx.DecodeJSON(r, &body, nil); err != nil {
		writeDecodeError(w, err)
		return
	}

	sid, _ := body["sid"].(string)
	if sid == "" {
		writeError(w, r, identity.ErrInvalidRequest)
		return
	}
	delete(body, "sid")

	pair, err := h.Service.UpdateMissingFields(r.Context(), sid, body)
	writeTokens(w, r, pair, err)
}

func writeTokens(w http.ResponseWriter, r *http.Request, pair identity.TokenPair, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// RefreshHandler serves POST /v1/auth/tokens/refresh.
type RefreshHandler struct {
	Service  *identity.Service
	Validate *validator.Validate
}

type refreshRequest struct {
	SID          string `json:"sid" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ServeHTTP godoc
//
//	@Summary		Refresh session token
//	@Description	Rotates the refresh token. Reusing a rotated token outside the grace window revokes the session.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			body	body		refreshRequest	true	"Session id and refresh token"
//	@Success		200		{object}	identity.TokenPair
//	@Failure		401		{object}	map[string]any	"invalid_refresh_token, refresh_token_revoked"
//	@Header			200		{string}	Cache-Control	"no-store"
//	@Router			/v1/auth/tokens/refresh [post].
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req, h.Validate); err != nil {
		writeDecodeError(w, err)
		return
	}

	pair, err := h.Service.Refresh(r.Context(), req.SID, req.RefreshToken)
	writeTokens(w, r, pair, err)
}
