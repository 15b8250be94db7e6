package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/passport/internal/identity"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/go-playground/validator/v10"
)

// ConsentHandler serves consent, connect and one-time login.
type ConsentHandler struct {
	Service  *identity.Service
	Validate *validator.Validate
}

type updateConsentRequest struct {
	ClientID    string         `json:"client_id" validate:"required"`
	UserUpdates map[string]any `json:"user_updates" validate:"required"`
}

type consentRequest struct {
	ClientID    string   `json:"client_id" validate:"required"`
	Scopes      []string `json:"scopes,omitempty"`
	RedirectURI string   `json:"redirect_uri,omitempty"`
}

type oneTimeTokenResponse struct {
	Token string `json:"token"`
}

// connectResponse tags every connect body with its kind.
type connectResponse struct {
	Kind  string `json:"kind"`
	Token string `json:"token,omitempty"`
	Error string `json:"error,omitempty"`
	*identity.ConsentStatus
}

// user resolves the bearer session token.
func (h *ConsentHandler) user(r *http.Request) (*identity.User, error) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return nil, identity.ErrNotAuthenticated
	}
	return h.Service.Authenticate(token)
}

// HandleCheck godoc
//
//	@Summary		Check consent
//	@Tags			OAuth
//	@Produce		json
//	@Param			client_id	query		string	true	"Application client id"
//	@Param			scopes		query		string	false	"Space-delimited scopes"
//	@Success		200			{object}	identity.ConsentStatus
//	@Failure		401			{object}	map[string]any	"not_authenticated"
//	@Failure		404			{object}	map[string]any	"application_not_found"
//	@Security		BearerAuth
//	@Router			/v1/oauth/consent [get].
func (h *ConsentHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	u, err := h.user(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		writeError(w, r, identity.ErrInvalidRequest)
		return
	}

	st, err := h.Service.CheckConsent(r.Context(), u, clientID, httpx.ParseSpaceDelimitedFields(q.Get("scopes")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

// HandleUpdate godoc
//
//	@Summary		Update profile fields for an application
//	@Description	Only the application's required fields may be updated.
//	@Tags			OAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		updateConsentRequest	true	"Client id and updates"
//	@Success		200		{object}	identity.ConsentStatus
//	@Failure		422		{object}	map[string]any	"invalid_user_updates"
//	@Security		BearerAuth
//	@Router			/v1/oauth/consent [patch].
func (h *ConsentHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	u, err := h.user(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateConsentRequest
	if err := httpx.DecodeJSON(r, &req, h.Validate); err != nil {
		writeDecodeError(w, err)
		return
	}

	st, err := h.Service.UpdateConsent(r.Context(), u, req.ClientID, req.UserUpdates)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

// HandleGrant godoc
//
//	@Summary		Grant consent
//	@Description	Records consent and returns a one-time login token for /one_time_login.
//	@Tags			OAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		consentRequest	true	"Client id, scopes and redirect"
//	@Success		200		{object}	oneTimeTokenResponse
//	@Failure		422		{object}	map[string]any	"missing_required_fields"
//	@Security		BearerAuth
//	@Router			/v1/oauth/consent [post].
func (h *ConsentHandler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	u, err := h.user(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req consentRequest
	if err := httpx.DecodeJSON(r, &req, h.Validate); err != nil {
		writeDecodeError(w, err)
		return
	}

	token, err := h.Service.GrantConsent(r.Context(), u, req.ClientID, req.Scopes, req.RedirectURI)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, oneTimeTokenResponse{Token: token})
}

// HandleConnect godoc
//
//	@Summary		Connect
//	@Description	Check and grant in one call. The body carries kind=token on success, kind=consent when the user must act, kind=error otherwise.
//	@Tags			OAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		consentRequest	true	"Client id, scopes and redirect"
//	@Success		200		{object}	connectResponse	"kind=token"
//	@Failure		403		{object}	connectResponse	"kind=consent, consent_not_granted"
//	@Failure		422		{object}	connectResponse	"kind=consent, missing_required_fields"
//	@Security		BearerAuth
//	@Router			/v1/oauth/connect [post].
func (h *ConsentHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	u, err := h.user(r)
	if err != nil {
		writeConnectError(w, r, err)
		return
	}

	var req consentRequest
	if err := httpx.DecodeJSON(r, &req, h.Validate); err != nil {
		writeDecodeError(w, err)
		return
	}

	token, st, err := h.Service.Connect(r.Context(), u, req.ClientID, req.Scopes, req.RedirectURI)
	var ie *identity.Error
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, connectResponse{Kind: "token", Token: token})
	case st != nil && errors.As(err, &ie):
		httpx.WriteJSON(w, ie.Status, connectResponse{Kind: "consent", Error: ie.Code, ConsentStatus: st})
	default:
		writeConnectError(w, r, err)
	}
}

func writeConnectError(w http.ResponseWriter, r *http.Request, err error) {
	var ie *identity.Error
	if !errors.As(err, &ie) {
		writeError(w, r, err)
		return
	}
	extra := map[string]any{"kind": "error"}
	for k, v := range ie.Extra {
		extra[k] = v
	}
	httpx.WriteError(w, ie.Status, ie.Code, ie.Description, extra)
}

// HandleOneTimeLogin godoc
//
//	@Summary		Redeem one-time login token
//	@Description	Consumes the token and redirects to the registered redirect URI with sid and refresh_token query parameters.
//	@Tags			OAuth
//	@Param			token			query	string	true	"One-time token"
//	@Param			redirect_uri	query	string	false	"Must match the URI the token was issued for"
//	@Success		302				"Redirect to the relying party"
//	@Failure		400				{object}	map[string]any	"invalid_token, invalid_redirect_uri"
//	@Router			/one_time_login [get].
func (h *ConsentHandler) HandleOneTimeLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		writeError(w, r, identity.ErrInvalidToken)
		return
	}

	target, err := h.Service.RedeemOneTime(r.Context(), token, q.Get("redirect_uri"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.NoCache(w)
	http.Redirect(w, r, target, http.StatusFound)
}
