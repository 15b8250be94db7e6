package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/passport/internal/identity"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

// writeError writes err using the shared error envelope. Anything that is
// not an *identity.Error is logged and reported as server_error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ie *identity.Error
	if !errors.As(err, &ie) {
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
		ie = identity.ErrServerError
	}
	httpx.WriteError(w, ie.Status, ie.Code, ie.Description, ie.Extra)
}

// writeDecodeError reports a body that failed to decode or validate.
func writeDecodeError(w http.ResponseWriter, err error) {
	var extra map[string]any
	if fields := httpx.ValidationFields(err); fields != nil {
		extra = map[string]any{"fields": fields}
	}
	httpx.WriteError(w, http.StatusBadRequest, identity.ErrInvalidRequest.Code, identity.ErrInvalidRequest.Description, extra)
}
