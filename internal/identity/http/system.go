package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/passport/internal/identity"
	"github.com/aussiebroadwan/passport/pkg/httpx"
)

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// LivezHandler godoc
//
//	@Summary		Health Check Endpoint
//	@Description	Liveness check returning status, uptime and version
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	healthResponse	"status, uptime, version"
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, healthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ConfigHandler godoc
//
//	@Summary		Public client configuration
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	identity.PublicConfig
//	@Router			/v1/config [get].
func ConfigHandler(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, svc.Config())
	}
}

// OutboxHandler lists the messages delivered to ?email=. Development only.
func OutboxHandler(outbox *identity.MemoryOutbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		if email == "" {
			writeError(w, r, identity.ErrInvalidRequest)
			return
		}
		msgs := outbox.Messages(email)
		if msgs == nil {
			msgs = []identity.Message{}
		}
		httpx.WriteJSON(w, http.StatusOK, msgs)
	}
}
