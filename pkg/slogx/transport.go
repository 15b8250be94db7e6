package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/passport/pkg/idx"
)

// Transport is an http.RoundTripper that stamps every outgoing request with a
// request id and logs the outcome at debug level. Query strings are never
// logged since they may carry one-time tokens.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Logger: OrDefault(logger)}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	if req.Header.Get(RequestIDHeader) == "" {
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, idx.New().String())
	}

	log := t.Logger.With(
		"req_id", req.Header.Get(RequestIDHeader),
		"method", req.Method,
		"path", req.URL.Path,
	)

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		log.Warn("http_call_failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	log.Debug("http_call", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}
