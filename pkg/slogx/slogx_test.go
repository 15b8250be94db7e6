package slogx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		require.Equal(t, want, slogx.ParseLevel(in), in)
	}
}

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "svc", Version: "v1", Env: "test", Output: &buf})
	logger.Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["msg"])
	require.Equal(t, "svc", line["service"])
}

func TestFromContextFallsBack(t *testing.T) {
	require.Equal(t, slog.Default(), slogx.FromContext(context.Background()))

	l := slogx.Discard()
	require.Equal(t, l, slogx.FromContext(slogx.WithContext(context.Background(), l)))
}

func TestTransportStampsRequestID(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(slogx.RequestIDHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := &http.Client{Transport: slogx.NewTransport(nil, slogx.Discard())}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.NotEmpty(t, seen)
}

func TestHTTPMiddlewareEchoesRequestID(t *testing.T) {
	h := slogx.HTTPMiddleware(slogx.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(slogx.RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "abc", rec.Header().Get(slogx.RequestIDHeader))
}
