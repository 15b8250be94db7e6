package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps request bodies accepted by DecodeJSON.
const MaxBodyBytes = 1 << 20

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// WriteError writes the error envelope every endpoint shares:
// {"error": code, "error_description": desc, ...extra}.
func WriteError(w http.ResponseWriter, status int, code, desc string, extra map[string]any) {
	body := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		body[k] = v
	}
	body["error"] = code
	if desc != "" {
		body["error_description"] = desc
	}
	WriteJSON(w, status, body)
}

// ErrEmptyBody is returned by DecodeJSON when the request has no body.
var ErrEmptyBody = errors.New("httpx: empty request body")

// DecodeJSON decodes the request body into dst and, when v is non-nil, runs
// struct validation on it. Unknown fields are rejected.
func DecodeJSON(r *http.Request, dst any, v *validator.Validate) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("httpx: decode body: %w", err)
	}

	if v == nil {
		return nil
	}
	return v.Struct(dst)
}

// ValidationFields flattens validator errors into field -> tag pairs.
// Returns nil when err is not a validation error.
func ValidationFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return out
}

// ParseSpaceDelimitedFields splits a space-delimited string into fields.
// Returns nil if the input string is empty or contains only whitespace.
func ParseSpaceDelimitedFields(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
