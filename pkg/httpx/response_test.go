package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteError(rec, http.StatusUnprocessableEntity, "missing_required_fields", "fill these in",
		map[string]any{"missing_fields": []string{"name"}})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "missing_required_fields", body["error"])
	require.Equal(t, "fill these in", body["error_description"])
	require.Equal(t, []any{"name"}, body["missing_fields"])
}

type signInBody struct {
	Email string `json:"email" validate:"required,email"`
}

func TestDecodeJSON(t *testing.T) {
	v := validator.New()

	tests := []struct {
		name    string
		body    string
		wantErr bool
		fields  map[string]string
	}{
		{"valid", `{"email":"a@b.test"}`, false, nil},
		{"empty", ``, true, nil},
		{"unknown field", `{"email":"a@b.test","x":1}`, true, nil},
		{"invalid email", `{"email":"nope"}`, true, map[string]string{"email": "email"}},
		{"missing email", `{}`, true, map[string]string{"email": "required"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst signInBody
			err := httpx.DecodeJSON(req, &dst, v)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Equal(t, tt.fields, httpx.ValidationFields(err))
		})
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("a"), mw("b"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestParseSpaceDelimitedFields(t *testing.T) {
	require.Nil(t, httpx.ParseSpaceDelimitedFields("   "))
	require.Equal(t, []string{"openid", "email"}, httpx.ParseSpaceDelimitedFields(" openid  email "))
}
