package authsdk

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/go-playground/validator/v10"
)

// DefaultRequestTimeout bounds every call made by an SDKClient.
const DefaultRequestTimeout = 10 * time.Second

// SDKClient is the remote transport for the identity service. It knows the
// call shapes and nothing about state; the state machines own that.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	validate *validator.Validate
}

// NewSDKClient creates a client with a logging transport and the default timeout.
func NewSDKClient(baseURL string) *SDKClient {
	return NewSDKClientWith(baseURL, nil, nil)
}

// NewSDKClientWith creates a client over httpClient (nil means a fresh client
// with the default timeout). The client transport is wrapped so outgoing calls
// carry a request id and are logged.
func NewSDKClientWith(baseURL string, httpClient *http.Client, logger *slog.Logger) *SDKClient {
	logger = slogx.OrDefault(logger)

	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	wrapped := *httpClient
	wrapped.Transport = slogx.NewTransport(httpClient.Transport, logger)

	return &SDKClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &wrapped,
		Logger:     logger,
		validate:   validator.New(),
	}
}
