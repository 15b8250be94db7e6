package authsdk

import (
	"context"
	"net/http"
)

// GetConfig fetches the public remote configuration.
func (c *SDKClient) GetConfig(ctx context.Context) (*RemoteConfig, error) {
	var out RemoteConfig
	if err := c.call(ctx, http.MethodGet, "/v1/config", nil, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLiveness reports whether the service answers /livez.
func (c *SDKClient) GetLiveness(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/livez", nil, "", nil, nil)
}
