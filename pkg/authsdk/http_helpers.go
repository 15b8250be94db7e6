package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Header names shared with the identity service.
const (
	HeaderCaptchaToken    = "X-Captcha-Token"
	HeaderCaptchaProvider = "X-Captcha-Provider"
)

// url builds a complete URL by appending the path to the base URL.
func (c *SDKClient) url(path string) string {
	return c.BaseURL + path
}

// doJSON sends body (when non-nil) as JSON. bearer, when set, is sent as the
// Authorization header.
func (c *SDKClient) doJSON(
	ctx context.Context,
	method, path string,
	body any,
	bearer string,
	headers map[string]string,
) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// decodeJSON decodes a 2xx response into target and validates it.
// Returns an *APIError for other statuses and a *SchemaError when the body
// does not match the contract.
func (c *SDKClient) decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp, bodyBytes)
	}

	if target == nil {
		return nil
	}
	if len(bytes.TrimSpace(bodyBytes)) == 0 {
		bodyBytes = []byte("{}")
	}
	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return &SchemaError{Err: err}
	}
	if err := c.validate.Struct(target); err != nil {
		return &SchemaError{Err: err}
	}
	return nil
}

// call is doJSON followed by decodeJSON.
func (c *SDKClient) call(
	ctx context.Context,
	method, path string,
	body any,
	bearer string,
	headers map[string]string,
	target any,
) error {
	resp, err := c.doJSON(ctx, method, path, body, bearer, headers)
	if err != nil {
		return err
	}
	return c.decodeJSON(resp, target)
}
