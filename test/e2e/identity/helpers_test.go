//go:build e2e

package identity_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/passport/pkg/authsdk"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Container setup and helpers for the identity-dev end-to-end suite. The
 * image serves cmd/identity-dev/seed.yaml.
 */

const (
	testImageName = "passport-identity-dev-test:latest"

	adaEmail   = "ada@example.com"
	graceEmail = "grace@example.com"
	password   = "correct horse battery staple"
	shopClient = "app_shop"
	shopURI    = "http://localhost:3000/callback"
)

// TestMain builds the image once for every test in the package.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building identity-dev Docker image...")
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up identity-dev Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/identity-dev/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	_ = exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName).Run()
}

// setupContainer starts identity-dev and returns its base URL. extraEnv
// overrides the defaults.
func setupContainer(t *testing.T, extraEnv map[string]string) string {
	t.Helper()
	ctx := context.Background()

	env := map[string]string{
		"ENV":                    "test",
		"LOG_LEVEL":              "info",
		"LOG_FORMAT":             "json",
		"IDENTITY_ISSUER":        "passport-e2e",
		"IDENTITY_EXPOSE_OUTBOX": "true",
		// Tests issue many rapid requests from one address.
		"RATELIMIT_CREDENTIAL_REQUESTS":   "1000",
		"RATELIMIT_CREDENTIAL_WINDOW_SEC": "60",
		"RATELIMIT_CREDENTIAL_BURST":      "1000",
		"RATELIMIT_SIGNIN_REQUESTS":       "1000",
		"RATELIMIT_SIGNIN_BURST":          "1000",
		"RATELIMIT_SESSION_REQUESTS":      "1000",
		"RATELIMIT_SESSION_BURST":         "1000",
	}
	for k, v := range extraEnv {
		env[k] = v
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImageName,
			ExposedPorts: []string{"8080/tcp"},
			Env:          env,
			WaitingFor: wait.ForHTTP("/livez").
				WithPort("8080/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

// newSDK returns an initialized SDK against baseURL.
func newSDK(t *testing.T, baseURL string, mutate ...func(*authsdk.Config)) *authsdk.SDK {
	t.Helper()

	cfg := authsdk.Config{BaseURL: baseURL, Logger: slogx.Discard()}
	for _, fn := range mutate {
		fn(&cfg)
	}
	sdk, err := authsdk.New(cfg)
	require.NoError(t, err)
	t.Cleanup(sdk.Close)
	require.NoError(t, sdk.Init(t.Context()))
	return sdk
}

type outboxMessage struct {
	Kind  string `json:"kind"`
	Email string `json:"email"`
	Code  string `json:"code"`
}

// lastMagicCode reads the most recent code mailed to email from the dev outbox.
func lastMagicCode(t *testing.T, baseURL, email string) string {
	t.Helper()

	resp, err := http.Get(baseURL + "/dev/outbox?email=" + url.QueryEscape(email))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msgs []outboxMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind == "magic_code" {
			return msgs[i].Code
		}
	}
	t.Fatalf("no magic code mailed to %s", email)
	return ""
}

// signIn completes a password sign-in, filling missing fields when asked.
func signIn(t *testing.T, sdk *authsdk.SDK, email string, fields map[string]authsdk.Value) {
	t.Helper()
	ctx := t.Context()

	code, err := sdk.SignIn().CreateSignIn(ctx, email)
	require.NoError(t, err)
	require.Empty(t, code)

	code, err = sdk.SignIn().AuthenticateWithPassword(ctx, password)
	require.NoError(t, err)
	if code == authsdk.CodeMissingRequiredFields {
		for f, v := range fields {
			sdk.Profile().Set(f, v)
		}
		code, err = sdk.SignIn().SubmitMissingFields(ctx)
		require.NoError(t, err)
	}
	require.Empty(t, code)
	require.True(t, sdk.Session().Snapshot().Authenticated)
}
