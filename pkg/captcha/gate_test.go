package captcha_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/passport/pkg/captcha"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	name      captcha.ProviderName
	loads     atomic.Int32
	executes  atomic.Int32
	resets    atomic.Int32
	destroys  atomic.Int32
	loaded    atomic.Bool
	loadErr   error
	execToken string
}

func (m *mockProvider) Name() captcha.ProviderName { return m.name }
func (m *mockProvider) IsLoaded() bool             { return m.loaded.Load() }
func (m *mockProvider) Reset()                     { m.resets.Add(1) }
func (m *mockProvider) Destroy()                   { m.destroys.Add(1) }

func (m *mockProvider) Load(context.Context, string) error {
	m.loads.Add(1)
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded.Store(true)
	return nil
}

func (m *mockProvider) Execute(context.Context, string) (string, error) {
	m.executes.Add(1)
	return m.execToken, nil
}

func gateWith(cfg captcha.Config, p *mockProvider) (*captcha.Gate, *atomic.Int32) {
	var built atomic.Int32
	g := captcha.NewGateWithFactory(captcha.StaticConfig(cfg), func(name captcha.ProviderName) (captcha.Provider, error) {
		built.Add(1)
		p.name = name
		return p, nil
	}, slogx.Discard())
	return g, &built
}

func TestGateDisabledFeatureNeverLoads(t *testing.T) {
	t.Parallel()

	p := &mockProvider{execToken: "tok"}
	g, built := gateWith(captcha.Config{
		Provider:     captcha.ProviderTurnstile,
		SiteKey:      "site",
		LoginEnabled: false,
	}, p)

	res, err := g.Execute(context.Background(), captcha.FeatureLogin)
	require.NoError(t, err)
	require.Nil(t, res)
	require.Zero(t, p.loads.Load())
	require.Zero(t, p.executes.Load())
	require.Zero(t, built.Load())
}

func TestGateEnabledFeature(t *testing.T) {
	t.Parallel()

	p := &mockProvider{execToken: "tok"}
	g, built := gateWith(captcha.Config{
		Provider:     captcha.ProviderRecaptchaV3,
		SiteKey:      "site",
		LoginEnabled: true,
	}, p)

	for range 3 {
		res, err := g.Execute(context.Background(), captcha.FeatureLogin)
		require.NoError(t, err)
		require.Equal(t, &captcha.Result{Token: "tok", Provider: captcha.ProviderRecaptchaV3}, res)
	}
	require.EqualValues(t, 1, built.Load())
	require.EqualValues(t, 3, p.executes.Load())
}

func TestGateLoadFailure(t *testing.T) {
	t.Parallel()

	p := &mockProvider{loadErr: &captcha.Error{Code: captcha.CodeScriptLoadFailed}}
	g, _ := gateWith(captcha.Config{Provider: captcha.ProviderHCaptcha, SiteKey: "s", NewsletterEnabled: true}, p)

	_, err := g.Execute(context.Background(), captcha.FeatureNewsletter)
	require.Equal(t, captcha.CodeScriptLoadFailed, captcha.CodeOf(err))
	require.Zero(t, p.executes.Load())
}

func TestGateWaitsForConfig(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	src := captcha.ConfigFunc(func(ctx context.Context) (captcha.Config, error) {
		select {
		case <-release:
			return captcha.Config{Provider: captcha.ProviderRecaptchaV3, SiteKey: "s", LoginEnabled: true}, nil
		case <-ctx.Done():
			return captcha.Config{}, ctx.Err()
		}
	})

	p := &mockProvider{execToken: "tok"}
	g := captcha.NewGateWithFactory(src, func(captcha.ProviderName) (captcha.Provider, error) { return p, nil }, slogx.Discard())

	done := make(chan *captcha.Result, 1)
	go func() {
		res, _ := g.Execute(context.Background(), captcha.FeatureLogin)
		done <- res
	}()

	select {
	case <-done:
		t.Fatal("execute returned before config settled")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NotNil(t, <-done)
}

func TestGateConfigErrorMeansNoCaptcha(t *testing.T) {
	t.Parallel()

	src := captcha.ConfigFunc(func(context.Context) (captcha.Config, error) {
		return captcha.Config{}, errors.New("offline")
	})
	g := captcha.NewGateWithFactory(src, func(captcha.ProviderName) (captcha.Provider, error) {
		t.Fatal("factory must not be called")
		return nil, nil
	}, slogx.Discard())

	res, err := g.Execute(context.Background(), captcha.FeatureLogin)
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestGateResetAndDestroyWithoutProvider(t *testing.T) {
	t.Parallel()

	g := captcha.NewGate(captcha.StaticConfig(captcha.Config{}), newFakeHost(), nil)
	require.NotPanics(t, func() {
		g.Reset()
		g.Destroy()
		g.Destroy()
	})
}

func TestGateSwitchesProvider(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	cfg := captcha.Config{Provider: captcha.ProviderRecaptchaV3, SiteKey: "s", LoginEnabled: true}
	src := captcha.ConfigFunc(func(context.Context) (captcha.Config, error) {
		mu.Lock()
		defer mu.Unlock()
		return cfg, nil
	})

	var made []*mockProvider
	g := captcha.NewGateWithFactory(src, func(name captcha.ProviderName) (captcha.Provider, error) {
		p := &mockProvider{name: name, execToken: "tok"}
		made = append(made, p)
		return p, nil
	}, slogx.Discard())

	_, err := g.Execute(context.Background(), captcha.FeatureLogin)
	require.NoError(t, err)

	mu.Lock()
	cfg.Provider = captcha.ProviderHCaptcha
	mu.Unlock()

	res, err := g.Execute(context.Background(), captcha.FeatureLogin)
	require.NoError(t, err)
	require.Equal(t, captcha.ProviderHCaptcha, res.Provider)
	require.Len(t, made, 2)
	require.EqualValues(t, 1, made[0].destroys.Load())
}
