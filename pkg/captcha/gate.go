package captcha

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/passport/pkg/slogx"
)

// Result is a solved captcha.
type Result struct {
	Token    string
	Provider ProviderName
}

// Factory builds providers. NewProvider bound to a Host is the default.
type Factory func(name ProviderName) (Provider, error)

// Gate yields a captcha token for a feature when remote configuration asks
// for one. The provider is created lazily and reused across calls.
type Gate struct {
	source  ConfigSource
	factory Factory
	log     *slog.Logger

	mu       sync.Mutex
	provider Provider
}

// NewGate creates a gate over host.
func NewGate(source ConfigSource, host Host, logger *slog.Logger) *Gate {
	return NewGateWithFactory(source, func(name ProviderName) (Provider, error) {
		return NewProvider(name, host)
	}, logger)
}

// NewGateWithFactory creates a gate with a custom provider factory.
func NewGateWithFactory(source ConfigSource, factory Factory, logger *slog.Logger) *Gate {
	return &Gate{source: source, factory: factory, log: slogx.OrDefault(logger)}
}

// Execute returns a token for feature, or nil when the feature is not
// captcha-protected. It waits for the remote configuration first.
func (g *Gate) Execute(ctx context.Context, feature Feature) (*Result, error) {
	cfg, err := g.source.CaptchaConfig(ctx)
	if err != nil {
		// The service enforces captcha itself; without config there is nothing to gate on.
		g.log.Warn("captcha config unavailable", "feature", feature, "error", err)
		return nil, nil
	}
	if !cfg.Enabled(feature) {
		return nil, nil
	}

	p, err := g.providerFor(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if err := p.Load(ctx, cfg.SiteKey); err != nil {
		return nil, err
	}

	token, err := p.Execute(ctx, string(feature))
	if err != nil {
		g.log.Debug("captcha execute failed", "provider", p.Name(), "code", CodeOf(err))
		return nil, err
	}
	return &Result{Token: token, Provider: p.Name()}, nil
}

// Render mounts the widget for widget-based providers. It is a no-op for
// invisible providers and when feature is not protected.
func (g *Gate) Render(ctx context.Context, feature Feature, container string) error {
	cfg, err := g.source.CaptchaConfig(ctx)
	if err != nil || !cfg.Enabled(feature) {
		return nil
	}

	p, err := g.providerFor(cfg.Provider)
	if err != nil {
		return err
	}
	if err := p.Load(ctx, cfg.SiteKey); err != nil {
		return err
	}

	if w, ok := p.(WidgetProvider); ok {
		return w.Render(ctx, container)
	}
	return nil
}

// Reset clears the current challenge. Safe with no provider.
func (g *Gate) Reset() {
	g.mu.Lock()
	p := g.provider
	g.mu.Unlock()
	if p != nil {
		p.Reset()
	}
}

// Destroy tears down the provider. Safe with no provider.
func (g *Gate) Destroy() {
	g.mu.Lock()
	p := g.provider
	g.provider = nil
	g.mu.Unlock()
	if p != nil {
		p.Destroy()
	}
}

func (g *Gate) providerFor(name ProviderName) (Provider, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.provider != nil && g.provider.Name() == name {
		return g.provider, nil
	}
	if g.provider != nil {
		g.provider.Destroy()
		g.provider = nil
	}

	p, err := g.factory(name)
	if err != nil {
		return nil, err
	}
	g.provider = p
	return p, nil
}
