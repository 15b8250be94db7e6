package captcha

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ProviderName identifies a captcha vendor.
type ProviderName string

const (
	ProviderRecaptchaV3     ProviderName = "recaptcha_v3"
	ProviderHCaptcha        ProviderName = "hcaptcha"
	ProviderTurnstile       ProviderName = "turnstile"
	ProviderFriendlyCaptcha ProviderName = "friendly_captcha"
)

// Provider is the capability set every vendor implements.
type Provider interface {
	Name() ProviderName
	Load(ctx context.Context, siteKey string) error
	Execute(ctx context.Context, action string) (string, error)
	Reset()
	IsLoaded() bool
	Destroy()
}

// WidgetProvider is a Provider that needs a visible widget before Execute
// can resolve.
type WidgetProvider interface {
	Provider
	Render(ctx context.Context, container string) error
}

// NewProvider builds the provider for name on top of host.
func NewProvider(name ProviderName, host Host) (Provider, error) {
	switch name {
	case ProviderRecaptchaV3:
		return &invisible{loader: loader{name: name, host: host, script: recaptchaScript}}, nil
	case ProviderHCaptcha:
		return &widget{loader: loader{name: name, host: host, script: hcaptchaScript}}, nil
	case ProviderTurnstile:
		return &widget{loader: loader{name: name, host: host, script: turnstileScript}}, nil
	case ProviderFriendlyCaptcha:
		return &widget{loader: loader{name: name, host: host, script: friendlyScript}}, nil
	}
	return nil, &Error{Code: CodeUnknownProvider, Provider: name}
}

func recaptchaScript(siteKey string) string {
	return "https://www.google.com/recaptcha/api.js?render=" + siteKey
}

func hcaptchaScript(string) string {
	return "https://js.hcaptcha.com/1/api.js?render=explicit"
}

func turnstileScript(string) string {
	return "https://challenges.cloudflare.com/turnstile/v0/api.js?render=explicit"
}

func friendlyScript(string) string {
	return "https://cdn.jsdelivr.net/npm/friendly-challenge@0.9.18/widget.module.min.js"
}

// loader loads a vendor script at most once. Concurrent Load calls share one
// in-flight attempt; a failed attempt can be retried.
type loader struct {
	name   ProviderName
	host   Host
	script func(siteKey string) string

	group  singleflight.Group
	loaded atomic.Bool

	mu      sync.Mutex
	siteKey string
}

func (l *loader) Name() ProviderName { return l.name }
func (l *loader) IsLoaded() bool     { return l.loaded.Load() }

func (l *loader) Load(ctx context.Context, siteKey string) error {
	if l.loaded.Load() {
		return nil
	}

	_, err, _ := l.group.Do("load", func() (any, error) {
		if l.loaded.Load() {
			return nil, nil
		}
		if err := l.host.LoadScript(ctx, l.script(siteKey)); err != nil {
			return nil, &Error{Code: CodeScriptLoadFailed, Provider: l.name, Err: err}
		}
		l.mu.Lock()
		l.siteKey = siteKey
		l.mu.Unlock()
		l.loaded.Store(true)
		return nil, nil
	})
	return err
}

func (l *loader) key() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.siteKey
}

func (l *loader) fail(code Code, err error) error {
	return &Error{Code: code, Provider: l.name, Err: err}
}

var errNotLoaded = errors.New("script not loaded")

// invisible is a score-based provider: no widget, Execute runs immediately.
type invisible struct {
	loader
}

func (p *invisible) Execute(ctx context.Context, action string) (string, error) {
	if !p.IsLoaded() {
		return "", p.fail(CodeExecutionFailed, errNotLoaded)
	}
	token, err := p.host.ExecuteInvisible(ctx, p.key(), action)
	if err != nil {
		return "", p.fail(CodeExecutionFailed, err)
	}
	if token == "" {
		return "", p.fail(CodeExecutionFailed, errors.New("empty token"))
	}
	return token, nil
}

func (p *invisible) Reset()   {}
func (p *invisible) Destroy() {}

// widget is a challenge provider that must be rendered before Execute.
type widget struct {
	loader

	wmu      sync.Mutex
	widgetID string
}

func (p *widget) Render(ctx context.Context, container string) error {
	if !p.IsLoaded() {
		return p.fail(CodeScriptLoadFailed, errNotLoaded)
	}

	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.widgetID != "" {
		return nil
	}

	id, err := p.host.RenderWidget(ctx, p.name, container, p.key())
	if err != nil {
		return p.fail(CodeExecutionFailed, err)
	}
	p.widgetID = id
	return nil
}

func (p *widget) Execute(ctx context.Context, _ string) (string, error) {
	p.wmu.Lock()
	id := p.widgetID
	p.wmu.Unlock()

	if id == "" {
		return "", p.fail(CodeWidgetNotRendered, nil)
	}

	token, err := p.host.WidgetResponse(ctx, id)
	if err != nil {
		return "", p.fail(CodeExecutionFailed, err)
	}
	if token == "" {
		return "", p.fail(CodeExecutionFailed, errors.New("widget not solved"))
	}
	return token, nil
}

func (p *widget) Reset() {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.widgetID != "" {
		p.host.ResetWidget(p.widgetID)
	}
}

func (p *widget) Destroy() {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.widgetID != "" {
		p.host.RemoveWidget(p.widgetID)
		p.widgetID = ""
	}
}
