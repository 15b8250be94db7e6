package captcha

import "context"

// Feature names a protected flow.
type Feature string

const (
	FeatureLogin        Feature = "login"
	FeatureRegistration Feature = "registration"
	FeatureNewsletter   Feature = "newsletter"
)

// Config is the captcha section of the remote configuration.
type Config struct {
	Provider            ProviderName `json:"provider" yaml:"provider"`
	SiteKey             string       `json:"site_key" yaml:"site_key"`
	LoginEnabled        bool         `json:"login_enabled" yaml:"login_enabled"`
	RegistrationEnabled bool         `json:"registration_enabled" yaml:"registration_enabled"`
	NewsletterEnabled   bool         `json:"newsletter_enabled" yaml:"newsletter_enabled"`
}

// Enabled reports whether f requires a captcha.
func (c Config) Enabled(f Feature) bool {
	if c.Provider == "" || c.SiteKey == "" {
		return false
	}
	switch f {
	case FeatureLogin:
		return c.LoginEnabled
	case FeatureRegistration:
		return c.RegistrationEnabled
	case FeatureNewsletter:
		return c.NewsletterEnabled
	}
	return false
}

// ConfigSource yields the captcha configuration. Implementations block until
// the remote configuration fetch has settled.
type ConfigSource interface {
	CaptchaConfig(ctx context.Context) (Config, error)
}

// ConfigFunc adapts a function to ConfigSource.
type ConfigFunc func(ctx context.Context) (Config, error)

func (f ConfigFunc) CaptchaConfig(ctx context.Context) (Config, error) { return f(ctx) }

// StaticConfig is a ConfigSource that never blocks.
func StaticConfig(c Config) ConfigSource {
	return ConfigFunc(func(context.Context) (Config, error) { return c, nil })
}
