package captcha

import "context"

// Host is the bridge between providers and the embedding page.
type Host interface {
	// LoadScript injects src and resolves once it has loaded.
	LoadScript(ctx context.Context, src string) error

	// ExecuteInvisible runs a score-based challenge and returns its token.
	ExecuteInvisible(ctx context.Context, siteKey, action string) (string, error)

	// RenderWidget mounts a visible widget into container and returns its id.
	RenderWidget(ctx context.Context, provider ProviderName, container, siteKey string) (string, error)

	// WidgetResponse returns the token of a solved widget, "" if unsolved.
	WidgetResponse(ctx context.Context, widgetID string) (string, error)

	ResetWidget(widgetID string)
	RemoveWidget(widgetID string)
}
