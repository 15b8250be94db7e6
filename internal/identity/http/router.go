package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/passport/internal/identity"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/go-playground/validator/v10"

	_ "github.com/aussiebroadwan/passport/internal/identity/docs" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	svc          *identity.Service
	outbox       *identity.MemoryOutbox
	limits       httpx.RateLimits
	buildVersion string
	startTime    time.Time
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewRouter builds the router. outbox, when non-nil, is exposed at
// GET /dev/outbox so local tooling can read delivered codes.
func NewRouter(svc *identity.Service, outbox *identity.MemoryOutbox, limits httpx.RateLimits, buildVersion string, logger *slog.Logger) *Router {
	logger = slogx.OrDefault(logger)
	r := &Router{
		Mux:          http.NewServeMux(),
		svc:          svc,
		outbox:       outbox,
		limits:       limits,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		validate:     validator.New(),
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	r.applyRoutes()
	return r
}

func (r *Router) applyRoutes() {
	r.registerSignIn()
	r.registerTokens()
	r.registerOAuth()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Passport Identity Service API
//	@version		0.1.0
//	@description	Reference identity service for the passport SDK: sign-in, token refresh and OAuth consent.
//	@description
//	@description				Session tokens are EdDSA-signed JWTs. Refresh tokens are opaque and rotate on every use.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/passport
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSignIn() {
	h := &SignInHandler{Service: r.svc, Validate: r.validate}

	// Sign-in creation and email sends
	r.Mux.Handle("POST /v1/auth/sign_ins",
		httpx.Chain(http.HandlerFunc(h.HandleCreate),
			httpx.Throttle(r.limits.SignIn),
		),
	)
	r.Mux.Handle("POST /v1/auth/sign_ins/magic_code/send",
		httpx.Chain(http.HandlerFunc(h.HandleSendMagicCode),
			httpx.Throttle(r.limits.SignIn),
		),
	)
	r.Mux.Handle("POST /v1/auth/sign_ins/reset_password",
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword),
			httpx.Throttle(r.limits.SignIn),
		),
	)

	// Credential checks
	r.Mux.Handle("POST /v1/auth/sign_ins/password",
		httpx.Chain(http.HandlerFunc(h.HandlePassword),
			httpx.Throttle(r.limits.Credential),
		),
	)
	r.Mux.Handle("POST /v1/auth/sign_ins/magic_code",
		httpx.Chain(http.HandlerFunc(h.HandleMagicCode),
			httpx.Throttle(r.limits.Credential),
		),
	)
	r.Mux.Handle("POST /v1/auth/sign_ins/passkey/options",
		httpx.Chain(http.HandlerFunc(h.HandlePasskeyOptions),
			httpx.Throttle(r.limits.SignIn),
		),
	)
	r.Mux.Handle("POST /v1/auth/sign_ins/passkey",
		httpx.Chain(http.HandlerFunc(h.HandlePasskey),
			httpx.Throttle(r.limits.Credential),
		),
	)
	r.Mux.Handle("PATCH /v1/auth/sign_ins/missing_fields",
		httpx.Chain(http.HandlerFunc(h.HandleMissingFields),
			httpx.Throttle(r.limits.SignIn),
		),
	)
}

func (r *Router) registerTokens() {
	h := &RefreshHandler{Service: r.svc, Validate: r.validate}

	// Every SDK instance refreshes on a timer
	r.Mux.Handle("POST /v1/auth/tokens/refresh",
		httpx.Chain(h,
			httpx.Throttle(r.limits.Session),
		),
	)
}

func (r *Router) registerOAuth() {
	h := &ConsentHandler{Service: r.svc, Validate: r.validate}

	// Bearer endpoints are keyed by IP and token so users behind one NAT get separate buckets
	limit := httpx.Throttle(r.limits.Session, httpx.ClientIP, httpx.HeaderFingerprint("Authorization"))
	r.Mux.Handle("GET /v1/oauth/consent", httpx.Chain(http.HandlerFunc(h.HandleCheck), limit))
	r.Mux.Handle("PATCH /v1/oauth/consent", httpx.Chain(http.HandlerFunc(h.HandleUpdate), limit))
	r.Mux.Handle("POST /v1/oauth/consent", httpx.Chain(http.HandlerFunc(h.HandleGrant), limit))
	r.Mux.Handle("POST /v1/oauth/connect", httpx.Chain(http.HandlerFunc(h.HandleConnect), limit))

	// Token redemption is a credential check
	r.Mux.Handle("GET /one_time_login",
		httpx.Chain(http.HandlerFunc(h.HandleOneTimeLogin),
			httpx.Throttle(r.limits.Credential),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.Throttle(r.limits.Public),
		),
	)
	r.Mux.Handle("GET /v1/config",
		httpx.Chain(ConfigHandler(r.svc),
			httpx.Throttle(r.limits.Public),
		),
	)

	if r.outbox != nil {
		r.Mux.Handle("GET /dev/outbox", OutboxHandler(r.outbox))
	}
}
