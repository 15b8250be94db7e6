package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/passport/internal/identity"
	httpapi "github.com/aussiebroadwan/passport/internal/identity/http"
	"github.com/aussiebroadwan/passport/pkg/cryptox"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application is the development identity service with its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	service *identity.Service
	outbox  *identity.MemoryOutbox

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity-dev",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		outbox: &identity.MemoryOutbox{},
	}

	signer, err := app.initSigner()
	if err != nil {
		return nil, err
	}

	app.service = identity.NewService(identity.Options{
		Issuer:            cfg.Issuer,
		Audience:          cfg.Audience,
		SessionTTL:        cfg.SessionTTL,
		RefreshTTL:        cfg.RefreshTTL,
		SignInTTL:         cfg.SignInTTL,
		MagicCodeTTL:      cfg.MagicCodeTTL,
		MagicCodeCooldown: cfg.MagicCodeCooldown,
		Pepper:            cfg.Pepper,
	}, signer, &loggingOutbox{next: app.outbox, log: app.logger}, app.logger)

	if err := app.loadSeed(); err != nil {
		return nil, err
	}

	app.initHTTP()
	return app, nil
}

// Handler exposes the router, mainly for in-process tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.logger.Info("identity service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
			return err
		}
	}

	app.logger.Info("identity service stopped")
	return nil
}

// initSigner generates a fresh Ed25519 key. Sessions do not survive restarts.
func (app *Application) initSigner() (jwtx.Signer, error) {
	pem, err := cryptox.GenerateEd25519Key()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	signer, err := jwtx.NewSignerEdDSA(app.cfg.KeyID, pem, app.cfg.Issuer, app.cfg.Audience)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signer: %w", err)
	}
	app.logger.Info("ephemeral signing key generated", "kid", signer.KID(), "alg", signer.Alg())
	return signer, nil
}

func (app *Application) loadSeed() error {
	if app.cfg.SeedFile == "" {
		app.logger.Warn("no seed file configured, starting empty")
		return nil
	}
	seed, err := identity.LoadSeedFile(app.cfg.SeedFile)
	if err != nil {
		return fmt.Errorf("failed to load seed: %w", err)
	}
	if err := app.service.ApplySeed(seed); err != nil {
		return fmt.Errorf("failed to apply seed: %w", err)
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	var outbox *identity.MemoryOutbox
	if app.cfg.ExposeOutbox {
		outbox = app.outbox
		app.logger.Warn("dev outbox exposed at /dev/outbox")
	}

	app.router = httpapi.NewRouter(app.service, outbox, app.cfg.RateLimits, BuildVersion, app.logger)
	app.server = &http.Server{
		Addr:              net.JoinHostPort("", fmt.Sprint(app.cfg.Port)),
		Handler:           app.router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// loggingOutbox logs every delivery before recording it. Codes are logged
// at debug level only.
type loggingOutbox struct {
	next identity.Outbox
	log  *slog.Logger
}

func (o *loggingOutbox) SendMagicCode(ctx context.Context, email, code string) error {
	o.log.Info("magic code sent", "email", email)
	o.log.Debug("magic code", "email", email, "code", code)
	return o.next.SendMagicCode(ctx, email, code)
}

func (o *loggingOutbox) SendPasswordReset(ctx context.Context, email, sid string) error {
	o.log.Info("password reset sent", "email", email, "sid", sid)
	return o.next.SendPasswordReset(ctx, email, sid)
}
