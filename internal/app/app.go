// Package app assembles the portal from its infrastructure: repositories,
// services, event subscribers and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/access"
	accessPostgres "github.com/frahmantamala/pentest-portal/internal/access/postgres"
	"github.com/frahmantamala/pentest-portal/internal/audit"
	auditPostgres "github.com/frahmantamala/pentest-portal/internal/audit/postgres"
	"github.com/frahmantamala/pentest-portal/internal/auth"
	"github.com/frahmantamala/pentest-portal/internal/auth/session"
	"github.com/frahmantamala/pentest-portal/internal/client"
	clientPostgres "github.com/frahmantamala/pentest-portal/internal/client/postgres"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
	"github.com/frahmantamala/pentest-portal/internal/dashboard"
	dashboardPostgres "github.com/frahmantamala/pentest-portal/internal/dashboard/postgres"
	"github.com/frahmantamala/pentest-portal/internal/export"
	"github.com/frahmantamala/pentest-portal/internal/finding"
	findingPostgres "github.com/frahmantamala/pentest-portal/internal/finding/postgres"
	"github.com/frahmantamala/pentest-portal/internal/report"
	reportPostgres "github.com/frahmantamala/pentest-portal/internal/report/postgres"
	"github.com/frahmantamala/pentest-portal/internal/transport"
	"github.com/frahmantamala/pentest-portal/internal/transport/middleware"
	"github.com/frahmantamala/pentest-portal/internal/transport/rest"
	"github.com/frahmantamala/pentest-portal/internal/upload"
	uploadPostgres "github.com/frahmantamala/pentest-portal/internal/upload/postgres"
	"github.com/frahmantamala/pentest-portal/internal/upload/storage"
	"github.com/frahmantamala/pentest-portal/internal/user"
	userPostgres "github.com/frahmantamala/pentest-portal/internal/user/postgres"
)

// Infra is everything that talks to the outside world. Callers own its
// lifecycle; App only borrows it.
type Infra struct {
	Config          *internal.Config
	DB              *gorm.DB
	SQL             *sqlx.DB
	Sessions        session.Store
	Storage         storage.ObjectStorage
	StorageLocation string
	// IdP is nil when single sign-on is not configured.
	IdP auth.IdentityProvider
	// Registry is nil when metrics are disabled.
	Registry *prometheus.Registry
	OpenAPI  []byte
	Logger   *slog.Logger
}

type App struct {
	Router  *chi.Mux
	Bus     *events.EventBus
	Purger  *upload.Purger
	Users   *user.Service
	Uploads *upload.Service

	logger *slog.Logger
}

func New(infra Infra) (*App, error) {
	cfg := infra.Config
	if cfg == nil || infra.DB == nil || infra.SQL == nil || infra.Sessions == nil || infra.Storage == nil {
		return nil, errors.New("app: config, databases, session store and storage are required")
	}
	lg := infra.Logger

	bus := events.NewEventBus(lg)
	tx := datastore.NewGormTransactor(infra.DB)
	base := transport.NewBaseHandler(lg)

	accessRepo := accessPostgres.NewRepository(infra.DB)
	reportRepo := reportPostgres.NewRepository(infra.DB)
	findingRepo := findingPostgres.NewRepository(infra.DB)
	auditRepo := auditPostgres.NewRepository(infra.DB)

	gate := access.NewGate(accessRepo, lg)

	users := user.NewService(userPostgres.NewRepository(infra.DB), bus, cfg.Demo.RoleSwitchEnabled, lg)
	authService := auth.NewService(
		users,
		auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.SessionTTL),
		infra.Sessions,
		infra.IdP,
		auth.Options{
			LocalLoginEnabled: cfg.Auth.LocalLoginEnabled,
			BCryptCost:        cfg.Security.BCryptCost,
		},
		lg,
	)

	purger := upload.NewPurger(infra.Storage, upload.PurgerConfig{
		Workers:   cfg.Upload.PurgeWorkers,
		QueueSize: cfg.Upload.QueueSize,
	}, lg)
	uploads := upload.NewService(uploadPostgres.NewRepository(infra.DB), infra.Storage, gate, tx, bus, upload.Options{
		MaxSizeBytes: cfg.Upload.MaxSizeBytes,
		Location:     infra.StorageLocation,
		OrphanMinAge: cfg.Upload.OrphanMinAge,
	}, lg)

	bus.Subscribe(events.EventTypeUploadsRemoved, purger.HandleUploadsRemoved)
	audit.NewSubscriber(auditRepo, lg).RegisterEventHandlers(bus)

	handlers := rest.Handlers{
		Auth: auth.NewHandler(base, authService, auth.CookieConfig{
			Name:          cfg.Security.CookieName,
			Secure:        cfg.Security.CookieSecure,
			PostLoginURL:  cfg.Security.PostLoginURL,
			PostLogoutURL: cfg.Security.PostLogoutURL,
		}),
		Users:     user.NewHandler(base, users),
		Dashboard: dashboard.NewHandler(base, dashboard.NewService(dashboardPostgres.NewRepository(infra.SQL), gate, lg)),
		Clients:   client.NewHandler(base, client.NewService(clientPostgres.NewRepository(infra.DB), gate, tx, bus, lg)),
		Reports:   report.NewHandler(base, report.NewService(reportRepo, accessRepo, gate, tx, bus, lg)),
		Findings:  finding.NewHandler(base, finding.NewService(findingRepo, gate, tx, bus, lg)),
		Uploads:   upload.NewHandler(base, uploads),
		Access:    access.NewHandler(base, access.NewService(accessRepo, gate, bus, lg)),
		Export:    export.NewHandler(base, export.NewService(reportRepo, findingRepo, gate, lg)),
		Audit:     audit.NewHandler(base, audit.NewService(auditRepo, gate, lg)),
		Health: rest.NewHealthHandler(map[string]rest.PingFunc{
			"postgres": infra.SQL.PingContext,
			"sessions": infra.Sessions.Ping,
		}),
	}

	opts := rest.Options{
		Logger:         lg,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPI:        infra.OpenAPI,
		Tracing:        cfg.Observability.Tracing.Enabled,
	}
	if infra.Registry != nil {
		opts.Metrics = middleware.NewMetrics(infra.Registry)
		opts.MetricsPath = cfg.Observability.Metrics.Path
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, handlers, opts)

	return &App{
		Router:  router,
		Bus:     bus,
		Purger:  purger,
		Users:   users,
		Uploads: uploads,
		logger:  lg,
	}, nil
}

// Shutdown lets in-flight event handlers finish, which may still enqueue
// blob purges, and then drains the purge pool.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Bus.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain event bus: %w", err))
	}
	if err := a.Purger.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain purge pool: %w", err))
	}
	return errors.Join(errs...)
}
