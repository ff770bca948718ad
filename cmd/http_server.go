package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/pentest-portal/api"
	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/app"
	"github.com/frahmantamala/pentest-portal/internal/auth"
	"github.com/frahmantamala/pentest-portal/internal/auth/session"
	"github.com/frahmantamala/pentest-portal/internal/transport/swagger"
	"github.com/frahmantamala/pentest-portal/internal/upload"
	"github.com/frahmantamala/pentest-portal/internal/upload/storage"
	"github.com/frahmantamala/pentest-portal/pkg/logger"
	"github.com/frahmantamala/pentest-portal/pkg/tracing"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startHTTPServer(); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

type Dependencies struct {
	Config          *internal.Config
	SQL             *sqlx.DB
	DB              *gorm.DB
	Sessions        session.Store
	Storage         storage.ObjectStorage
	StorageLocation string
	Logger          *slog.Logger
}

func (d *Dependencies) Close() {
	if d.Sessions != nil {
		if err := d.Sessions.Close(); err != nil {
			d.Logger.Error("session store close error", "error", err)
		}
	}
	if d.SQL != nil {
		if err := d.SQL.Close(); err != nil {
			d.Logger.Error("database close error", "error", err)
		}
	}
}

func startHTTPServer() error {
	cfg, err := setup()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Observability.Tracing, lg)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			lg.Error("tracing shutdown error", "error", err)
		}
	}()

	deps, err := initializeDependencies(ctx, cfg, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	if _, err := swagger.Load(ctx, api.OpenAPI); err != nil {
		return err
	}

	infra := app.Infra{
		Config:          cfg,
		DB:              deps.DB,
		SQL:             deps.SQL,
		Sessions:        deps.Sessions,
		Storage:         deps.Storage,
		StorageLocation: deps.StorageLocation,
		OpenAPI:         api.OpenAPI,
		Logger:          lg,
	}
	if cfg.Auth.OIDC.Enabled {
		idp, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			IssuerURL:    cfg.Auth.OIDC.IssuerURL,
			ClientID:     cfg.Auth.OIDC.ClientID,
			ClientSecret: cfg.Auth.OIDC.ClientSecret,
			RedirectURL:  cfg.Auth.OIDC.RedirectURL,
			Scopes:       cfg.Auth.OIDC.Scopes,
		})
		if err != nil {
			return fmt.Errorf("failed to discover identity provider: %w", err)
		}
		infra.IdP = idp
	}
	if cfg.Observability.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		infra.Registry = registry
	}

	application, err := app.New(infra)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           application.Router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		lg.Info("Starting HTTP server", "address", addr)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		lg.Info("Received signal, shutting down...")
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("Server shutdown error", "error", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		lg.Error("Background work did not finish", "error", err)
	}

	lg.Info("Server stopped")
	return nil
}

func initializeDependencies(ctx context.Context, cfg *internal.Config, lg *slog.Logger) (deps *Dependencies, err error) {
	deps = &Dependencies{Config: cfg, Logger: lg}
	defer func() {
		if err != nil {
			deps.Close()
		}
	}()

	if deps.SQL, err = initDB(cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if deps.DB, err = openGorm(deps.SQL.DB, cfg.Env); err != nil {
		return nil, err
	}

	deps.Sessions, err = session.New(ctx, session.Config{
		Driver:     cfg.Session.Driver,
		RedisURL:   cfg.Session.RedisURL,
		MemorySize: cfg.Session.MemorySize,
		DefaultTTL: cfg.Security.SessionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	deps.Storage, deps.StorageLocation, err = upload.NewObjectStorage(ctx, cfg.Storage, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}

	return deps, nil
}

// initDB opens the shared pgx pool. sqlx and gorm both run on top of it.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

func openGorm(conn *sql.DB, env string) (*gorm.DB, error) {
	level := gormLogger.Warn
	if env != "production" {
		level = gormLogger.Info
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return db, nil
}
