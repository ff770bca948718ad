package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/pentest-portal/internal/access"
	"github.com/frahmantamala/pentest-portal/internal/audit"
	"github.com/frahmantamala/pentest-portal/internal/auth"
	"github.com/frahmantamala/pentest-portal/internal/client"
	"github.com/frahmantamala/pentest-portal/internal/dashboard"
	"github.com/frahmantamala/pentest-portal/internal/export"
	"github.com/frahmantamala/pentest-portal/internal/finding"
	"github.com/frahmantamala/pentest-portal/internal/report"
	"github.com/frahmantamala/pentest-portal/internal/transport/middleware"
	"github.com/frahmantamala/pentest-portal/internal/transport/swagger"
	"github.com/frahmantamala/pentest-portal/internal/upload"
	"github.com/frahmantamala/pentest-portal/internal/user"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Handlers struct {
	Auth      *auth.Handler
	Users     *user.Handler
	Dashboard *dashboard.Handler
	Clients   *client.Handler
	Reports   *report.Handler
	Findings  *finding.Handler
	Uploads   *upload.Handler
	Access    *access.Handler
	Export    *export.Handler
	Audit     *audit.Handler
	Health    *HealthHandler
}

type Options struct {
	Logger         *slog.Logger
	Metrics        *middleware.Metrics
	MetricsPath    string
	AllowedOrigins string
	OpenAPI        []byte
	Tracing        bool
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options) {
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	if opts.Tracing {
		router.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "http.server",
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return r.Method + " " + r.URL.Path
				}))
		})
	}
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware)
	}
	router.Use(middleware.Logging(opts.Logger))
	router.Use(middleware.Recovery)

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Method(http.MethodGet, path, opts.Metrics.Handler())
	}
	if len(opts.OpenAPI) > 0 {
		router.Get(swagger.SpecPath, swagger.SpecHandler(opts.OpenAPI))
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.Health.Ping)
		r.Get("/health", h.Health.Health)

		r.Get("/login", h.Auth.BeginOIDC)
		r.Get("/callback", h.Auth.Callback)
		r.Get("/logout", h.Auth.Logout)
		r.Post("/auth/login", h.Auth.Login)

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.Middleware)

			pr.Get("/auth/user", h.Users.GetCurrentUser)
			pr.Patch("/auth/role", h.Users.SwitchRole)

			pr.Get("/dashboard/metrics", h.Dashboard.GetMetrics)

			pr.Get("/clients", h.Clients.ListClients)
			pr.Get("/clients/{id}", h.Clients.GetClient)

			pr.Get("/reports", h.Reports.ListReports)
			pr.Get("/reports/{id}", h.Reports.GetReport)
			pr.Get("/reports/{id}/download", h.Export.DownloadReport)
			pr.Get("/reports/{id}/findings", h.Findings.ListReportFindings)
			pr.Get("/reports/{id}/uploads", h.Uploads.ListReportUploads)

			pr.Get("/findings/{id}", h.Findings.GetFinding)
			pr.Get("/findings/{id}/uploads", h.Uploads.ListFindingUploads)

			pr.Get("/uploads/{id}/content", h.Uploads.DownloadUpload)

			// Writes on an existing entity answer 404 before 403, so the
			// services apply the admin rule themselves.
			pr.Put("/clients/{id}", h.Clients.UpdateClient)
			pr.Delete("/clients/{id}", h.Clients.DeleteClient)
			pr.Put("/reports/{id}", h.Reports.UpdateReport)
			pr.Delete("/reports/{id}", h.Reports.DeleteReport)
			pr.Put("/findings/{id}", h.Findings.UpdateFinding)
			pr.Delete("/findings/{id}", h.Findings.DeleteFinding)
			pr.Delete("/uploads/{id}", h.Uploads.DeleteUpload)

			pr.Group(func(ar chi.Router) {
				ar.Use(h.Auth.RequireAdmin)

				ar.Get("/users", h.Users.ListUsers)
				ar.Patch("/users/{id}/role", h.Users.SetUserRole)

				ar.Post("/clients", h.Clients.CreateClient)

				ar.Post("/reports", h.Reports.CreateReport)

				ar.Get("/findings", h.Findings.ListFindings)
				ar.Post("/findings", h.Findings.CreateFinding)

				ar.Post("/uploads", h.Uploads.CreateUpload)

				ar.Post("/client-access", h.Access.CreateGrant)
				ar.Get("/client-access", h.Access.ListGrants)
				ar.Delete("/client-access/{id}", h.Access.RevokeGrant)

				ar.Get("/audit", h.Audit.ListAudit)
			})
		})
	})
}
