package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/access"
	accessPostgres "github.com/frahmantamala/pentest-portal/internal/access/postgres"
	"github.com/frahmantamala/pentest-portal/internal/auth"
	"github.com/frahmantamala/pentest-portal/internal/client"
	clientPostgres "github.com/frahmantamala/pentest-portal/internal/client/postgres"
	"github.com/frahmantamala/pentest-portal/internal/core/common/validation"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
	"github.com/frahmantamala/pentest-portal/internal/finding"
	findingPostgres "github.com/frahmantamala/pentest-portal/internal/finding/postgres"
	"github.com/frahmantamala/pentest-portal/internal/report"
	reportPostgres "github.com/frahmantamala/pentest-portal/internal/report/postgres"
	"github.com/frahmantamala/pentest-portal/internal/user"
	userPostgres "github.com/frahmantamala/pentest-portal/internal/user/postgres"
	"github.com/frahmantamala/pentest-portal/pkg/logger"
)

const demoClientName = "Acme Corp"

var clearData bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with demo users, a client, a report with findings and a client grant.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := setup()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		lg := logger.L()

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to init db: %v\n", err)
			os.Exit(1)
		}
		defer sqlDB.Close()
		db, err := openGorm(sqlDB.DB, cfg.Env)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to init gorm: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		if clearData {
			if err := clearTables(ctx, db); err != nil {
				fmt.Fprintf(os.Stderr, "failed to clear data: %v\n", err)
				os.Exit(1)
			}
			lg.Info("cleared existing portal data")
		}

		password := os.Getenv("SEED_PASSWORD")
		if password == "" {
			password = "password"
		}
		if err := seedDemo(ctx, db, password, cfg.Security.BCryptCost, lg); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
	},
}

type demoUser struct {
	Email     string
	FirstName string
	LastName  string
	Role      internal.Role
}

var demoUsers = []demoUser{
	{Email: "admin@portal.local", FirstName: "Ada", LastName: "Admin", Role: internal.RoleAdmin},
	{Email: "partner@portal.local", FirstName: "Pat", LastName: "Partner", Role: internal.RolePartner},
	{Email: "client@acme.example", FirstName: "Casey", LastName: "Client", Role: internal.RoleClient},
}

// seedDemo is idempotent: users are matched by email and the demo client by
// name, so running it twice leaves a single copy of everything.
func seedDemo(ctx context.Context, db *gorm.DB, password string, cost int, lg *slog.Logger) error {
	v := validation.NewValidator()
	v.Field("SEED_PASSWORD", password).Required().MinLength(8)
	if err := v.Validate(); err != nil {
		return err
	}

	bus := events.NewEventBus(lg)

	users := user.NewService(userPostgres.NewRepository(db), bus, false, lg)
	seeded := make(map[internal.Role]*user.User, len(demoUsers))
	for _, du := range demoUsers {
		u, err := ensureUser(ctx, users, du, password, cost)
		if err != nil {
			return err
		}
		seeded[du.Role] = u
		lg.Info("seeded user", "email", u.Email, "role", u.Role)
	}

	admin := seeded[internal.RoleAdmin].Principal("seed")
	accessRepo := accessPostgres.NewRepository(db)
	gate := access.NewGate(accessRepo, lg)
	tx := datastore.NewGormTransactor(db)

	clients := client.NewService(clientPostgres.NewRepository(db), gate, tx, bus, lg)
	existing, err := clients.List(ctx, admin)
	if err != nil {
		return err
	}
	for _, c := range existing {
		if c.Name == demoClientName {
			lg.Info("demo client already present; skipping report data", "client_id", c.ID)
			return nil
		}
	}

	reports := report.NewService(reportPostgres.NewRepository(db), accessRepo, gate, tx, bus, lg)
	findings := finding.NewService(findingPostgres.NewRepository(db), gate, tx, bus, lg)

	return tx.WithinTransaction(ctx, func(ctx context.Context) error {
		acme, err := clients.Create(ctx, admin, client.ClientRequest{
			Name:         demoClientName,
			ContactEmail: "security@acme.example",
			ContactPhone: "+1 555 0100",
			Address:      "1 Rocket Road, Desert City",
		})
		if err != nil {
			return err
		}

		yes, no := true, false
		due := time.Now().UTC().AddDate(0, 0, 14).Truncate(24 * time.Hour)
		rep, err := reports.Create(ctx, admin, report.CreateReportRequest{
			Title:            "External Pentest Q3",
			ClientID:         &acme.ID,
			AssessmentType:   "External Network",
			Status:           report.StatusInProgress,
			Severity:         "high",
			ExecutiveSummary: "The external perimeter exposes two services with exploitable weaknesses.",
			DueDate:          &due,
			Grants: []report.InitialGrant{
				{UserID: seeded[internal.RoleClient].ID, CanView: &yes, CanDownload: &no},
			},
		})
		if err != nil {
			return err
		}

		for _, req := range demoFindings(rep.ID) {
			if _, err := findings.Create(ctx, admin, req); err != nil {
				return err
			}
		}

		lg.Info("seeded demo report", "client_id", acme.ID, "report_id", rep.ID)
		return nil
	})
}

func ensureUser(ctx context.Context, users *user.Service, du demoUser, password string, cost int) (*user.User, error) {
	existing, err := users.GetByEmail(ctx, du.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	hash, err := auth.HashPassword(password, cost)
	if err != nil {
		return nil, fmt.Errorf("hash password for %s: %w", du.Email, err)
	}
	u := &user.User{
		ID:           uuid.NewString(),
		Email:        du.Email,
		FirstName:    du.FirstName,
		LastName:     du.LastName,
		Role:         du.Role,
		PasswordHash: hash,
	}
	if err := users.CreateLocal(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func demoFindings(reportID int64) []finding.CreateFindingRequest {
	score := func(v float64) *float64 { return &v }
	return []finding.CreateFindingRequest{
		{
			ReportID:       reportID,
			Title:          "SQL injection in login form",
			Description:    "The username parameter is concatenated into a SQL query.",
			Severity:       "critical",
			CVSSScore:      score(9.8),
			Impact:         "Full read access to the customer database.",
			Recommendation: "Use parameterised queries for all database access.",
		},
		{
			ReportID:       reportID,
			Title:          "Outdated TLS configuration",
			Description:    "The VPN gateway accepts TLS 1.0 and weak ciphers.",
			Severity:       "medium",
			CVSSScore:      score(5.3),
			Impact:         "Traffic may be downgraded and decrypted by an on-path attacker.",
			Recommendation: "Disable TLS 1.0/1.1 and restrict cipher suites.",
		},
		{
			ReportID:       reportID,
			Title:          "Verbose server banner",
			Description:    "The web server discloses its exact version in response headers.",
			Severity:       "info",
			Recommendation: "Suppress version information in the Server header.",
		},
	}
}

// clearTables removes portal data children first so foreign keys hold.
func clearTables(ctx context.Context, db *gorm.DB) error {
	tables := []string{"uploads", "access_grants", "findings", "reports", "clients", "audit_log", "users"}
	return datastore.NewGormTransactor(db).WithinTransaction(ctx, func(ctx context.Context) error {
		conn := datastore.Conn(ctx, db)
		for _, t := range tables {
			if err := conn.Exec("DELETE FROM " + t).Error; err != nil {
				return fmt.Errorf("clear %s: %w", t, err)
			}
		}
		return nil
	})
}

func init() {
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "delete existing portal data before seeding")
}
