package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	accessDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/access"
	clientDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/client"
	findingDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/finding"
	reportDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/report"
	userDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/user"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore/datastoretest"
	"github.com/frahmantamala/pentest-portal/internal/upload"
	"github.com/frahmantamala/pentest-portal/pkg/logger"
)

const validConfig = `
env: test
http_server:
  port: 9090
  read_header_timeout: 2s
  read_timeout: 10s
database:
  source: postgres://portal@localhost/portal
  max_open_conns: 4
  max_idle_conns: 2
security:
  jwt_secret: 0123456789abcdef0123456789abcdef
  session_ttl: 1h
auth:
  local_login_enabled: true
session:
  driver: memory
storage:
  driver: fs
  base_path: /tmp/uploads
demo:
  role_switch_enabled: true
observability:
  logging:
    level: warn
`

var _ = Describe("loadConfig", func() {
	writeConfig := func(body string) string {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600)).To(Succeed())
		return dir
	}

	It("reads config.yml from the given directory", func() {
		cfg, err := loadConfig(writeConfig(validConfig))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.Port).To(Equal(9090))
		Expect(cfg.Server.ReadTimeout).To(Equal(10 * time.Second))
		Expect(cfg.Security.SessionTTL).To(Equal(time.Hour))
		Expect(cfg.Demo.RoleSwitchEnabled).To(BeTrue())
		Expect(cfg.Observability.Logging.Level).To(Equal("warn"))
	})

	It("lets ENV_ prefixed variables override file values", func() {
		Expect(os.Setenv("ENV_HTTP_SERVER_PORT", "7070")).To(Succeed())
		DeferCleanup(os.Unsetenv, "ENV_HTTP_SERVER_PORT")

		cfg, err := loadConfig(writeConfig(validConfig))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.Port).To(Equal(7070))
	})

	It("rejects a configuration that fails validation", func() {
		_, err := loadConfig(writeConfig(`
security:
  jwt_secret: short
`))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("jwt_secret"))
		Expect(err.Error()).To(ContainSubstring("database config"))
	})

	It("fails when no config file exists", func() {
		_, err := loadConfig(GinkgoT().TempDir())
		Expect(err).To(MatchError(ContainSubstring("error reading config")))
	})
})

var _ = Describe("command helpers", func() {
	It("maps the rollback flag onto a goose direction", func() {
		Expect(migrationCommand(false)).To(Equal("up"))
		Expect(migrationCommand(true)).To(Equal("down"))
	})

	It("prefers positive flag values over config", func() {
		Expect(getIntFlag(8, 4)).To(Equal(8))
		Expect(getIntFlag(0, 4)).To(Equal(4))
	})

	It("resolves the orphan grace period from flag, then config, then default", func() {
		Expect(orphanMinAge(10*time.Minute, 2*time.Hour)).To(Equal(10 * time.Minute))
		Expect(orphanMinAge(0, 2*time.Hour)).To(Equal(2 * time.Hour))
		Expect(orphanMinAge(0, 0)).To(Equal(upload.DefaultOrphanMinAge))
	})

	It("registers every subcommand on the root", func() {
		var names []string
		for _, c := range rootCmd.Commands() {
			names = append(names, c.Name())
		}
		Expect(names).To(ContainElements("server", "migrate", "seed", "worker"))
		Expect(workerCmd.Commands()).To(ContainElement(purgeOrphansCmd))
	})
})

var _ = Describe("seedDemo", func() {
	var (
		db  *gorm.DB
		ctx context.Context
	)

	BeforeEach(func() {
		var err error
		db, err = datastoretest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	AfterEach(func() {
		datastoretest.Close(db)
	})

	count := func(model interface{}) int64 {
		var n int64
		Expect(db.Model(model).Count(&n).Error).NotTo(HaveOccurred())
		return n
	}

	It("creates the demo users, client, report, findings and grant once", func() {
		for i := 0; i < 2; i++ {
			Expect(seedDemo(ctx, db, "s3cret-pass", bcrypt.MinCost, logger.L())).To(Succeed())
		}

		Expect(count(&userDatamodel.User{})).To(Equal(int64(3)))
		Expect(count(&clientDatamodel.Client{})).To(Equal(int64(1)))
		Expect(count(&reportDatamodel.Report{})).To(Equal(int64(1)))
		Expect(count(&findingDatamodel.Finding{})).To(Equal(int64(3)))

		var grants []accessDatamodel.Grant
		Expect(db.Find(&grants).Error).NotTo(HaveOccurred())
		Expect(grants).To(HaveLen(1))
		Expect(grants[0].CanView).To(BeTrue())
		Expect(grants[0].CanDownload).To(BeFalse())

		var clientUser userDatamodel.User
		Expect(db.Where("email = ?", "client@acme.example").First(&clientUser).Error).NotTo(HaveOccurred())
		Expect(grants[0].UserID).To(Equal(clientUser.ID))
		Expect(clientUser.PasswordHash).NotTo(BeNil())
		Expect(bcrypt.CompareHashAndPassword([]byte(*clientUser.PasswordHash), []byte("s3cret-pass"))).To(Succeed())
	})

	It("refuses a short seed password", func() {
		err := seedDemo(ctx, db, "short", bcrypt.MinCost, logger.L())
		Expect(err).To(MatchError(ContainSubstring("at least 8 characters")))
		Expect(count(&userDatamodel.User{})).To(BeZero())
	})

	It("clears every portal table", func() {
		Expect(seedDemo(ctx, db, "s3cret-pass", bcrypt.MinCost, logger.L())).To(Succeed())
		Expect(clearTables(ctx, db)).To(Succeed())

		Expect(count(&userDatamodel.User{})).To(BeZero())
		Expect(count(&reportDatamodel.Report{})).To(BeZero())
		Expect(count(&accessDatamodel.Grant{})).To(BeZero())
	})
})
