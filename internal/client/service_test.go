package client_test

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/access"
	accessPostgres "github.com/frahmantamala/pentest-portal/internal/access/postgres"
	"github.com/frahmantamala/pentest-portal/internal/client"
	clientPostgres "github.com/frahmantamala/pentest-portal/internal/client/postgres"
	accessDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/access"
	reportDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/report"
	userDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/user"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore/datastoretest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

var _ = Describe("Client service", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		service *client.Service
		admin   *internal.Principal
		viewer  *internal.Principal
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = datastoretest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		gate := access.NewGate(accessPostgres.NewRepository(db), logger)
		service = client.NewService(clientPostgres.NewRepository(db), gate, datastore.NewGormTransactor(db), nil, logger)

		admin = &internal.Principal{UserID: "admin", Role: internal.RoleAdmin}
		viewer = &internal.Principal{UserID: "viewer", Role: internal.RoleClient}
		Expect(db.Create(&userDatamodel.User{ID: "admin", Email: "a@example.com", Role: "admin"}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.User{ID: "viewer", Email: "v@acme.test", Role: "client"}).Error).To(Succeed())
	})

	AfterEach(func() {
		datastoretest.Close(db)
	})

	createReport := func(clientID int64) int64 {
		r := &reportDatamodel.Report{Title: "R", ClientID: &clientID, AssessmentType: "web", CreatedBy: "admin"}
		Expect(db.Create(r).Error).To(Succeed())
		return r.ID
	}

	grant := func(userID string, reportID, clientID int64) {
		Expect(db.Create(&accessDatamodel.Grant{UserID: userID, ReportID: reportID, ClientID: &clientID, CanView: true}).Error).To(Succeed())
	}

	It("lets admins create, update and read clients", func() {
		c, err := service.Create(ctx, admin, client.ClientRequest{Name: "  Acme Corp ", ContactEmail: "sec@acme.test"})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name).To(Equal("Acme Corp"))

		c, err = service.Update(ctx, admin, c.ID, client.UpdateClientRequest{Name: strPtr("Acme Corporation")})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name).To(Equal("Acme Corporation"))

		got, err := service.Get(ctx, admin, c.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ContactEmail).To(Equal("sec@acme.test"))
	})

	It("updates only the fields present", func() {
		c, err := service.Create(ctx, admin, client.ClientRequest{Name: "Acme", ContactEmail: "sec@acme.test", ContactPhone: "555", Address: "1 Main St"})
		Expect(err).NotTo(HaveOccurred())

		c, err = service.Update(ctx, admin, c.ID, client.UpdateClientRequest{ContactPhone: strPtr(" 777 ")})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name).To(Equal("Acme"))
		Expect(c.ContactEmail).To(Equal("sec@acme.test"))
		Expect(c.ContactPhone).To(Equal("777"))
		Expect(c.Address).To(Equal("1 Main St"))

		_, err = service.Update(ctx, admin, c.ID, client.UpdateClientRequest{Name: strPtr("  ")})
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(appErr.Details.(internal.ValidationErrors).Errors[0].Field).To(Equal("name"))
	})

	It("validates input", func() {
		_, err := service.Create(ctx, admin, client.ClientRequest{ContactEmail: "nope"})
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(appErr.Details.(internal.ValidationErrors).Errors).To(HaveLen(2))
	})

	It("forbids writes by non-admins", func() {
		_, err := service.Create(ctx, viewer, client.ClientRequest{Name: "Evil"})
		Expect(err).To(MatchError(internal.ErrAccessDenied))

		c, err := service.Create(ctx, admin, client.ClientRequest{Name: "Acme"})
		Expect(err).NotTo(HaveOccurred())
		Expect(service.Delete(ctx, viewer, c.ID)).To(MatchError(internal.ErrAccessDenied))
	})

	It("reports missing clients as 404 before checking access", func() {
		_, err := service.Update(ctx, viewer, 999, client.UpdateClientRequest{Name: strPtr("x")})
		Expect(err).To(MatchError(internal.ErrClientNotFound))
		_, err = service.Get(ctx, viewer, 999)
		Expect(err).To(MatchError(internal.ErrClientNotFound))
	})

	It("shows non-admins only clients of reports they can view", func() {
		acme, err := service.Create(ctx, admin, client.ClientRequest{Name: "Acme"})
		Expect(err).NotTo(HaveOccurred())
		globex, err := service.Create(ctx, admin, client.ClientRequest{Name: "Globex"})
		Expect(err).NotTo(HaveOccurred())

		r1 := createReport(acme.ID)
		r2 := createReport(acme.ID)
		createReport(globex.ID)
		grant("viewer", r1, acme.ID)
		grant("viewer", r2, acme.ID)

		visible, err := service.List(ctx, viewer)
		Expect(err).NotTo(HaveOccurred())
		Expect(visible).To(HaveLen(1))
		Expect(visible[0].Name).To(Equal("Acme"))

		_, err = service.Get(ctx, viewer, globex.ID)
		Expect(err).To(MatchError(internal.ErrAccessDenied))

		all, err := service.List(ctx, admin)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
	})

	It("detaches reports and revokes grants on delete", func() {
		acme, err := service.Create(ctx, admin, client.ClientRequest{Name: "Acme"})
		Expect(err).NotTo(HaveOccurred())
		reportID := createReport(acme.ID)
		grant("viewer", reportID, acme.ID)

		Expect(service.Delete(ctx, admin, acme.ID)).To(Succeed())

		var report reportDatamodel.Report
		Expect(db.First(&report, reportID).Error).To(Succeed())
		Expect(report.ClientID).To(BeNil())

		var grants int64
		Expect(db.Model(&accessDatamodel.Grant{}).Count(&grants).Error).To(Succeed())
		Expect(grants).To(BeZero())

		_, err = service.Get(ctx, admin, acme.ID)
		Expect(err).To(MatchError(internal.ErrClientNotFound))
	})

	It("revokes grants by the deleted client's reports, not by the grant's own column", func() {
		acme, err := service.Create(ctx, admin, client.ClientRequest{Name: "Acme"})
		Expect(err).NotTo(HaveOccurred())
		other, err := service.Create(ctx, admin, client.ClientRequest{Name: "Other"})
		Expect(err).NotTo(HaveOccurred())
		acmeReport := createReport(acme.ID)
		otherReport := createReport(other.ID)

		// A row whose client column disagrees with its report.
		grant("viewer", acmeReport, other.ID)

		Expect(service.Delete(ctx, admin, other.ID)).To(Succeed())
		var kept int64
		Expect(db.Model(&accessDatamodel.Grant{}).Where("report_id = ?", acmeReport).Count(&kept).Error).To(Succeed())
		Expect(kept).To(Equal(int64(1)))

		grant("viewer", otherReport, acme.ID)
		Expect(db.Model(&reportDatamodel.Report{}).Where("id = ?", otherReport).Update("client_id", acme.ID).Error).To(Succeed())
		Expect(service.Delete(ctx, admin, acme.ID)).To(Succeed())
		var left int64
		Expect(db.Model(&accessDatamodel.Grant{}).Count(&left).Error).To(Succeed())
		Expect(left).To(BeZero())
	})
})
