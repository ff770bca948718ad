package report_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/access"
	accessPostgres "github.com/frahmantamala/pentest-portal/internal/access/postgres"
	accessDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/access"
	clientDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/client"
	findingDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/finding"
	reportDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/report"
	uploadDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/upload"
	userDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/user"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore/datastoretest"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
	"github.com/frahmantamala/pentest-portal/internal/report"
	reportPostgres "github.com/frahmantamala/pentest-portal/internal/report/postgres"
	"github.com/frahmantamala/pentest-portal/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) find(eventType string) events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.EventType() == eventType {
			return e
		}
	}
	return nil
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
func int64Ptr(v int64) *int64 { return &v }

var _ = Describe("Report service", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		service   *report.Service
		publisher *recordingPublisher
		admin     *internal.Principal
		acmeUser  *internal.Principal
		partner   *internal.Principal
		acmeID    int64
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = datastoretest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		grants := accessPostgres.NewRepository(db)
		publisher = &recordingPublisher{}
		service = report.NewService(reportPostgres.NewRepository(db), grants, access.NewGate(grants, logger),
			datastore.NewGormTransactor(db), publisher, logger)

		admin = &internal.Principal{UserID: "admin", Role: internal.RoleAdmin}
		acmeUser = &internal.Principal{UserID: "acme-user", Role: internal.RoleClient}
		partner = &internal.Principal{UserID: "partner", Role: internal.RolePartner}
		for _, u := range []*userDatamodel.User{
			{ID: "admin", Email: "admin@example.com", FirstName: "Ada", Role: "admin"},
			{ID: "acme-user", Email: "sec@acme.test", Role: "client"},
			{ID: "partner", Email: "p@partner.test", Role: "partner"},
		} {
			Expect(db.Create(u).Error).To(Succeed())
		}
		acme := &clientDatamodel.Client{Name: "Acme"}
		Expect(db.Create(acme).Error).To(Succeed())
		acmeID = acme.ID
	})

	AfterEach(func() {
		datastoretest.Close(db)
	})

	It("creates a report with its initial grants and shows it only to the grantee", func() {
		created, err := service.Create(ctx, admin, report.CreateReportRequest{
			Title:          "Acme external pentest",
			ClientID:       &acmeID,
			AssessmentType: "external",
			Grants:         []report.InitialGrant{{UserID: "acme-user", CanDownload: boolPtr(true)}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(created.Status).To(Equal(report.StatusDraft))
		Expect(created.Severity).To(Equal("medium"))
		Expect(created.Client.Name).To(Equal("Acme"))
		Expect(created.Creator.FirstName).To(Equal("Ada"))

		got, err := service.Get(ctx, acmeUser, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Title).To(Equal("Acme external pentest"))

		_, err = service.Get(ctx, partner, created.ID)
		Expect(err).To(MatchError(internal.ErrAccessDenied))

		visible, err := service.List(ctx, acmeUser, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(visible).To(HaveLen(1))

		none, err := service.List(ctx, partner, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(none).To(BeEmpty())
	})

	It("rolls the report back when an initial grant names an unknown user", func() {
		_, err := service.Create(ctx, admin, report.CreateReportRequest{
			Title:          "Doomed",
			AssessmentType: "web",
			Grants:         []report.InitialGrant{{UserID: "ghost"}},
		})
		Expect(err).To(MatchError(internal.ErrUserNotFound))

		var n int64
		Expect(db.Model(&reportDatamodel.Report{}).Count(&n).Error).To(Succeed())
		Expect(n).To(BeZero())
	})

	It("lists newest first, filters by client and never duplicates rows", func() {
		first, err := service.Create(ctx, admin, report.CreateReportRequest{Title: "First", AssessmentType: "web", ClientID: &acmeID})
		Expect(err).NotTo(HaveOccurred())
		second, err := service.Create(ctx, admin, report.CreateReportRequest{Title: "Second", AssessmentType: "web"})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Model(&reportDatamodel.Report{}).Where("id = ?", first.ID).
			Update("created_at", second.CreatedAt.Add(-time.Second)).Error).To(Succeed())

		all, err := service.List(ctx, admin, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
		Expect(all[0].ID).To(Equal(second.ID))

		byClient, err := service.List(ctx, admin, &acmeID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byClient).To(HaveLen(1))
		Expect(byClient[0].ID).To(Equal(first.ID))

		for _, id := range []int64{first.ID, second.ID} {
			Expect(db.Create(&accessDatamodel.Grant{UserID: "partner", ReportID: id, CanView: true}).Error).To(Succeed())
		}
		mine, err := service.List(ctx, partner, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(mine).To(HaveLen(2))
	})

	It("hides reports whose grant has view switched off", func() {
		r, err := service.Create(ctx, admin, report.CreateReportRequest{Title: "R", AssessmentType: "web",
			Grants: []report.InitialGrant{{UserID: "acme-user", CanView: boolPtr(false), CanDownload: boolPtr(true)}}})
		Expect(err).NotTo(HaveOccurred())

		list, err := service.List(ctx, acmeUser, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(BeEmpty())

		_, err = service.Get(ctx, acmeUser, r.ID)
		Expect(err).To(MatchError(internal.ErrAccessDenied))
	})

	It("applies partial updates and validates enums", func() {
		r, err := service.Create(ctx, admin, report.CreateReportRequest{Title: "R", AssessmentType: "web", ExecutiveSummary: "keep"})
		Expect(err).NotTo(HaveOccurred())

		updated, err := service.Update(ctx, admin, r.ID, report.UpdateReportRequest{Status: strPtr(report.StatusInProgress)})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Status).To(Equal(report.StatusInProgress))
		Expect(updated.ExecutiveSummary).To(Equal("keep"))

		_, err = service.Update(ctx, admin, r.ID, report.UpdateReportRequest{Severity: strPtr("catastrophic")})
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))

		_, err = service.Update(ctx, admin, r.ID, report.UpdateReportRequest{ClientID: int64Ptr(424242)})
		Expect(err).To(MatchError(internal.ErrClientNotFound))
	})

	It("moves grants along when the report changes client", func() {
		r, err := service.Create(ctx, admin, report.CreateReportRequest{Title: "R", AssessmentType: "web", ClientID: &acmeID,
			Grants: []report.InitialGrant{{UserID: "acme-user"}}})
		Expect(err).NotTo(HaveOccurred())

		other := &clientDatamodel.Client{Name: "Other"}
		Expect(db.Create(other).Error).To(Succeed())
		_, err = service.Update(ctx, admin, r.ID, report.UpdateReportRequest{ClientID: &other.ID})
		Expect(err).NotTo(HaveOccurred())

		var grant accessDatamodel.Grant
		Expect(db.Where("report_id = ?", r.ID).First(&grant).Error).To(Succeed())
		Expect(grant.ClientID).NotTo(BeNil())
		Expect(*grant.ClientID).To(Equal(other.ID))
	})

	It("detaches the client on an explicit null and keeps it when the key is absent", func() {
		r, err := service.Create(ctx, admin, report.CreateReportRequest{Title: "R", AssessmentType: "web", ClientID: &acmeID,
			Grants: []report.InitialGrant{{UserID: "acme-user"}}})
		Expect(err).NotTo(HaveOccurred())

		var keep report.UpdateReportRequest
		Expect(json.Unmarshal([]byte(`{"title":"Renamed"}`), &keep)).To(Succeed())
		Expect(keep.ClientIDSet).To(BeFalse())
		updated, err := service.Update(ctx, admin, r.ID, keep)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.ClientID).NotTo(BeNil())
		Expect(*updated.ClientID).To(Equal(acmeID))

		var detach report.UpdateReportRequest
		Expect(json.Unmarshal([]byte(`{"clientId":null}`), &detach)).To(Succeed())
		Expect(detach.ClientIDSet).To(BeTrue())
		updated, err = service.Update(ctx, admin, r.ID, detach)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.ClientID).To(BeNil())
		Expect(updated.Title).To(Equal("Renamed"))

		var grant accessDatamodel.Grant
		Expect(db.Where("report_id = ?", r.ID).First(&grant).Error).To(Succeed())
		Expect(grant.ClientID).To(BeNil())
	})

	It("checks existence before access on every report operation", func() {
		_, err := service.Get(ctx, partner, 999)
		Expect(err).To(MatchError(internal.ErrReportNotFound))
		_, err = service.Update(ctx, partner, 999, report.UpdateReportRequest{})
		Expect(err).To(MatchError(internal.ErrReportNotFound))
		Expect(service.Delete(ctx, partner, 999)).To(MatchError(internal.ErrReportNotFound))
	})

	It("forbids writes by grantees", func() {
		r, err := service.Create(ctx, admin, report.CreateReportRequest{Title: "R", AssessmentType: "web",
			Grants: []report.InitialGrant{{UserID: "acme-user"}}})
		Expect(err).NotTo(HaveOccurred())

		_, err = service.Create(ctx, acmeUser, report.CreateReportRequest{Title: "Mine", AssessmentType: "web"})
		Expect(err).To(MatchError(internal.ErrAccessDenied))
		_, err = service.Update(ctx, acmeUser, r.ID, report.UpdateReportRequest{Title: strPtr("Changed")})
		Expect(err).To(MatchError(internal.ErrAccessDenied))
		Expect(service.Delete(ctx, acmeUser, r.ID)).To(MatchError(internal.ErrAccessDenied))
	})

	It("cascades deletes to findings, uploads and grants", func() {
		r, err := service.Create(ctx, admin, report.CreateReportRequest{Title: "R", AssessmentType: "web",
			Grants: []report.InitialGrant{{UserID: "acme-user"}}})
		Expect(err).NotTo(HaveOccurred())

		f := &findingDatamodel.Finding{ReportID: r.ID, Title: "SQLi", Severity: "critical"}
		Expect(db.Create(f).Error).To(Succeed())
		Expect(db.Create(&uploadDatamodel.Upload{Filename: "rep.pdf", OriginalName: "a.pdf", MimeType: "application/pdf", Path: "p", ReportID: &r.ID, UploadedBy: "admin"}).Error).To(Succeed())
		Expect(db.Create(&uploadDatamodel.Upload{Filename: "shot.png", OriginalName: "b.png", MimeType: "image/png", Path: "p", FindingID: &f.ID, UploadedBy: "admin"}).Error).To(Succeed())

		Expect(service.Delete(ctx, admin, r.ID)).To(Succeed())

		for _, model := range []interface{}{&findingDatamodel.Finding{}, &uploadDatamodel.Upload{}, &accessDatamodel.Grant{}, &reportDatamodel.Report{}} {
			var n int64
			Expect(db.Model(model).Count(&n).Error).To(Succeed())
			Expect(n).To(BeZero())
		}

		removed := publisher.find(events.EventTypeUploadsRemoved)
		Expect(removed).NotTo(BeNil())
		Expect(removed.(*events.UploadsRemovedEvent).Keys).To(ConsistOf("rep.pdf", "shot.png"))
		Expect(publisher.find(events.EventTypeReportDeleted)).NotTo(BeNil())
	})

	Context("Handler", func() {
		var router chi.Router

		BeforeEach(func() {
			handler := report.NewHandler(transport.NewBaseHandler(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))), service)
			router = chi.NewRouter()
			router.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					p := &internal.Principal{UserID: r.Header.Get("X-Test-User"), Role: internal.Role(r.Header.Get("X-Test-Role"))}
					next.ServeHTTP(w, r.WithContext(internal.ContextWithPrincipal(r.Context(), p)))
				})
			})
			router.Get("/api/reports", handler.ListReports)
			router.Post("/api/reports", handler.CreateReport)
			router.Get("/api/reports/{id}", handler.GetReport)
			router.Put("/api/reports/{id}", handler.UpdateReport)
			router.Delete("/api/reports/{id}", handler.DeleteReport)
		})

		do := func(method, path, body string, p *internal.Principal) *httptest.ResponseRecorder {
			req := httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Test-User", p.UserID)
			req.Header.Set("X-Test-Role", string(p.Role))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		It("maps the error taxonomy onto status codes", func() {
			w := do(http.MethodPost, "/api/reports", `{"title":"Acme","assessmentType":"web","grants":[{"userId":"acme-user"}]}`, admin)
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(w.Body.String()).To(ContainSubstring(`"status":"draft"`))

			Expect(do(http.MethodGet, "/api/reports/1", "", acmeUser).Code).To(Equal(http.StatusOK))
			Expect(do(http.MethodGet, "/api/reports/1", "", partner).Code).To(Equal(http.StatusForbidden))
			Expect(do(http.MethodGet, "/api/reports/77", "", partner).Code).To(Equal(http.StatusNotFound))
			Expect(do(http.MethodGet, "/api/reports?clientId=x", "", admin).Code).To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodPut, "/api/reports/1", `{"status":"shipped"}`, admin).Code).To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodPut, "/api/reports/1", `{"title":"x"}`, acmeUser).Code).To(Equal(http.StatusForbidden))
			Expect(do(http.MethodPut, "/api/reports/1", `{"clientId":null}`, admin).Code).To(Equal(http.StatusOK))
			Expect(do(http.MethodDelete, "/api/reports/1", "", admin).Code).To(Equal(http.StatusNoContent))
		})
	})
})
