package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/access"
	accessPostgres "github.com/frahmantamala/pentest-portal/internal/access/postgres"
	"github.com/frahmantamala/pentest-portal/internal/audit"
	auditPostgres "github.com/frahmantamala/pentest-portal/internal/audit/postgres"
	auditDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/audit"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore/datastoretest"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
	"github.com/frahmantamala/pentest-portal/internal/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type failingWriter struct{}

func (failingWriter) Append(ctx context.Context, entry *auditDatamodel.Entry) error {
	return errors.New("disk full")
}

var _ = Describe("Audit trail", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		logger  *slog.Logger
		bus     *events.EventBus
		service *audit.Service
		admin   *internal.Principal
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = datastoretest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())

		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		repo := auditPostgres.NewRepository(db)
		bus = events.NewEventBus(logger)
		audit.NewSubscriber(repo, logger).RegisterEventHandlers(bus)
		service = audit.NewService(repo, access.NewGate(accessPostgres.NewRepository(db), logger), logger)
		admin = &internal.Principal{UserID: "admin", Role: internal.RoleAdmin}
	})

	AfterEach(func() {
		datastoretest.Close(db)
	})

	It("persists auditable events and lists them newest first", func() {
		Expect(bus.PublishSync(ctx, events.NewDomainEvent(events.EventTypeGrantUpserted, "admin", "grant", "7",
			map[string]interface{}{"user_id": "client-1", "report_id": 3}))).To(Succeed())
		time.Sleep(5 * time.Millisecond)
		Expect(bus.PublishSync(ctx, events.NewDomainEvent(events.EventTypeReportDeleted, "admin", "report", "3", nil))).To(Succeed())

		entries, err := service.Recent(ctx, admin, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Action).To(Equal(events.EventTypeReportDeleted))
		Expect(entries[1].Action).To(Equal(events.EventTypeGrantUpserted))
		Expect(entries[1].TargetID).To(Equal("7"))
		Expect(entries[1].Details).To(HaveKeyWithValue("user_id", "client-1"))
	})

	It("does not record upload purges", func() {
		Expect(bus.PublishSync(ctx, events.NewUploadsRemovedEvent([]string{"a.png"}))).To(Succeed())

		entries, err := service.Recent(ctx, admin, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("caps the limit", func() {
		for i := 0; i < 3; i++ {
			Expect(bus.PublishSync(ctx, events.NewDomainEvent(events.EventTypeRoleChanged, "u1", "user", "u1", nil))).To(Succeed())
		}
		entries, err := service.Recent(ctx, admin, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
	})

	It("is admin-only", func() {
		_, err := service.Recent(ctx, &internal.Principal{UserID: "p1", Role: internal.RolePartner}, 10)
		Expect(err).To(MatchError(internal.ErrAccessDenied))
	})

	It("surfaces writer failures to the bus", func() {
		failing := events.NewEventBus(logger)
		audit.NewSubscriber(failingWriter{}, logger).RegisterEventHandlers(failing)

		err := failing.PublishSync(ctx, events.NewDomainEvent(events.EventTypeGrantRevoked, "admin", "grant", "1", nil))
		Expect(err).To(MatchError(ContainSubstring("disk full")))
	})

	Describe("GET /api/audit", func() {
		serve := func(p *internal.Principal, target string) *httptest.ResponseRecorder {
			handler := audit.NewHandler(transport.NewBaseHandler(logger), service)
			req := httptest.NewRequest(http.MethodGet, target, nil)
			req = req.WithContext(internal.ContextWithPrincipal(req.Context(), p))
			w := httptest.NewRecorder()
			handler.ListAudit(w, req)
			return w
		}

		It("returns entries to admins", func() {
			Expect(bus.PublishSync(ctx, events.NewDomainEvent(events.EventTypeClientDeleted, "admin", "client", "2", nil))).To(Succeed())

			w := serve(admin, "/api/audit?limit=5")
			Expect(w.Code).To(Equal(http.StatusOK))
			var body []map[string]interface{}
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveLen(1))
			Expect(body[0]["action"]).To(Equal(events.EventTypeClientDeleted))
		})

		It("rejects a malformed limit", func() {
			Expect(serve(admin, "/api/audit?limit=abc").Code).To(Equal(http.StatusBadRequest))
		})

		It("forbids clients", func() {
			Expect(serve(&internal.Principal{UserID: "c1", Role: internal.RoleClient}, "/api/audit").Code).To(Equal(http.StatusForbidden))
		})
	})
})
