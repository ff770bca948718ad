package user_test

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/frahmantamala/pentest-portal/internal"
	userDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/user"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore/datastoretest"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
	"github.com/frahmantamala/pentest-portal/internal/user"
	userPostgres "github.com/frahmantamala/pentest-portal/internal/user/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type capturingPublisher struct {
	events []events.Event
}

func (c *capturingPublisher) Publish(_ context.Context, e events.Event) error {
	c.events = append(c.events, e)
	return nil
}

var _ = Describe("User service", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		repo      *userPostgres.Repository
		publisher *capturingPublisher
		logger    *slog.Logger
		newSvc    func(roleSwitch bool) *user.Service
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = datastoretest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())

		repo = userPostgres.NewRepository(db)
		publisher = &capturingPublisher{}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		newSvc = func(roleSwitch bool) *user.Service {
			return user.NewService(repo, publisher, roleSwitch, logger)
		}

		Expect(db.Create(&userDatamodel.User{ID: "u-client", Email: "client@acme.test", Role: "client"}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.User{ID: "u-admin", Email: "admin@example.com", Role: "admin"}).Error).To(Succeed())
	})

	AfterEach(func() {
		datastoretest.Close(db)
	})

	storedRole := func(id string) string {
		var u userDatamodel.User
		Expect(db.Where("id = ?", id).First(&u).Error).To(Succeed())
		return u.Role
	}

	Context("SwitchOwnRole", func() {
		var caller *internal.Principal

		BeforeEach(func() {
			caller = &internal.Principal{UserID: "u-client", Role: internal.RoleClient}
		})

		It("changes the caller's role when the demo switch is on", func() {
			u, err := newSvc(true).SwitchOwnRole(ctx, caller, "partner")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Role).To(Equal(internal.RolePartner))
			Expect(storedRole("u-client")).To(Equal("partner"))
			Expect(publisher.events).To(HaveLen(1))
			Expect(publisher.events[0].EventType()).To(Equal(events.EventTypeRoleChanged))
		})

		It("rejects superadmin with 400 and keeps the stored role", func() {
			_, err := newSvc(true).SwitchOwnRole(ctx, caller, "superadmin")
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(appErr.Details.(internal.ValidationErrors).Errors[0].Code).To(Equal(string(internal.ErrCodeInvalidRole)))
			Expect(storedRole("u-client")).To(Equal("client"))
			Expect(publisher.events).To(BeEmpty())
		})

		It("rejects an empty role", func() {
			_, err := newSvc(true).SwitchOwnRole(ctx, caller, "")
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("is forbidden while the demo switch is off", func() {
			_, err := newSvc(false).SwitchOwnRole(ctx, caller, "admin")
			Expect(err).To(MatchError(internal.ErrAccessDenied))
			Expect(storedRole("u-client")).To(Equal("client"))
		})
	})

	Context("SetRole", func() {
		It("lets admins change anyone even with the demo switch off", func() {
			admin := &internal.Principal{UserID: "u-admin", Role: internal.RoleAdmin}
			u, err := newSvc(false).SetRole(ctx, admin, "u-client", "partner")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Role).To(Equal(internal.RolePartner))
		})

		It("refuses non-admins", func() {
			p := &internal.Principal{UserID: "u-client", Role: internal.RoleClient}
			_, err := newSvc(true).SetRole(ctx, p, "u-admin", "client")
			Expect(err).To(MatchError(internal.ErrAccessDenied))
			Expect(storedRole("u-admin")).To(Equal("admin"))
		})

		It("returns 404 for unknown users", func() {
			admin := &internal.Principal{UserID: "u-admin", Role: internal.RoleAdmin}
			_, err := newSvc(false).SetRole(ctx, admin, "ghost", "client")
			Expect(err).To(MatchError(internal.ErrUserNotFound))
		})
	})

	Context("UpsertFromProfile", func() {
		It("creates new users as clients and keeps roles on later logins", func() {
			svc := newSvc(false)
			u, err := svc.UpsertFromProfile(ctx, user.Profile{ID: "oidc-1", Email: "New@Example.com", FirstName: "Ada"})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Role).To(Equal(internal.RoleClient))
			Expect(u.Email).To(Equal("new@example.com"))

			Expect(repo.UpdateRole(ctx, "oidc-1", "partner")).To(BeTrue())

			u, err = svc.UpsertFromProfile(ctx, user.Profile{ID: "oidc-1", Email: "new@example.com", FirstName: "Ada", LastName: "L"})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Role).To(Equal(internal.RolePartner))
			Expect(u.LastName).To(Equal("L"))
		})

		It("requires an id and a valid email", func() {
			_, err := newSvc(false).UpsertFromProfile(ctx, user.Profile{Email: "not-an-email"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details.(internal.ValidationErrors).Errors).To(HaveLen(2))
		})
	})

	It("lists users for admins only", func() {
		svc := newSvc(false)
		users, err := svc.List(ctx, &internal.Principal{UserID: "u-admin", Role: internal.RoleAdmin})
		Expect(err).NotTo(HaveOccurred())
		Expect(users).To(HaveLen(2))

		_, err = svc.List(ctx, &internal.Principal{UserID: "u-client", Role: internal.RolePartner})
		Expect(err).To(MatchError(internal.ErrAccessDenied))
	})

	Context("CreateLocal", func() {
		It("stores a lower-cased password user", func() {
			svc := newSvc(false)
			u := &user.User{ID: "u-new", Email: " New@Portal.Test ", Role: internal.RolePartner, PasswordHash: "hash"}
			Expect(svc.CreateLocal(ctx, u)).To(Succeed())

			got, err := svc.GetByEmail(ctx, "new@portal.test")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())
			Expect(got.ID).To(Equal("u-new"))
			Expect(got.HasPassword()).To(BeTrue())
		})

		It("rejects an email that is already registered", func() {
			err := newSvc(false).CreateLocal(ctx, &user.User{ID: "u-dup", Email: "ADMIN@example.com", Role: internal.RoleAdmin})
			Expect(err).To(MatchError(internal.ErrEmailTaken))

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusConflict))
		})

		It("rejects unknown roles", func() {
			err := newSvc(false).CreateLocal(ctx, &user.User{ID: "u-x", Email: "x@portal.test", Role: "superuser"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
