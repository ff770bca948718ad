package auth_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/auth"
	"github.com/frahmantamala/pentest-portal/internal/auth/session"
	userDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/user"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore/datastoretest"
	"github.com/frahmantamala/pentest-portal/internal/transport"
	"github.com/frahmantamala/pentest-portal/internal/user"
	userPostgres "github.com/frahmantamala/pentest-portal/internal/user/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeIdP stands in for the OIDC provider.
type fakeIdP struct {
	identity *auth.Identity
	fail     bool
}

func (f *fakeIdP) AuthCodeURL(state string) string {
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeIdP) Exchange(_ context.Context, code string) (*auth.Identity, error) {
	if f.fail || code != "good-code" {
		return nil, errors.New("invalid_grant")
	}
	return f.identity, nil
}

var _ = Describe("Auth service", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		users    *user.Service
		tokens   *auth.JWTTokenGenerator
		sessions *session.MemoryStore
		idp      *fakeIdP
		svc      *auth.Service
		logger   *slog.Logger
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = datastoretest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())

		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		users = user.NewService(userPostgres.NewRepository(db), nil, true, logger)
		tokens = auth.NewJWTTokenGenerator(testSecret, time.Hour)
		sessions = session.NewMemoryStore(100, time.Hour)
		idp = &fakeIdP{identity: &auth.Identity{Subject: "oidc|42", Email: "pat@partner.test", FirstName: "Pat"}}
		svc = auth.NewService(users, tokens, sessions, idp, auth.Options{LocalLoginEnabled: true, BCryptCost: bcrypt.MinCost}, logger)

		hash, err := auth.HashPassword("s3cret-pass", bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Create(&userDatamodel.User{ID: "u-admin", Email: "admin@example.com", Role: "admin", PasswordHash: &hash}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.User{ID: "u-sso", Email: "sso@example.com", Role: "client"}).Error).To(Succeed())
	})

	AfterEach(func() {
		datastoretest.Close(db)
	})

	Context("local login", func() {
		It("issues a token that authenticates as the user", func() {
			res, err := svc.LocalLogin(ctx, auth.LoginDTO{Email: "Admin@Example.com", Password: "s3cret-pass"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Token).NotTo(BeEmpty())
			Expect(res.User.ID).To(Equal("u-admin"))

			p, err := svc.Authenticate(ctx, res.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.UserID).To(Equal("u-admin"))
			Expect(p.Role).To(Equal(internal.RoleAdmin))
			Expect(p.SessionID).NotTo(BeEmpty())
		})

		It("rejects wrong passwords and password-less users alike", func() {
			_, err := svc.LocalLogin(ctx, auth.LoginDTO{Email: "admin@example.com", Password: "nope"})
			Expect(err).To(MatchError(internal.ErrInvalidCredentials))

			_, err = svc.LocalLogin(ctx, auth.LoginDTO{Email: "sso@example.com", Password: "anything"})
			Expect(err).To(MatchError(internal.ErrInvalidCredentials))

			_, err = svc.LocalLogin(ctx, auth.LoginDTO{Email: "ghost@example.com", Password: "anything"})
			Expect(err).To(MatchError(internal.ErrInvalidCredentials))
		})

		It("validates the body", func() {
			_, err := svc.LocalLogin(ctx, auth.LoginDTO{Email: "not-an-email"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("can be switched off", func() {
			off := auth.NewService(users, tokens, sessions, nil, auth.Options{}, logger)
			_, err := off.LocalLogin(ctx, auth.LoginDTO{Email: "admin@example.com", Password: "s3cret-pass"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusForbidden))
		})
	})

	Context("OIDC", func() {
		stateFrom := func(redirect string) string {
			u, err := url.Parse(redirect)
			Expect(err).NotTo(HaveOccurred())
			return u.Query().Get("state")
		}

		It("upserts the user as a client and starts a session", func() {
			redirect, err := svc.BeginLogin(ctx)
			Expect(err).NotTo(HaveOccurred())
			state := stateFrom(redirect)
			Expect(state).To(HaveLen(64))

			res, err := svc.CompleteLogin(ctx, state, "good-code")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.User.ID).To(Equal("oidc|42"))
			Expect(res.User.Role).To(Equal(internal.RoleClient))
			Expect(res.User.FirstName).To(Equal("Pat"))
		})

		It("accepts each state once", func() {
			redirect, err := svc.BeginLogin(ctx)
			Expect(err).NotTo(HaveOccurred())
			state := stateFrom(redirect)

			_, err = svc.CompleteLogin(ctx, state, "good-code")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.CompleteLogin(ctx, state, "good-code")
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})

		It("rejects unknown state and failed exchanges", func() {
			_, err := svc.CompleteLogin(ctx, "forged", "good-code")
			Expect(err).To(MatchError(internal.ErrInvalidToken))

			redirect, err := svc.BeginLogin(ctx)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.CompleteLogin(ctx, stateFrom(redirect), "bad-code")
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})

		It("reports 404 when no provider is configured", func() {
			off := auth.NewService(users, tokens, sessions, nil, auth.Options{LocalLoginEnabled: true}, logger)
			_, err := off.BeginLogin(ctx)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Context("Authenticate", func() {
		var token string

		BeforeEach(func() {
			res, err := svc.LocalLogin(ctx, auth.LoginDTO{Email: "admin@example.com", Password: "s3cret-pass"})
			Expect(err).NotTo(HaveOccurred())
			token = res.Token
		})

		It("sees a role change on the next request", func() {
			Expect(db.Model(&userDatamodel.User{}).Where("id = ?", "u-admin").Update("role", "client").Error).To(Succeed())
			p, err := svc.Authenticate(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Role).To(Equal(internal.RoleClient))
		})

		It("stops accepting the token after logout", func() {
			Expect(svc.Logout(ctx, token)).To(Succeed())
			_, err := svc.Authenticate(ctx, token)
			Expect(err).To(MatchError(internal.ErrUnauthenticated))
		})

		It("rejects tampered and foreign tokens", func() {
			_, err := svc.Authenticate(ctx, token+"x")
			Expect(err).To(MatchError(internal.ErrInvalidToken))

			other := auth.NewJWTTokenGenerator(strings.Repeat("z", 32), time.Hour)
			forged, _, err := other.Generate("u-admin", "admin@example.com", "sid")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Authenticate(ctx, forged)
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})

		It("reports expiry distinctly", func() {
			gen := auth.NewJWTTokenGenerator(testSecret, time.Minute)
			auth.SetClock(gen, func() time.Time { return time.Now().Add(-time.Hour) })
			old, _, err := gen.Generate("u-admin", "admin@example.com", "sid")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Authenticate(ctx, old)
			Expect(err).To(MatchError(internal.ErrTokenExpired))
		})
	})

	Context("HTTP", func() {
		var handler *auth.Handler

		BeforeEach(func() {
			handler = auth.NewHandler(transport.NewBaseHandler(logger), svc, auth.CookieConfig{Name: "sid", PostLoginURL: "/app"})
		})

		protected := func() http.Handler {
			return handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				p, _ := internal.PrincipalFromContext(r.Context())
				_, _ = w.Write([]byte(p.UserID))
			}))
		}

		It("logs in, sets the cookie, and authenticates by cookie or bearer", func() {
			w := httptest.NewRecorder()
			handler.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
				strings.NewReader(`{"email":"admin@example.com","password":"s3cret-pass"}`)))
			Expect(w.Code).To(Equal(http.StatusOK))

			cookies := w.Result().Cookies()
			Expect(cookies).To(HaveLen(1))
			Expect(cookies[0].Name).To(Equal("sid"))
			Expect(cookies[0].HttpOnly).To(BeTrue())

			req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
			req.AddCookie(cookies[0])
			w = httptest.NewRecorder()
			protected().ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("u-admin"))

			req = httptest.NewRequest(http.MethodGet, "/api/reports", nil)
			req.Header.Set("Authorization", "Bearer "+cookies[0].Value)
			w = httptest.NewRecorder()
			protected().ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("answers 401 without credentials", func() {
			w := httptest.NewRecorder()
			protected().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(w.Body.String()).To(ContainSubstring("UNAUTHENTICATED"))
		})

		It("redirects through the provider and back", func() {
			w := httptest.NewRecorder()
			handler.BeginOIDC(w, httptest.NewRequest(http.MethodGet, "/api/login", nil))
			Expect(w.Code).To(Equal(http.StatusFound))
			loc, err := url.Parse(w.Header().Get("Location"))
			Expect(err).NotTo(HaveOccurred())

			w = httptest.NewRecorder()
			handler.Callback(w, httptest.NewRequest(http.MethodGet, "/api/callback?code=good-code&state="+loc.Query().Get("state"), nil))
			Expect(w.Code).To(Equal(http.StatusFound))
			Expect(w.Header().Get("Location")).To(Equal("/app"))
			Expect(w.Result().Cookies()).To(HaveLen(1))
		})

		It("clears the cookie on logout", func() {
			w := httptest.NewRecorder()
			handler.Logout(w, httptest.NewRequest(http.MethodGet, "/api/logout", nil))
			Expect(w.Code).To(Equal(http.StatusFound))
			Expect(w.Result().Cookies()[0].MaxAge).To(BeNumerically("<", 0))
		})

		It("keeps non-admins out of admin groups", func() {
			guarded := handler.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
			req = req.WithContext(internal.ContextWithPrincipal(req.Context(), &internal.Principal{UserID: "u", Role: internal.RolePartner}))
			w := httptest.NewRecorder()
			guarded.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusForbidden))
		})
	})
})
