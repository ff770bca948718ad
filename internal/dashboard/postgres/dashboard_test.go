package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/pentest-portal/internal/access"
	"github.com/frahmantamala/pentest-portal/internal/dashboard/postgres"
)

var _ = Describe("Dashboard repository", func() {
	var (
		db   *sql.DB
		mock sqlmock.Sqlmock
		repo *postgres.Repository
	)

	BeforeEach(func() {
		var err error
		db, mock, err = sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		repo = postgres.NewRepository(sqlx.NewDb(db, "pgx"))
	})

	AfterEach(func() {
		db.Close()
	})

	It("counts everything for an unrestricted scope", func() {
		mock.ExpectQuery(regexp.QuoteMeta("(SELECT COUNT(*) FROM findings WHERE severity = 'critical') AS critical")).
			WithoutArgs().
			WillReturnRows(sqlmock.NewRows([]string{"critical", "high", "reports", "remediated"}).AddRow(3, 5, 2, 7))

		m, err := repo.Metrics(context.Background(), access.Scope{Unrestricted: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Critical).To(Equal(int64(3)))
		Expect(m.High).To(Equal(int64(5)))
		Expect(m.Reports).To(Equal(int64(2)))
		Expect(m.Remediated).To(Equal(int64(7)))
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("binds the caller once per counter for a scoped query", func() {
		mock.ExpectQuery(regexp.QuoteMeta("user_id = $1 AND can_view = $2")).
			WithArgs("u-1", true, "u-1", true, "u-1", true, "u-1", true).
			WillReturnRows(sqlmock.NewRows([]string{"critical", "high", "reports", "remediated"}).AddRow(1, 0, 1, 0))

		m, err := repo.Metrics(context.Background(), access.Scope{UserID: "u-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Critical).To(Equal(int64(1)))
		Expect(m.Reports).To(Equal(int64(1)))
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("propagates store errors", func() {
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

		_, err := repo.Metrics(context.Background(), access.Scope{Unrestricted: true})
		Expect(err).To(MatchError("connection reset"))
	})
})
