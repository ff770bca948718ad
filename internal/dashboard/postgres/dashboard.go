package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/pentest-portal/internal/access"
	"github.com/frahmantamala/pentest-portal/internal/dashboard"
)

const globalMetricsQuery = `
SELECT
	(SELECT COUNT(*) FROM findings WHERE severity = 'critical') AS critical,
	(SELECT COUNT(*) FROM findings WHERE severity = 'high') AS high,
	(SELECT COUNT(*) FROM reports WHERE status = 'in_progress') AS reports,
	(SELECT COUNT(*) FROM findings WHERE status = 'fixed') AS remediated`

// scopedMetricsQuery restricts every counter to the reports the user holds
// a view grant on.
const scopedMetricsQuery = `
SELECT
	(SELECT COUNT(*) FROM findings WHERE severity = 'critical' AND report_id IN (SELECT report_id FROM access_grants WHERE user_id = ? AND can_view = ?)) AS critical,
	(SELECT COUNT(*) FROM findings WHERE severity = 'high' AND report_id IN (SELECT report_id FROM access_grants WHERE user_id = ? AND can_view = ?)) AS high,
	(SELECT COUNT(*) FROM reports WHERE status = 'in_progress' AND id IN (SELECT report_id FROM access_grants WHERE user_id = ? AND can_view = ?)) AS reports,
	(SELECT COUNT(*) FROM findings WHERE status = 'fixed' AND report_id IN (SELECT report_id FROM access_grants WHERE user_id = ? AND can_view = ?)) AS remediated`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Metrics(ctx context.Context, scope access.Scope) (*dashboard.Metrics, error) {
	var m dashboard.Metrics
	if scope.Unrestricted {
		if err := r.db.GetContext(ctx, &m, globalMetricsQuery); err != nil {
			return nil, err
		}
		return &m, nil
	}

	args := make([]interface{}, 0, 8)
	for i := 0; i < 4; i++ {
		args = append(args, scope.UserID, true)
	}
	if err := r.db.GetContext(ctx, &m, r.db.Rebind(scopedMetricsQuery), args...); err != nil {
		return nil, err
	}
	return &m, nil
}
