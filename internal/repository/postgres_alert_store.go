package repository

import (
	"context"
	"database/sql"
	"fmt"

	"Kessan/internal/domain/models"
	pkgpg "Kessan/pkg/postgres"
)

// PGAlertStore keeps the alert transition history in Postgres.
type PGAlertStore struct {
	db *sql.DB
}

func NewPGAlertStore(pg *pkgpg.Client) *PGAlertStore {
	return &PGAlertStore{db: pg.DB()}
}

func (s *PGAlertStore) Insert(ctx context.Context, e *models.AlertEvent) error {
	q, args, err := psql.Insert("alert_events").
		Columns("alert", "rule", "metric", "value", "threshold", "state", "message", "at").
		Values(e.Alert, e.Rule, e.Metric, e.Value, e.Threshold, string(e.State), e.Message, e.At).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert alert event %s: %w", e.Alert, err)
	}
	return nil
}

func (s *PGAlertStore) ListRecent(ctx context.Context, limit int) ([]*models.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	q, args, err := psql.Select("alert", "rule", "metric", "value", "threshold", "state", "message", "at").
		From("alert_events").
		OrderBy("at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alert events: %w", err)
	}
	defer rows.Close()

	out := make([]*models.AlertEvent, 0, limit)
	for rows.Next() {
		var e models.AlertEvent
		var state string
		if err := rows.Scan(&e.Alert, &e.Rule, &e.Metric, &e.Value, &e.Threshold, &state, &e.Message, &e.At); err != nil {
			return nil, fmt.Errorf("scan alert event: %w", err)
		}
		e.State = models.AlertState(state)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
