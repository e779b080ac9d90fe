package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"Kessan/internal/domain/models"
	pkgpg "Kessan/pkg/postgres"
)

// PGAnalysisStore caches generated research notes in Postgres.
type PGAnalysisStore struct {
	db *sql.DB
}

func NewPGAnalysisStore(pg *pkgpg.Client) *PGAnalysisStore {
	return &PGAnalysisStore{db: pg.DB()}
}

func (s *PGAnalysisStore) Insert(ctx context.Context, a *models.Analysis) error {
	q, args, err := psql.Insert("analyses").
		Columns("id", "ticker", "model", "summary", "outlook", "risks",
			"confidence", "prompt_tokens", "completion_tokens", "created_at").
		Values(a.ID, a.Ticker, a.Model, a.Summary, a.Outlook, pq.StringArray(a.Risks),
			a.Confidence, a.PromptTokens, a.CompletionTokens, a.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert analysis %s: %w", a.ID, err)
	}
	return nil
}

// GetLatest returns the newest note for a ticker generated at or after
// notBefore, or nil when none qualifies.
func (s *PGAnalysisStore) GetLatest(ctx context.Context, ticker string, notBefore time.Time) (*models.Analysis, error) {
	q, args, err := psql.Select("id", "ticker", "model", "summary", "outlook", "risks",
		"confidence", "prompt_tokens", "completion_tokens", "created_at").
		From("analyses").
		Where(sq.Eq{"ticker": ticker}).
		Where(sq.GtOrEq{"created_at": notBefore}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var a models.Analysis
	var risks pq.StringArray
	row := s.db.QueryRowContext(ctx, q, args...)
	if err := row.Scan(&a.ID, &a.Ticker, &a.Model, &a.Summary, &a.Outlook, &risks,
		&a.Confidence, &a.PromptTokens, &a.CompletionTokens, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest analysis for %s: %w", ticker, err)
	}
	a.Risks = []string(risks)
	return &a, nil
}
