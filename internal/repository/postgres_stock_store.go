package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"Kessan/internal/domain/models"
	pkgpg "Kessan/pkg/postgres"
)

var ErrNotFound = errors.New("repository: not found")

// PGStockStore keeps the stock master list in Postgres.
type PGStockStore struct {
	db *sql.DB
}

func NewPGStockStore(pg *pkgpg.Client) *PGStockStore {
	return &PGStockStore{db: pg.DB()}
}

func (s *PGStockStore) Upsert(ctx context.Context, stock *models.Stock) error {
	q, args, err := psql.Insert("stocks").
		Columns("ticker", "name", "name_en", "sector", "market").
		Values(stock.Ticker, stock.Name, stock.NameEn, stock.Sector, stock.Market).
		Suffix(`ON CONFLICT (ticker) DO UPDATE SET
            name = EXCLUDED.name,
            name_en = EXCLUDED.name_en,
            sector = EXCLUDED.sector,
            market = EXCLUDED.market,
            updated_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("upsert stock %s: %w", stock.Ticker, err)
	}
	return nil
}

func (s *PGStockStore) GetByTicker(ctx context.Context, ticker string) (*models.Stock, error) {
	q, args, err := stockSelect().Where(sq.Eq{"ticker": ticker}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var st models.Stock
	row := s.db.QueryRowContext(ctx, q, args...)
	if err := row.Scan(&st.Ticker, &st.Name, &st.NameEn, &st.Sector, &st.Market, &st.CreatedAt, &st.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("stock %s: %w", ticker, ErrNotFound)
		}
		return nil, fmt.Errorf("get stock %s: %w", ticker, err)
	}
	return &st, nil
}

func (s *PGStockStore) ListAll(ctx context.Context) ([]*models.Stock, error) {
	q, args, err := stockSelect().OrderBy("ticker ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Stock, 0, 256)
	for rows.Next() {
		var st models.Stock
		if err := rows.Scan(&st.Ticker, &st.Name, &st.NameEn, &st.Sector, &st.Market, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		out = append(out, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *PGStockStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func stockSelect() sq.SelectBuilder {
	return psql.Select("ticker", "name", "name_en", "sector", "market", "created_at", "updated_at").
		From("stocks")
}
