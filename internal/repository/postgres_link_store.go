package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"Kessan/internal/domain/models"
	pkgpg "Kessan/pkg/postgres"
)

// PGLinkStore persists stock-news relevance links in Postgres.
type PGLinkStore struct {
	db *sql.DB
}

func NewPGLinkStore(pg *pkgpg.Client) *PGLinkStore {
	return &PGLinkStore{db: pg.DB()}
}

func (s *PGLinkStore) InsertBatch(ctx context.Context, links []*models.StockNewsLink) error {
	if len(links) == 0 {
		return nil
	}

	builder := psql.Insert("stock_news_links").
		Columns("id", "article_id", "ticker", "relevance", "matched_terms")
	for _, l := range links {
		builder = builder.Values(l.ID, l.ArticleID, l.Ticker, l.Relevance, pq.StringArray(l.MatchedTerms))
	}
	q, args, err := builder.
		Suffix(`ON CONFLICT (article_id, ticker) DO UPDATE SET
            relevance = EXCLUDED.relevance,
            matched_terms = EXCLUDED.matched_terms`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert %d links: %w", len(links), err)
	}
	return nil
}

func (s *PGLinkStore) DeleteByArticle(ctx context.Context, articleID string) error {
	q, args, err := psql.Delete("stock_news_links").
		Where(sq.Eq{"article_id": articleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("delete links for article %s: %w", articleID, err)
	}
	return nil
}

func (s *PGLinkStore) ExistsByArticle(ctx context.Context, articleID string) (bool, error) {
	q, args, err := psql.Select("1").
		From("stock_news_links").
		Where(sq.Eq{"article_id": articleID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}

	var one int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("exists by article: %w", err)
	}
	return true, nil
}

func (s *PGLinkStore) ListByArticle(ctx context.Context, articleID string) ([]*models.StockNewsLink, error) {
	q, args, err := linkSelect().
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("relevance DESC", "ticker ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.queryLinks(ctx, q, args)
}

func (s *PGLinkStore) ListByTicker(ctx context.Context, ticker string, minRelevance float64, limit int) ([]*models.StockNewsLink, error) {
	if limit <= 0 {
		limit = 20
	}
	q, args, err := linkSelect().
		Where(sq.Eq{"ticker": ticker}).
		Where(sq.GtOrEq{"relevance": minRelevance}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.queryLinks(ctx, q, args)
}

// Stats aggregates link coverage over the whole article corpus.
func (s *PGLinkStore) Stats(ctx context.Context, topN int) (*models.MappingStats, error) {
	if topN <= 0 {
		topN = 10
	}

	stats := &models.MappingStats{}
	const aggregate = `
        SELECT
            (SELECT COUNT(*) FROM news_articles),
            COUNT(DISTINCT article_id),
            COUNT(*),
            COALESCE(AVG(relevance), 0)
        FROM stock_news_links`
	if err := s.db.QueryRowContext(ctx, aggregate).Scan(
		&stats.TotalArticles, &stats.LinkedArticles, &stats.TotalLinks, &stats.AvgRelevance,
	); err != nil {
		return nil, fmt.Errorf("aggregate link stats: %w", err)
	}
	if stats.TotalArticles > 0 {
		stats.LinkRate = float64(stats.LinkedArticles) / float64(stats.TotalArticles)
	}

	q, args, err := psql.Select("l.ticker", "COALESCE(s.name, '')", "COUNT(*)").
		From("stock_news_links l").
		LeftJoin("stocks s ON s.ticker = l.ticker").
		GroupBy("l.ticker", "s.name").
		OrderBy("COUNT(*) DESC", "l.ticker ASC").
		Limit(uint64(topN)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build top stocks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("top stocks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.StockArticleCount
		if err := rows.Scan(&c.Ticker, &c.Name, &c.ArticleCount); err != nil {
			return nil, fmt.Errorf("scan top stock: %w", err)
		}
		stats.TopStocks = append(stats.TopStocks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return stats, nil
}

func (s *PGLinkStore) queryLinks(ctx context.Context, q string, args []interface{}) ([]*models.StockNewsLink, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	out := make([]*models.StockNewsLink, 0, 16)
	for rows.Next() {
		var l models.StockNewsLink
		var terms pq.StringArray
		if err := rows.Scan(&l.ID, &l.ArticleID, &l.Ticker, &l.Relevance, &terms, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.MatchedTerms = []string(terms)
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func linkSelect() sq.SelectBuilder {
	return psql.Select("id", "article_id", "ticker", "relevance", "matched_terms", "created_at").
		From("stock_news_links")
}
