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

// PGNewsStore persists ingested articles in Postgres.
type PGNewsStore struct {
	db *sql.DB
}

func NewPGNewsStore(pg *pkgpg.Client) *PGNewsStore {
	return &PGNewsStore{db: pg.DB()}
}

func (s *PGNewsStore) Insert(ctx context.Context, article *models.NewsArticle) error {
	q, args, err := psql.Insert("news_articles").
		Columns("id", "source", "title", "body", "url", "content_hash", "published_at").
		Values(article.ID, article.Source, article.Title, article.Body, article.URL, article.ContentHash, article.PublishedAt).
		Suffix("ON CONFLICT (content_hash) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert article %s: %w", article.ID, err)
	}
	return nil
}

func (s *PGNewsStore) GetByID(ctx context.Context, id string) (*models.NewsArticle, error) {
	q, args, err := newsSelect().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var a models.NewsArticle
	row := s.db.QueryRowContext(ctx, q, args...)
	if err := row.Scan(&a.ID, &a.Source, &a.Title, &a.Body, &a.URL, &a.ContentHash, &a.PublishedAt, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("article %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}
	return &a, nil
}

func (s *PGNewsStore) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	q, args, err := psql.Select("1").
		From("news_articles").
		Where(sq.Eq{"content_hash": hash}).
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
		return false, fmt.Errorf("exists by hash: %w", err)
	}
	return true, nil
}

func (s *PGNewsStore) ListRecent(ctx context.Context, limit int) ([]*models.NewsArticle, error) {
	if limit <= 0 {
		limit = 20
	}
	q, args, err := newsSelect().
		OrderBy("published_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent articles: %w", err)
	}
	defer rows.Close()

	out := make([]*models.NewsArticle, 0, limit)
	for rows.Next() {
		var a models.NewsArticle
		if err := rows.Scan(&a.ID, &a.Source, &a.Title, &a.Body, &a.URL, &a.ContentHash, &a.PublishedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *PGNewsStore) CountAll(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM news_articles").Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

func newsSelect() sq.SelectBuilder {
	return psql.Select("id", "source", "title", "body", "url", "content_hash", "published_at", "created_at").
		From("news_articles")
}
