package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"Kessan/internal/domain/models"
	domrepo "Kessan/internal/domain/repository"
	pkgch "Kessan/pkg/clickhouse"
	applogger "Kessan/pkg/logger"
)

// CHPriceStore implements PriceStore backed by ClickHouse.
type CHPriceStore struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

func NewCHPriceStore(ch *pkgch.Client) *CHPriceStore {
	return &CHPriceStore{client: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHPriceStore) SetLogger(l *applogger.Logger) { s.l = l }

var priceBarSchema = []string{
	`CREATE TABLE IF NOT EXISTS kessan.price_bars_5m (
        bucket DateTime,
        ticker String,
        open   Float64,
        high   Float64,
        low    Float64,
        close  Float64,
        vol    Float64,
        source String
    ) ENGINE = ReplacingMergeTree
    ORDER BY (ticker, bucket)`,
	`CREATE TABLE IF NOT EXISTS kessan.price_bars_1h (
        bucket DateTime,
        ticker String,
        open   Float64,
        high   Float64,
        low    Float64,
        close  Float64,
        vol    Float64,
        source String
    ) ENGINE = ReplacingMergeTree
    ORDER BY (ticker, bucket)`,
	`CREATE TABLE IF NOT EXISTS kessan.price_bars_1d (
        bucket DateTime,
        ticker String,
        open   Float64,
        high   Float64,
        low    Float64,
        close  Float64,
        vol    Float64,
        source String
    ) ENGINE = ReplacingMergeTree
    ORDER BY (ticker, bucket)`,
}

func (s *CHPriceStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, priceBarSchema)
}

func (s *CHPriceStore) StoreBatch(ctx context.Context, bars []*models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()

	// bars may mix intervals; group per destination table
	grouped := make(map[string][]*models.PriceBar)
	for _, b := range bars {
		table, err := tableForInterval(domrepo.Interval(b.Interval))
		if err != nil {
			return err
		}
		grouped[table] = append(grouped[table], b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	for table, group := range grouped {
		q := fmt.Sprintf(
			"INSERT INTO %s (bucket, ticker, open, high, low, close, vol, source) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			table)
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("prepare insert %s: %w", table, err)
		}
		for _, b := range group {
			if _, err := stmt.ExecContext(ctx, b.Bucket, b.Ticker, b.Open, b.High, b.Low, b.Close, b.Volume, b.Source); err != nil {
				_ = stmt.Close()
				_ = tx.Rollback()
				return fmt.Errorf("insert bar %s@%s: %w", b.Ticker, b.Bucket, err)
			}
		}
		_ = stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse store_batch ok",
			applogger.Int("bars", len(bars)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHPriceStore) Query(ctx context.Context, ticker string, from, to time.Time, interval domrepo.Interval, limit int) ([]*models.PriceBar, error) {
	start := time.Now()
	table, err := tableForInterval(interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}

	const qtpl = `
        SELECT bucket, ticker, open, high, low, close, vol, source
        FROM %s
        WHERE ticker = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
        LIMIT ?
    `
	q := fmt.Sprintf(qtpl, table)
	rows, err := s.db.QueryContext(ctx, q, ticker, from, to, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse query_bars error",
				applogger.String("table", table),
				applogger.String("ticker", ticker),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	out := make([]*models.PriceBar, 0, 1024)
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Bucket, &b.Ticker, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Source); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Interval = string(interval)
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse query_bars ok",
			applogger.String("table", table),
			applogger.String("ticker", ticker),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHPriceStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *CHPriceStore) Close() error {
	return s.client.Close()
}

func tableForInterval(interval domrepo.Interval) (string, error) {
	switch interval {
	case domrepo.Interval5m:
		return "kessan.price_bars_5m", nil
	case domrepo.Interval1h:
		return "kessan.price_bars_1h", nil
	case domrepo.Interval1d:
		return "kessan.price_bars_1d", nil
	default:
		return "", fmt.Errorf("unsupported interval: %s", interval)
	}
}
