package repository

import sq "github.com/Masterminds/squirrel"

// psql builds queries with $N placeholders for lib/pq.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresSchema holds the DDL applied at startup.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS stocks (
        ticker     TEXT PRIMARY KEY,
        name       TEXT NOT NULL,
        name_en    TEXT NOT NULL DEFAULT '',
        sector     TEXT NOT NULL DEFAULT '',
        market     TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS news_articles (
        id           TEXT PRIMARY KEY,
        source       TEXT NOT NULL,
        title        TEXT NOT NULL,
        body         TEXT NOT NULL DEFAULT '',
        url          TEXT NOT NULL DEFAULT '',
        content_hash TEXT NOT NULL UNIQUE,
        published_at TIMESTAMPTZ NOT NULL,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_news_articles_published
        ON news_articles (published_at DESC)`,
	`CREATE TABLE IF NOT EXISTS stock_news_links (
        id            TEXT PRIMARY KEY,
        article_id    TEXT NOT NULL REFERENCES news_articles (id) ON DELETE CASCADE,
        ticker        TEXT NOT NULL,
        relevance     DOUBLE PRECISION NOT NULL,
        matched_terms TEXT[] NOT NULL DEFAULT '{}',
        created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        UNIQUE (article_id, ticker)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_stock_news_links_ticker
        ON stock_news_links (ticker, relevance DESC)`,
	`CREATE TABLE IF NOT EXISTS analyses (
        id                TEXT PRIMARY KEY,
        ticker            TEXT NOT NULL,
        model             TEXT NOT NULL,
        summary           TEXT NOT NULL,
        outlook           TEXT NOT NULL,
        risks             TEXT[] NOT NULL DEFAULT '{}',
        confidence        DOUBLE PRECISION NOT NULL,
        prompt_tokens     BIGINT NOT NULL DEFAULT 0,
        completion_tokens BIGINT NOT NULL DEFAULT 0,
        created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_ticker_created
        ON analyses (ticker, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS alert_events (
        id        BIGSERIAL PRIMARY KEY,
        alert     TEXT NOT NULL,
        rule      TEXT NOT NULL,
        metric    TEXT NOT NULL,
        value     DOUBLE PRECISION NOT NULL,
        threshold DOUBLE PRECISION NOT NULL,
        state     TEXT NOT NULL,
        message   TEXT NOT NULL DEFAULT '',
        at        TIMESTAMPTZ NOT NULL
    )`,
}
