package models

import "time"

// NewsArticle is a normalized article from any news source.
type NewsArticle struct {
	ID          string
	Source      string
	Title       string
	Body        string
	URL         string
	ContentHash string // dedup key over source+title+url
	PublishedAt time.Time
	CreatedAt   time.Time
}

// StockNewsLink associates an article with a stock at a relevance score.
type StockNewsLink struct {
	ID           string
	ArticleID    string
	Ticker       string
	Relevance    float64 // [0,1]
	MatchedTerms []string
	CreatedAt    time.Time
}

// MappingStats summarizes the news-to-stock mapping state.
type MappingStats struct {
	TotalArticles  int64
	LinkedArticles int64
	TotalLinks     int64
	LinkRate       float64 // linked/total
	AvgRelevance   float64
	TopStocks      []StockArticleCount
}

// StockArticleCount is one row of the top-stocks-by-volume ranking.
type StockArticleCount struct {
	Ticker       string
	Name         string
	ArticleCount int64
}
