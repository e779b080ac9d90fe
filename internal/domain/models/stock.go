package models

import "time"

// Stock is a listed company on a Japanese exchange.
type Stock struct {
	Ticker    string // 4-digit local code, e.g. "7203"
	Name      string // Japanese company name
	NameEn    string
	Sector    string
	Market    string // "TSE Prime", "TSE Standard", "TSE Growth"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Quote is a point-in-time price snapshot from one data source.
type Quote struct {
	Ticker    string
	Price     float64
	PrevClose float64
	Change    float64
	ChangePct float64
	Volume    int64
	Currency  string
	Source    string
	Timestamp time.Time
}

// PriceBar is an OHLCV record for the time series store.
type PriceBar struct {
	Ticker   string
	Bucket   time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Interval string // "5m", "1h", "1d"
	Source   string
}

// SymbolMatch is a single symbol search result.
type SymbolMatch struct {
	Symbol   string
	Name     string
	Region   string
	Currency string
	Score    float64
}
