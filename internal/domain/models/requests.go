package models

// Requests for the REST endpoints. Defined in domain for consistency and reuse.

type HistoricalRequest struct {
	From     string `query:"from" json:"from"`
	To       string `query:"to" json:"to"`
	Interval string `query:"interval" json:"interval" default:"1d" validate:"oneof=5m 1h 1d"`
	Limit    int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
}

type SearchRequest struct {
	Query string `query:"q" json:"q" validate:"required,min=1,max=64"`
	Limit int    `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=50"`
}

type StockNewsRequest struct {
	Limit        int     `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=100"`
	MinRelevance float64 `query:"min_relevance" json:"min_relevance" validate:"gte=0,lte=1"`
}

type AnalysisRequest struct {
	Refresh bool `query:"refresh" json:"refresh"`
}

type RemapRequest struct {
	ForceRefresh bool `json:"force_refresh"`
}
