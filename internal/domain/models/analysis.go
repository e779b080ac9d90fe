package models

import "time"

// Analysis is a generated research note for one stock.
type Analysis struct {
	ID               string
	Ticker           string
	Model            string
	Summary          string
	Outlook          string // "bullish", "bearish", "neutral"
	Risks            []string
	Confidence       float64 // [0,1]
	PromptTokens     int64
	CompletionTokens int64
	CreatedAt        time.Time
}
