package newsmap

import (
	"strings"
	"unicode"

	"Kessan/internal/domain/models"
)

// Weights configures the additive relevance scoring. The zero value is
// replaced by DefaultWeights.
type Weights struct {
	Ticker float64 // direct ticker mention
	Name   float64 // company name or variation
	Report float64 // financial report vocabulary
	Sector float64 // sector-specific vocabulary
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{Ticker: 0.4, Name: 0.3, Report: 0.2, Sector: 0.1}
}

// reportKeywords is the financial disclosure vocabulary that boosts a
// match once the company itself has been identified in the text.
var reportKeywords = []string{
	"決算", "売上", "利益", "業績", "増益", "減益",
	"上方修正", "下方修正", "配当", "自社株買い", "増収",
}

// sectorKeywords maps a stock's sector to vocabulary that signals the
// article is about that industry.
var sectorKeywords = map[string][]string{
	"自動車":   {"自動車", "EV", "電気自動車", "車載"},
	"電気機器":  {"半導体", "センサー", "家電", "電子部品"},
	"銀行業":   {"金利", "融資", "貸出", "日銀"},
	"医薬品":   {"治験", "新薬", "承認", "創薬"},
	"小売業":   {"既存店", "売上高", "店舗", "インバウンド"},
	"情報・通信": {"通信", "5G", "クラウド", "AI"},
}

// Scorer computes article-to-stock relevance.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer; zero weights fall back to defaults.
func NewScorer(w Weights) *Scorer {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	return &Scorer{weights: w}
}

// Score computes the relevance of text to a stock in [0,1] plus the terms
// that matched. Text with no overlap with the ticker or any name
// variation scores exactly 0; report and sector vocabulary only boost an
// existing company match.
func (s *Scorer) Score(text string, stock *models.Stock) (float64, []string) {
	if text == "" || stock == nil {
		return 0, nil
	}

	var score float64
	var matched []string

	if containsTicker(text, stock.Ticker) {
		score += s.weights.Ticker
		matched = append(matched, stock.Ticker)
	}

	if term, ok := matchName(text, stock); ok {
		score += s.weights.Name
		matched = append(matched, term)
	}

	if score == 0 {
		return 0, nil
	}

	for _, kw := range reportKeywords {
		if strings.Contains(text, kw) {
			score += s.weights.Report
			matched = append(matched, kw)
			break
		}
	}

	if kws, ok := sectorKeywords[stock.Sector]; ok {
		for _, kw := range kws {
			if strings.Contains(text, kw) {
				score += s.weights.Sector
				matched = append(matched, kw)
				break
			}
		}
	}

	if score > 1 {
		score = 1
	}
	return score, matched
}

// containsTicker finds the ticker as a standalone number, so "7203" does
// not match inside "17203".
func containsTicker(text, ticker string) bool {
	if ticker == "" {
		return false
	}
	runes := []rune(text)
	want := []rune(ticker)
	for i := 0; i+len(want) <= len(runes); i++ {
		if string(runes[i:i+len(want)]) != ticker {
			continue
		}
		if i > 0 && unicode.IsDigit(runes[i-1]) {
			continue
		}
		if end := i + len(want); end < len(runes) && unicode.IsDigit(runes[end]) {
			continue
		}
		return true
	}
	return false
}

func matchName(text string, stock *models.Stock) (string, bool) {
	for _, v := range nameVariations(stock) {
		if strings.Contains(text, v) {
			return v, true
		}
	}
	return "", false
}

var jaLegalForms = []string{"株式会社", "(株)", "（株）"}
var jaCorporateSuffixes = []string{"ホールディングス", "グループ", "ＨＤ", "HD"}
var enCorporateSuffixes = []string{
	", Inc.", " Inc.", " Inc",
	" Co., Ltd.", " Co.,Ltd.", " Ltd.", " Ltd",
	" Corporation", " Corp.", " Corp",
	" Holdings", " Group", " K.K.", " Co.",
}

// nameVariations expands a stock's names into the spellings an article
// might use: legal forms stripped, corporate suffixes stripped, and a
// leading truncation for long Japanese names.
func nameVariations(stock *models.Stock) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		// Too-short fragments match everything.
		if len([]rune(v)) < 2 {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	if name := stock.Name; name != "" {
		add(name)
		stripped := name
		for _, form := range jaLegalForms {
			stripped = strings.ReplaceAll(stripped, form, "")
		}
		add(stripped)
		for _, suffix := range jaCorporateSuffixes {
			if strings.HasSuffix(stripped, suffix) {
				add(strings.TrimSuffix(stripped, suffix))
			}
		}
		// Long names get abbreviated in headlines.
		if runes := []rune(stripped); len(runes) > 5 {
			add(string(runes[:4]))
		}
	}

	if name := stock.NameEn; name != "" {
		add(name)
		stripped := name
		for _, suffix := range enCorporateSuffixes {
			if strings.HasSuffix(stripped, suffix) {
				stripped = strings.TrimSuffix(stripped, suffix)
				add(stripped)
			}
		}
	}

	return out
}
