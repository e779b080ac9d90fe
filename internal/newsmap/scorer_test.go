package newsmap

import (
	"math"
	"testing"

	"Kessan/internal/domain/models"
)

var toyota = &models.Stock{
	Ticker: "7203",
	Name:   "トヨタ自動車株式会社",
	NameEn: "Toyota Motor Corporation",
	Sector: "自動車",
	Market: "TSE Prime",
}

func TestScoreTickerAndName(t *testing.T) {
	s := NewScorer(DefaultWeights())
	score, terms := s.Score("トヨタ自動車(7203)が発表", toyota)
	if score < 0.7 {
		t.Fatalf("ticker+name mention must score >= 0.7, got %f", score)
	}
	if len(terms) < 2 {
		t.Fatalf("expected ticker and name terms, got %v", terms)
	}
}

func TestScoreNoOverlapIsZero(t *testing.T) {
	s := NewScorer(DefaultWeights())
	score, terms := s.Score("日経平均は小幅続伸、決算シーズン本格化で売買活発", toyota)
	if score != 0 {
		t.Fatalf("no company overlap must score exactly 0, got %f", score)
	}
	if terms != nil {
		t.Fatalf("expected no matched terms, got %v", terms)
	}
}

func TestScoreReportKeywordsOnlyBoost(t *testing.T) {
	s := NewScorer(DefaultWeights())

	base, _ := s.Score("トヨタ自動車の新工場", toyota)
	boosted, _ := s.Score("トヨタ自動車の決算は増益", toyota)
	if boosted <= base {
		t.Fatalf("report keywords must boost a company match: base=%f boosted=%f", base, boosted)
	}

	// The same keywords alone must not produce a score.
	alone, _ := s.Score("各社の決算は増益基調", toyota)
	if alone != 0 {
		t.Fatalf("report keywords without company overlap must score 0, got %f", alone)
	}
}

func TestScoreSectorKeywords(t *testing.T) {
	s := NewScorer(DefaultWeights())
	plain, _ := s.Score("7203に注目", toyota)
	sector, _ := s.Score("7203、EV販売が好調", toyota)
	if sector <= plain {
		t.Fatalf("sector keywords must boost: plain=%f sector=%f", plain, sector)
	}
}

func TestScoreClampedToOne(t *testing.T) {
	s := NewScorer(Weights{Ticker: 0.8, Name: 0.8, Report: 0.8, Sector: 0.8})
	score, _ := s.Score("トヨタ自動車(7203)の決算、EV好調で増益", toyota)
	if score != 1 {
		t.Fatalf("score must clamp to 1, got %f", score)
	}
}

func TestScoreEnglishNameVariation(t *testing.T) {
	s := NewScorer(DefaultWeights())
	score, _ := s.Score("Toyota Motor reports record output", toyota)
	if math.Abs(score-0.3) > 1e-9 {
		t.Fatalf("stripped English name should score the name weight, got %f", score)
	}
}

func TestContainsTickerBoundaries(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"7203が上昇", true},
		{"コード7203を確認", true},
		{"17203は別銘柄", false},
		{"72030も別銘柄", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := containsTicker(tt.text, "7203"); got != tt.want {
			t.Fatalf("containsTicker(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestNameVariations(t *testing.T) {
	vars := nameVariations(&models.Stock{
		Ticker: "9984",
		Name:   "ソフトバンクグループ株式会社",
		NameEn: "SoftBank Group Corp.",
	})

	want := map[string]bool{
		"ソフトバンクグループ": false,
		"ソフトバンク":      false,
		"SoftBank Group":   false,
	}
	for _, v := range vars {
		if _, ok := want[v]; ok {
			want[v] = true
		}
	}
	for v, found := range want {
		if !found {
			t.Fatalf("expected variation %q in %v", v, vars)
		}
	}
}
