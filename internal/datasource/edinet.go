package datasource

import (
	"context"
	"fmt"
	"time"

	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	apphttp "Kessan/pkg/http"
)

const edinetName = "edinet"

// EDINET serves Japanese financial disclosure filings from the FSA's
// EDINET API: document search per submission date plus XBRL ZIP download.
// It has the financial data capability only; price operations are not
// supported.
type EDINET struct {
	baseAdapter
	client  *apphttp.Client
	baseURL string
	apiKey  string
}

// EDINETOption configures EDINET.
type EDINETOption func(*EDINET)

// WithEDINETBaseURL overrides the API base URL (used in tests).
func WithEDINETBaseURL(u string) EDINETOption {
	return func(e *EDINET) {
		e.baseURL = u
	}
}

// NewEDINET creates the EDINET adapter.
func NewEDINET(apiKey string, priority int, timeout time.Duration, perMinute int, opts ...EDINETOption) *EDINET {
	e := &EDINET{
		baseAdapter: newBaseAdapter(
			edinetName,
			priority,
			CapabilityFinancialData,
			newLimiter(edinetName, perMinute, 0, 0, nil),
			CostInfo{Plan: "free", CostPerRequest: 0, Currency: "JPY"},
		),
		client:  apphttp.NewClient(apphttp.WithTimeout(timeout)),
		baseURL: "https://api.edinet-fsa.go.jp/api/v2",
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *EDINET) CurrentPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	return nil, fmt.Errorf("%s: %w", edinetName, ErrUnsupportedOperation)
}

func (e *EDINET) HistoricalPrices(ctx context.Context, symbol string, from, to time.Time, interval repository.Interval) ([]*models.PriceBar, error) {
	return nil, fmt.Errorf("%s: %w", edinetName, ErrUnsupportedOperation)
}

func (e *EDINET) SearchSymbols(ctx context.Context, query string) ([]*models.SymbolMatch, error) {
	return nil, fmt.Errorf("%s: %w", edinetName, ErrUnsupportedOperation)
}

type edinetListResponse struct {
	Results []struct {
		DocID       string `json:"docID"`
		SecCode     string `json:"secCode"`
		FilerName   string `json:"filerName"`
		DocTypeCode string `json:"docTypeCode"`
		PeriodStart string `json:"periodStart"`
		PeriodEnd   string `json:"periodEnd"`
		SubmitDate  string `json:"submitDateTime"`
	} `json:"results"`
}

// SearchFilings lists disclosure documents for a ticker submitted inside
// [from, to]. EDINET indexes by submission date, so each day in the range
// is one request; the range is capped at 31 days.
func (e *EDINET) SearchFilings(ctx context.Context, ticker string, from, to time.Time) ([]*Filing, error) {
	if to.Before(from) {
		return nil, &InvalidDataError{Source: edinetName, Reason: "to precedes from"}
	}
	if to.Sub(from) > 31*24*time.Hour {
		from = to.Add(-31 * 24 * time.Hour)
	}

	// EDINET appends a check digit to the 4-digit local code.
	secCode := ticker + "0"

	var filings []*Filing
	for day := from.Truncate(24 * time.Hour); !day.After(to); day = day.Add(24 * time.Hour) {
		if err := e.limiter.allow(); err != nil {
			return nil, err
		}

		var resp edinetListResponse
		err := e.client.SendAndParse(ctx, &apphttp.RequestOptions{
			Method: "GET",
			URL:    fmt.Sprintf("%s/documents.json", e.baseURL),
			QueryParams: map[string][]string{
				"date":             {day.Format("2006-01-02")},
				"type":             {"2"},
				"Subscription-Key": {e.apiKey},
			},
		}, &resp)
		if err != nil {
			return nil, translateError(edinetName, err)
		}

		for _, doc := range resp.Results {
			if doc.SecCode != secCode {
				continue
			}
			f := &Filing{
				DocID:       doc.DocID,
				Ticker:      ticker,
				CompanyName: doc.FilerName,
				DocType:     doc.DocTypeCode,
			}
			if t, err := time.Parse("2006-01-02", doc.PeriodStart); err == nil {
				f.PeriodStart = t
			}
			if t, err := time.Parse("2006-01-02", doc.PeriodEnd); err == nil {
				f.PeriodEnd = t
			}
			if t, err := time.Parse("2006-01-02 15:04", doc.SubmitDate); err == nil {
				f.SubmittedAt = t
			}
			filings = append(filings, f)
		}
	}
	return filings, nil
}

// DownloadFiling fetches the XBRL ZIP archive for a document.
func (e *EDINET) DownloadFiling(ctx context.Context, docID string) ([]byte, error) {
	if err := e.limiter.allow(); err != nil {
		return nil, err
	}

	var body []byte
	err := e.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    fmt.Sprintf("%s/documents/%s", e.baseURL, docID),
		QueryParams: map[string][]string{
			"type":             {"1"},
			"Subscription-Key": {e.apiKey},
		},
	}, &body)
	if err != nil {
		return nil, translateError(edinetName, err)
	}
	if len(body) == 0 {
		return nil, &InvalidDataError{Source: edinetName, Reason: fmt.Sprintf("empty archive for %s", docID)}
	}
	return body, nil
}

// HealthCheck lists today's documents as a liveness probe.
func (e *EDINET) HealthCheck(ctx context.Context) models.HealthCheck {
	start := time.Now()
	check := models.HealthCheck{Source: edinetName, CheckedAt: start}

	if err := e.limiter.allow(); err != nil {
		check.State = models.HealthDegraded
		check.Error = err.Error()
		return check
	}

	var resp edinetListResponse
	err := e.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    fmt.Sprintf("%s/documents.json", e.baseURL),
		QueryParams: map[string][]string{
			"date":             {time.Now().Format("2006-01-02")},
			"type":             {"2"},
			"Subscription-Key": {e.apiKey},
		},
	}, &resp)
	check.Latency = time.Since(start)

	if err != nil {
		check.State = models.HealthUnhealthy
		check.Error = translateError(edinetName, err).Error()
		return check
	}
	check.State = models.HealthHealthy
	if check.Latency > 5*time.Second {
		check.State = models.HealthDegraded
	}
	return check
}
