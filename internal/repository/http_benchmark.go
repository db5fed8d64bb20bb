package repository

import (
	"context"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	pkghttp "FinCast/pkg/http"
)

// HTTPBenchmark fetches benchmark reference series from an external
// benchmark provider. Used when no benchmark table is maintained
// locally.
type HTTPBenchmark struct {
	client  *pkghttp.Client
	baseURL string
	apiKey  string
}

func NewHTTPBenchmark(client *pkghttp.Client, baseURL, apiKey string) *HTTPBenchmark {
	return &HTTPBenchmark{client: client, baseURL: baseURL, apiKey: apiKey}
}

type benchmarkResponse struct {
	Points []struct {
		Date  string  `json:"date"`
		Value float64 `json:"value"`
	} `json:"points"`
}

func (b *HTTPBenchmark) FetchBenchmark(ctx context.Context, metric models.MetricType, industry string) ([]models.SeriesPoint, error) {
	var resp benchmarkResponse
	err := b.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    b.baseURL + "/v1/benchmarks",
		Headers: map[string]string{
			"X-Api-Key": b.apiKey,
		},
		QueryParams: map[string][]string{
			"metric":   {string(metric)},
			"industry": {industry},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch benchmark: %w", err)
	}
	if len(resp.Points) == 0 {
		return nil, fmt.Errorf("%w: industry %s metric %s", models.ErrDataUnavailable, industry, metric)
	}

	series := make([]models.SeriesPoint, 0, len(resp.Points))
	for _, p := range resp.Points {
		date, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return nil, fmt.Errorf("parse benchmark date %q: %w", p.Date, err)
		}
		series = append(series, models.SeriesPoint{Date: date, Value: p.Value})
	}
	return series, nil
}
