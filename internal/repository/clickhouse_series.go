package repository

import (
	"context"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/pkg/clickhouse"
)

// Schema statements for the series store, idempotent.
var Schema = []string{
	`CREATE DATABASE IF NOT EXISTS fincast`,
	`CREATE TABLE IF NOT EXISTS fincast.financial_points (
		tenant_id  String,
		client_id  String,
		metric     LowCardinality(String),
		date       Date,
		amount     Float64,
		category   LowCardinality(String) DEFAULT '',
		created_at DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(created_at)
	ORDER BY (tenant_id, client_id, metric, date)`,
	`CREATE TABLE IF NOT EXISTS fincast.benchmark_points (
		industry LowCardinality(String),
		metric   LowCardinality(String),
		date     Date,
		value    Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (industry, metric, date)`,
}

// ClickHouseSeries reads historical financial series and benchmark
// reference series from ClickHouse.
type ClickHouseSeries struct {
	client *clickhouse.Client
}

func NewClickHouseSeries(client *clickhouse.Client) *ClickHouseSeries {
	return &ClickHouseSeries{client: client}
}

// FetchSeries returns the tenant's series ordered ascending by date.
// ReplacingMergeTree plus FINAL deduplicates rewritten dates.
func (r *ClickHouseSeries) FetchSeries(ctx context.Context, tenantID, clientID string, metric models.MetricType, rng *models.DateRange) ([]models.SeriesPoint, error) {
	query := `SELECT date, amount
		FROM fincast.financial_points FINAL
		WHERE tenant_id = ? AND client_id = ? AND metric = ?`
	args := []interface{}{tenantID, clientID, string(metric)}

	if rng != nil && !rng.From.IsZero() {
		query += ` AND date >= ?`
		args = append(args, rng.From)
	}
	if rng != nil && !rng.To.IsZero() {
		query += ` AND date <= ?`
		args = append(args, rng.To)
	}
	query += ` ORDER BY date ASC`

	rows, err := r.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query financial points: %w", err)
	}
	defer rows.Close()

	var series []models.SeriesPoint
	for rows.Next() {
		var (
			date  time.Time
			value float64
		)
		if err := rows.Scan(&date, &value); err != nil {
			return nil, fmt.Errorf("scan financial point: %w", err)
		}
		series = append(series, models.SeriesPoint{Date: date, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate financial points: %w", err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: tenant %s client %s metric %s", models.ErrDataUnavailable, tenantID, clientID, metric)
	}
	return series, nil
}

// FetchBenchmark returns the reference series for an industry/metric
// pair, ordered ascending by date.
func (r *ClickHouseSeries) FetchBenchmark(ctx context.Context, metric models.MetricType, industry string) ([]models.SeriesPoint, error) {
	rows, err := r.client.DB().QueryContext(ctx, `SELECT date, value
		FROM fincast.benchmark_points FINAL
		WHERE industry = ? AND metric = ?
		ORDER BY date ASC`, industry, string(metric))
	if err != nil {
		return nil, fmt.Errorf("query benchmark points: %w", err)
	}
	defer rows.Close()

	var series []models.SeriesPoint
	for rows.Next() {
		var (
			date  time.Time
			value float64
		)
		if err := rows.Scan(&date, &value); err != nil {
			return nil, fmt.Errorf("scan benchmark point: %w", err)
		}
		series = append(series, models.SeriesPoint{Date: date, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate benchmark points: %w", err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: industry %s metric %s", models.ErrDataUnavailable, industry, metric)
	}
	return series, nil
}

// InsertPoints writes historical records, mainly used by tests and
// backfill tooling.
func (r *ClickHouseSeries) InsertPoints(ctx context.Context, points []models.FinancialDataPoint, metric models.MetricType) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := r.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fincast.financial_points
		(tenant_id, client_id, metric, date, amount, category) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.TenantID, p.ClientID, string(metric), p.Timestamp, p.Amount, p.Category); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert point: %w", err)
		}
	}
	return tx.Commit()
}
