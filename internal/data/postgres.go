package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"quant-engine/internal/model"
)

// PostgresSource replays persisted klines from the market_klines table as an
// ordinary adapter, so backtests can run against local history instead of an
// exchange.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Name() string { return "postgres" }

func (s *PostgresSource) Close() error {
	// The pool is owned by the application, not the source.
	return nil
}

func (s *PostgresSource) GetKlines(ctx context.Context, symbol, interval string, limit int, startMs, endMs int64) ([]model.KLine, error) {
	normalized := NormalizeSymbol(symbol)
	query := `
		SELECT open_time, close_time, open, high, low, close, volume
		FROM market_klines
		WHERE symbol = $1 AND period = $2
		  AND ($3::bigint = 0 OR open_time >= $3)
		  AND ($4::bigint = 0 OR open_time < $4)
		ORDER BY open_time ASC
		LIMIT $5`
	rows, err := s.pool.Query(ctx, query, normalized, interval, startMs, endMs, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer rows.Close()

	var klines []model.KLine
	for rows.Next() {
		k := model.KLine{Symbol: normalized, Exchange: "postgres", Period: interval}
		if err := rows.Scan(&k.OpenTime, &k.CloseTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrAdapter, err)
		}
		klines = append(klines, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return klines, nil
}

// GetTicker synthesizes a ticker from the most recent stored bar.
func (s *PostgresSource) GetTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	normalized := NormalizeSymbol(symbol)
	var close decimal.Decimal
	var closeTime int64
	err := s.pool.QueryRow(ctx, `
		SELECT close, close_time FROM market_klines
		WHERE symbol = $1 ORDER BY open_time DESC LIMIT 1`, normalized).Scan(&close, &closeTime)
	if err != nil {
		return model.Ticker{}, fmt.Errorf("%w: %v", ErrAdapter, err)
	}
	return model.Ticker{
		Symbol:    normalized,
		LastPrice: close,
		BidPrice:  close,
		AskPrice:  close,
		Timestamp: closeTime,
	}, nil
}
