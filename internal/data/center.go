package data

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quant-engine/internal/infrastructure"
	"quant-engine/internal/model"
)

// MarketDataRequest identifies one bar window.
type MarketDataRequest struct {
	Symbol     string     `json:"symbol"`
	Interval   string     `json:"interval"`
	Exchange   string     `json:"exchange"`
	MarketType MarketType `json:"market_type"`
	Limit      int        `json:"limit"`
	StartTime  int64      `json:"start_time,omitempty"` // ms, 0 = unset
	EndTime    int64      `json:"end_time,omitempty"`   // ms, 0 = unset
}

func (r *MarketDataRequest) normalize() {
	r.Symbol = NormalizeSymbol(r.Symbol)
	if r.Exchange == "" {
		r.Exchange = "binance"
	}
	if r.MarketType == "" {
		r.MarketType = MarketSpot
	}
	if r.Limit <= 0 {
		r.Limit = 100
	}
}

// MarketData is the data-center response shape.
type MarketData struct {
	OHLCV    model.OHLCVSeries `json:"ohlcv"`
	Metadata MarketMetadata    `json:"metadata"`
}

type MarketMetadata struct {
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	Count      int    `json:"count"`
	Exchange   string `json:"exchange"`
	MarketType string `json:"market_type"`
}

// CenterOptions tune the cache, breaker, and retry behavior.
type CenterOptions struct {
	EnableCache      bool
	CacheTTL         time.Duration
	CacheSize        int
	FailureThreshold int
	Cooldown         time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
}

func DefaultCenterOptions() CenterOptions {
	return CenterOptions{
		EnableCache:      true,
		CacheTTL:         300 * time.Second,
		CacheSize:        1000,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		MaxRetries:       3,
		RetryDelay:       500 * time.Millisecond,
	}
}

// DataCenter bundles the adapter registry, the cache, and per-service
// circuit breakers behind a single request model.
type DataCenter struct {
	adapters map[string]Adapter
	cache    *DataCache
	breakers map[string]*CircuitBreaker
	opts     CenterOptions
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewDataCenter(opts CenterOptions, logger *zap.Logger) *DataCenter {
	dc := &DataCenter{
		adapters: make(map[string]Adapter),
		breakers: make(map[string]*CircuitBreaker),
		opts:     opts,
		logger:   logger,
		sleep:    sleepCtx,
	}
	if opts.EnableCache {
		dc.cache = NewDataCache(opts.CacheTTL, opts.CacheSize)
	}
	return dc
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func registryKey(exchange string, marketType MarketType) string {
	return exchange + ":" + string(marketType)
}

// Register adds an adapter for an (exchange, market type) pair.
func (dc *DataCenter) Register(exchange string, marketType MarketType, adapter Adapter) {
	dc.adapters[registryKey(exchange, marketType)] = adapter
}

func (dc *DataCenter) adapter(exchange string, marketType MarketType) (Adapter, error) {
	a, ok := dc.adapters[registryKey(exchange, marketType)]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for %s/%s", ErrAdapter, exchange, marketType)
	}
	return a, nil
}

func (dc *DataCenter) breaker(service string) *CircuitBreaker {
	b, ok := dc.breakers[service]
	if !ok {
		b = NewCircuitBreaker(service, dc.opts.FailureThreshold, dc.opts.Cooldown)
		dc.breakers[service] = b
	}
	return b
}

// call runs fn behind the service breaker with bounded retries. Only
// retryable failures are retried; the breaker records every outcome.
func (dc *DataCenter) call(ctx context.Context, service string, fn func() error) error {
	b := dc.breaker(service)
	if !b.Allow() {
		return fmt.Errorf("%w: service %s", ErrCircuitOpen, service)
	}

	delay := dc.opts.RetryDelay
	attempts := dc.opts.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if serr := dc.sleep(ctx, delay); serr != nil {
				break
			}
			delay *= 2
		}
		if err = fn(); err == nil {
			b.RecordSuccess()
			return nil
		}
		if !IsRetryable(err) {
			break
		}
		dc.logger.Warn("retryable fetch failure",
			zap.String("service", service),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	b.RecordFailure()
	return fmt.Errorf("%w: %v", ErrFetch, err)
}

// GetKlines fetches raw bars through the breaker and retry layer, bypassing
// the window cache. The streaming loader uses it for paging.
func (dc *DataCenter) GetKlines(ctx context.Context, req MarketDataRequest) ([]model.KLine, error) {
	req.normalize()
	a, err := dc.adapter(req.Exchange, req.MarketType)
	if err != nil {
		return nil, err
	}
	service := registryKey(req.Exchange, req.MarketType) + ":klines"

	var klines []model.KLine
	start := time.Now()
	err = dc.call(ctx, service, func() error {
		var ferr error
		klines, ferr = a.GetKlines(ctx, req.Symbol, req.Interval, req.Limit, req.StartTime, req.EndTime)
		return ferr
	})
	infrastructure.DataFetchLatency.WithLabelValues(req.Exchange, "klines").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return klines, nil
}

// GetMarketData returns a cached column-form window for the request.
func (dc *DataCenter) GetMarketData(ctx context.Context, req MarketDataRequest) (MarketData, error) {
	req.normalize()
	key := KlineKey(registryKey(req.Exchange, req.MarketType), req.Symbol, req.Interval, req.Limit, req.StartTime, req.EndTime)

	if dc.cache != nil {
		if cached, ok := dc.cache.Klines.Get(key); ok {
			infrastructure.CacheHits.WithLabelValues("klines").Inc()
			return cached.(MarketData), nil
		}
		infrastructure.CacheMisses.WithLabelValues("klines").Inc()
	}

	klines, err := dc.GetKlines(ctx, req)
	if err != nil {
		return MarketData{}, err
	}

	result := MarketData{
		OHLCV: model.SeriesFromKLines(klines),
		Metadata: MarketMetadata{
			Symbol:     req.Symbol,
			Interval:   req.Interval,
			Count:      len(klines),
			Exchange:   req.Exchange,
			MarketType: string(req.MarketType),
		},
	}
	if dc.cache != nil {
		dc.cache.Klines.Set(key, result, 0)
	}
	return result, nil
}

// GetHistoricalKlinesBatch pages through [StartTime, EndTime) with at most
// maxRequests adapter calls, stitching pages in time order and dropping
// duplicate open times.
func (dc *DataCenter) GetHistoricalKlinesBatch(ctx context.Context, req MarketDataRequest, maxRequests int) (MarketData, error) {
	req.normalize()
	if req.StartTime == 0 || req.EndTime == 0 {
		return MarketData{}, fmt.Errorf("%w: batch fetch requires start_time and end_time", ErrAdapter)
	}
	if maxRequests < 1 {
		maxRequests = 1
	}

	var all []model.KLine
	cursor := req.StartTime
	for i := 0; i < maxRequests && cursor < req.EndTime; i++ {
		page := req
		page.StartTime = cursor
		klines, err := dc.GetKlines(ctx, page)
		if err != nil {
			return MarketData{}, err
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			if len(all) > 0 && k.OpenTime <= all[len(all)-1].OpenTime {
				continue
			}
			if k.OpenTime >= req.EndTime {
				break
			}
			all = append(all, k)
		}
		last := klines[len(klines)-1].OpenTime
		next, err := model.NextOpenTime(last, req.Interval)
		if err != nil {
			return MarketData{}, fmt.Errorf("%w: %v", ErrAdapter, err)
		}
		if next <= cursor {
			break
		}
		cursor = next
	}

	return MarketData{
		OHLCV: model.SeriesFromKLines(all),
		Metadata: MarketMetadata{
			Symbol:     req.Symbol,
			Interval:   req.Interval,
			Count:      len(all),
			Exchange:   req.Exchange,
			MarketType: string(req.MarketType),
		},
	}, nil
}

// GetTicker returns the latest quote, cached on a short TTL.
func (dc *DataCenter) GetTicker(ctx context.Context, exchange string, marketType MarketType, symbol string) (model.Ticker, error) {
	symbol = NormalizeSymbol(symbol)
	key := "ticker:" + registryKey(exchange, marketType) + ":" + symbol
	if dc.cache != nil {
		if cached, ok := dc.cache.Tickers.Get(key); ok {
			infrastructure.CacheHits.WithLabelValues("ticker").Inc()
			return cached.(model.Ticker), nil
		}
		infrastructure.CacheMisses.WithLabelValues("ticker").Inc()
	}

	a, err := dc.adapter(exchange, marketType)
	if err != nil {
		return model.Ticker{}, err
	}
	var ticker model.Ticker
	err = dc.call(ctx, registryKey(exchange, marketType)+":ticker", func() error {
		var ferr error
		ticker, ferr = a.GetTicker(ctx, symbol)
		return ferr
	})
	if err != nil {
		return model.Ticker{}, err
	}
	if dc.cache != nil {
		dc.cache.Tickers.Set(key, ticker, 0)
	}
	return ticker, nil
}

// Stats reports cache and breaker state for diagnostics.
func (dc *DataCenter) Stats() map[string]any {
	stats := map[string]any{}
	if dc.cache != nil {
		stats["cache"] = dc.cache.Stats()
	}
	breakers := map[string]any{}
	for name, b := range dc.breakers {
		breakers[name] = b.Stats()
	}
	stats["breakers"] = breakers
	return stats
}

// Close releases every registered adapter.
func (dc *DataCenter) Close() error {
	var first error
	for _, a := range dc.adapters {
		if err := a.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
