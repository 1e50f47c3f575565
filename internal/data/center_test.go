package data

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quant-engine/internal/model"
)

// fakeAdapter serves a fixed bar list and can fail a queued number of calls.
type fakeAdapter struct {
	mu       sync.Mutex
	calls    int
	bars     []model.KLine
	failures []error
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) GetKlines(_ context.Context, _, _ string, limit int, startMs, endMs int64) ([]model.KLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}

	var out []model.KLine
	for _, k := range f.bars {
		if startMs > 0 && k.OpenTime < startMs {
			continue
		}
		if endMs > 0 && k.OpenTime >= endMs {
			break
		}
		out = append(out, k)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAdapter) GetTicker(_ context.Context, symbol string) (model.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	last := f.bars[len(f.bars)-1]
	return model.Ticker{Symbol: symbol, LastPrice: last.Close, Timestamp: last.CloseTime}, nil
}

func (f *fakeAdapter) Close() error { return nil }

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func genBars(n int) []model.KLine {
	bars := make([]model.KLine, 0, n)
	for i := 0; i < n; i++ {
		price := decimal.NewFromInt(int64(100 + i))
		bars = append(bars, model.KLine{
			Symbol:    "BTC/USDT",
			Exchange:  "fake",
			Period:    "1m",
			OpenTime:  int64(i) * 60_000,
			CloseTime: int64(i)*60_000 + 59_999,
			Open:      price,
			High:      price.Add(decimal.NewFromInt(1)),
			Low:       price.Sub(decimal.NewFromInt(1)),
			Close:     price.Add(decimal.NewFromFloat(0.5)),
			Volume:    decimal.NewFromInt(10),
		})
	}
	return bars
}

func testCenter(fake *fakeAdapter) *DataCenter {
	opts := DefaultCenterOptions()
	opts.RetryDelay = time.Millisecond
	opts.FailureThreshold = 2
	dc := NewDataCenter(opts, zap.NewNop())
	dc.Register("fake", MarketSpot, fake)
	return dc
}

func req(limit int) MarketDataRequest {
	return MarketDataRequest{
		Symbol:     "BTC/USDT",
		Interval:   "1m",
		Exchange:   "fake",
		MarketType: MarketSpot,
		Limit:      limit,
	}
}

func TestGetMarketDataCachesWithinTTL(t *testing.T) {
	fake := &fakeAdapter{bars: genBars(10)}
	dc := testCenter(fake)

	first, err := dc.GetMarketData(context.Background(), req(10))
	require.NoError(t, err)
	second, err := dc.GetMarketData(context.Background(), req(10))
	require.NoError(t, err)

	// identical payload, single upstream call
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.callCount())
	assert.Equal(t, 10, first.Metadata.Count)
}

func TestGetKlinesRetriesRetryableErrors(t *testing.T) {
	fake := &fakeAdapter{
		bars:     genBars(5),
		failures: []error{fmt.Errorf("%w: connection reset", ErrNetwork)},
	}
	dc := testCenter(fake)

	klines, err := dc.GetKlines(context.Background(), req(5))
	require.NoError(t, err)
	assert.Len(t, klines, 5)
	assert.Equal(t, 2, fake.callCount())
}

func TestGetKlinesDoesNotRetryAdapterErrors(t *testing.T) {
	fake := &fakeAdapter{
		bars:     genBars(5),
		failures: []error{fmt.Errorf("%w: bad symbol", ErrAdapter)},
	}
	dc := testCenter(fake)

	_, err := dc.GetKlines(context.Background(), req(5))
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, 1, fake.callCount())
}

func TestBreakerShieldsAdapterAfterRepeatedFailures(t *testing.T) {
	fail := fmt.Errorf("%w: down", ErrAdapter)
	fake := &fakeAdapter{
		bars:     genBars(5),
		failures: []error{fail, fail},
	}
	dc := testCenter(fake)

	_, err := dc.GetKlines(context.Background(), req(5))
	require.Error(t, err)
	_, err = dc.GetKlines(context.Background(), req(5))
	require.Error(t, err)

	// two failed calls trip the breaker; the adapter is not touched again
	calls := fake.callCount()
	_, err = dc.GetKlines(context.Background(), req(5))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, calls, fake.callCount())
}

func TestHistoricalBatchStitchesPages(t *testing.T) {
	fake := &fakeAdapter{bars: genBars(20)}
	dc := testCenter(fake)

	r := req(6)
	r.StartTime = 0
	r.EndTime = 20 * 60_000
	md, err := dc.GetHistoricalKlinesBatch(context.Background(), r, 10)
	require.NoError(t, err)

	assert.Equal(t, 20, md.Metadata.Count)
	for i := 1; i < len(md.OHLCV.Timestamps); i++ {
		assert.Greater(t, md.OHLCV.Timestamps[i], md.OHLCV.Timestamps[i-1])
	}
}

func TestGetTickerUsesShortTTLCache(t *testing.T) {
	fake := &fakeAdapter{bars: genBars(3)}
	dc := testCenter(fake)

	first, err := dc.GetTicker(context.Background(), "fake", MarketSpot, "BTCUSDT")
	require.NoError(t, err)
	second, err := dc.GetTicker(context.Background(), "fake", MarketSpot, "BTC/USDT")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.callCount())
	assert.Equal(t, "BTC/USDT", first.Symbol)
}
