package report

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"quant-engine/internal/model"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func baseInput() Input {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return Input{
		StrategyName:   "ma_cross",
		Symbol:         "BTC/USDT",
		Interval:       "1h",
		StartTime:      start,
		EndTime:        start.AddDate(0, 0, 30),
		InitialCapital: d(10000),
		FinalCapital:   d(11000),
	}
}

func TestReturnsAndPnL(t *testing.T) {
	rep := Build(baseInput())

	assert.True(t, rep.TotalPnL.Equal(d(1000)))
	assert.InDelta(t, 0.1, rep.TotalReturn, 1e-9)
	assert.InDelta(t, 30, rep.DurationDays, 1e-9)
	// compounded: (1.1)^(365/30) - 1
	assert.InDelta(t, math.Pow(1.1, 365.0/30)-1, rep.AnnualReturn, 1e-9)
}

func TestTradeTally(t *testing.T) {
	in := baseInput()
	in.Trades = []model.TradeRecord{
		{PnL: d(100)},
		{PnL: d(300)},
		{PnL: d(-200)},
		{PnL: d(0)}, // break-even counts as a loss
	}
	rep := Build(in)

	assert.Equal(t, 4, rep.TotalTrades)
	assert.Equal(t, 2, rep.WinningTrades)
	assert.Equal(t, 2, rep.LosingTrades)
	assert.InDelta(t, 0.5, rep.WinRate, 1e-9)
	assert.True(t, rep.AvgWin.Equal(d(200)))
	assert.True(t, rep.AvgLoss.Equal(d(100)))
	assert.InDelta(t, 2.0, rep.ProfitFactor, 1e-9)
}

func TestProfitFactorInfiniteWithoutLosses(t *testing.T) {
	in := baseInput()
	in.Trades = []model.TradeRecord{{PnL: d(100)}}
	rep := Build(in)
	assert.True(t, math.IsInf(rep.ProfitFactor, 1))
}

func TestMaxDrawdownFromCurve(t *testing.T) {
	in := baseInput()
	in.EquityCurve = []model.EquityPoint{
		{Timestamp: 0, Equity: d(10000), DrawdownPct: 0},
		{Timestamp: 1, Equity: d(9000), DrawdownPct: 0.10},
		{Timestamp: 2, Equity: d(8500), DrawdownPct: 0.15},
		{Timestamp: 3, Equity: d(9500), DrawdownPct: 0.05},
	}
	rep := Build(in)
	assert.InDelta(t, 0.15, rep.MaxDrawdownPct, 1e-9)
	assert.InDelta(t, rep.AnnualReturn/0.15, rep.CalmarRatio, 1e-9)
}

func TestRatiosZeroWhenDenominatorZero(t *testing.T) {
	in := baseInput()
	rep := Build(in)
	assert.Zero(t, rep.SharpeRatio)
	assert.Zero(t, rep.SortinoRatio)
	assert.Zero(t, rep.CalmarRatio)
	assert.Zero(t, rep.MaxDrawdownPct)
}

func TestSharpeOverDailyResampledCurve(t *testing.T) {
	in := baseInput()
	day := int64(24 * 3600 * 1000)
	// two points per day; only the last of each day counts
	in.EquityCurve = []model.EquityPoint{
		{Timestamp: 0, Equity: d(9999)},
		{Timestamp: 1, Equity: d(10000)},
		{Timestamp: day, Equity: d(10000)},
		{Timestamp: day + 1, Equity: d(10100)},
		{Timestamp: 2 * day, Equity: d(10100)},
		{Timestamp: 2*day + 1, Equity: d(10200)},
		{Timestamp: 3 * day, Equity: d(10400)},
	}
	rep := Build(in)
	// daily returns: 1%, ~0.99%, ~1.96% -> positive Sharpe
	assert.Greater(t, rep.SharpeRatio, 0.0)
	// no negative daily returns -> Sortino reports 0 by the zero-denominator rule
	assert.Zero(t, rep.SortinoRatio)
}
