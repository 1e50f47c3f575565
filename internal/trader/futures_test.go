package trader

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quant-engine/internal/account"
	"quant-engine/internal/model"
	"quant-engine/internal/position"
)

func newFuturesTrader(capital float64) *FuturesTrader {
	cfg := position.DefaultConfig()
	cfg.Slippage = decimal.Zero
	return NewFuturesTrader("BTC/USDT", account.NewFuturesAccount(d(capital)), cfg, zap.NewNop())
}

func TestFuturesOpenAndCloseBySignal(t *testing.T) {
	tr := newFuturesTrader(10000)
	now := time.Unix(0, 0).UTC()

	records, warning, err := tr.OnSignal(model.Signal{Action: model.ActionLong, Confidence: 0.8}, d(100), now)
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Empty(t, records)
	assert.True(t, tr.Manager().Has(account.SideLong))

	records, warning, err = tr.OnSignal(model.Signal{Action: model.ActionCloseLong, Confidence: 0.9}, d(110), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, warning)
	require.Len(t, records, 1)
	assert.True(t, records[0].PnL.IsPositive())
	assert.False(t, tr.Manager().Has(account.SideLong))
}

func TestFuturesBuySellAliases(t *testing.T) {
	tr := newFuturesTrader(10000)
	now := time.Unix(0, 0).UTC()

	_, _, err := tr.OnSignal(model.Signal{Action: model.ActionBuy, Confidence: 0.8}, d(100), now)
	require.NoError(t, err)
	_, _, err = tr.OnSignal(model.Signal{Action: model.ActionSell, Confidence: 0.8}, d(100), now)
	require.NoError(t, err)

	assert.True(t, tr.Manager().Has(account.SideLong))
	assert.True(t, tr.Manager().Has(account.SideShort))
}

func TestFuturesSoftFailures(t *testing.T) {
	tr := newFuturesTrader(10000)
	now := time.Unix(0, 0).UTC()

	// closing an empty slot is a warning, not an error
	records, warning, err := tr.OnSignal(model.Signal{Action: model.ActionCloseShort, Confidence: 0.9}, d(100), now)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Contains(t, warning, "no short position")

	// so is a duplicate open
	_, _, err = tr.OnSignal(model.Signal{Action: model.ActionLong, Confidence: 0.8}, d(100), now)
	require.NoError(t, err)
	_, warning, err = tr.OnSignal(model.Signal{Action: model.ActionLong, Confidence: 0.8}, d(100), now)
	require.NoError(t, err)
	assert.Contains(t, warning, "already open")
}

func TestFuturesCloseAllOrdering(t *testing.T) {
	tr := newFuturesTrader(10000)
	now := time.Unix(0, 0).UTC()

	_, _, err := tr.OnSignal(model.Signal{Action: model.ActionLong, Confidence: 0.8}, d(100), now)
	require.NoError(t, err)
	_, _, err = tr.OnSignal(model.Signal{Action: model.ActionShort, Confidence: 0.8}, d(100), now)
	require.NoError(t, err)

	records, warning, err := tr.OnSignal(model.Signal{Action: model.ActionClose, Confidence: 0.9}, d(100), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, warning)
	require.Len(t, records, 2)
	assert.Equal(t, "close_long", records[0].Action)
	assert.Equal(t, "close_short", records[1].Action)
	assert.True(t, tr.Account().MarginLocked().IsZero())
}

func TestFuturesStopSweepProducesRecords(t *testing.T) {
	tr := newFuturesTrader(10000)
	now := time.Unix(0, 0).UTC()

	_, _, err := tr.OnSignal(model.Signal{Action: model.ActionLong, StopLoss: 95, Confidence: 0.8}, d(100), now)
	require.NoError(t, err)

	assert.Empty(t, tr.SweepStops(d(101), d(96), now))

	records := tr.SweepStops(d(101), d(94), now.Add(time.Hour))
	require.Len(t, records, 1)
	assert.Equal(t, position.ReasonStopLoss, records[0].Reason)
	assert.False(t, tr.Manager().HasAny())
}

func TestFuturesEquityIncludesUnrealized(t *testing.T) {
	tr := newFuturesTrader(10000)
	now := time.Unix(0, 0).UTC()

	_, _, err := tr.OnSignal(model.Signal{Action: model.ActionLong, Confidence: 0.8}, d(100), now)
	require.NoError(t, err)

	tr.MarkToMarket(d(110), d(110), d(100))
	// size 100, +10 per unit, minus 4 entry fee
	assert.InDelta(t, 10996, tr.Equity().InexactFloat64(), 1e-6)
}
