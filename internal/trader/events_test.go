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
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func bar(open, close float64) model.KLine {
	return model.KLine{
		Symbol:    "BTC/USDT",
		OpenTime:  0,
		CloseTime: 59_999,
		Open:      d(open),
		High:      d(max(open, close)),
		Low:       d(min(open, close)),
		Close:     d(close),
	}
}

func newEventsTrader(balance float64) *EventsTrader {
	return NewEventsTrader("BTC/USDT", account.NewSimpleAccount(d(balance)), DefaultEventsConfig(), zap.NewNop())
}

func TestEventsWin(t *testing.T) {
	tr := newEventsTrader(1000)

	warning := tr.OnSignal(model.Signal{Action: model.ActionUp, Quantity: 100, Confidence: 0.8}, time.Unix(0, 0).UTC())
	assert.Empty(t, warning)
	assert.True(t, tr.Balance().Equal(d(900)))

	records := tr.ResolveBar(bar(100, 110))
	require.Len(t, records, 1)
	assert.True(t, records[0].PnL.Equal(d(80)))
	assert.True(t, tr.Balance().Equal(d(1080)))
	assert.Equal(t, "won", records[0].Reason)
}

func TestEventsLoss(t *testing.T) {
	tr := newEventsTrader(1000)

	tr.OnSignal(model.Signal{Action: model.ActionUp, Quantity: 100, Confidence: 0.8}, time.Unix(0, 0).UTC())
	records := tr.ResolveBar(bar(100, 95))
	require.Len(t, records, 1)
	assert.True(t, records[0].PnL.Equal(d(-100)))
	assert.True(t, tr.Balance().Equal(d(900)))
}

func TestEventsTieLosesTheStake(t *testing.T) {
	tr := newEventsTrader(1000)

	tr.OnSignal(model.Signal{Action: model.ActionUp, Quantity: 100, Confidence: 0.8}, time.Unix(0, 0).UTC())
	records := tr.ResolveBar(bar(100, 100))
	require.Len(t, records, 1)
	assert.True(t, records[0].PnL.Equal(d(-100)))

	tr.OnSignal(model.Signal{Action: model.ActionDown, Quantity: 100, Confidence: 0.8}, time.Unix(60, 0).UTC())
	records = tr.ResolveBar(bar(100, 100))
	require.Len(t, records, 1)
	assert.True(t, records[0].PnL.Equal(d(-100)))
}

func TestEventsAliasMapping(t *testing.T) {
	tr := newEventsTrader(1000)

	tr.OnSignal(model.Signal{Action: model.ActionLong, Quantity: 50, Confidence: 0.8}, time.Unix(0, 0).UTC())
	tr.OnSignal(model.Signal{Action: model.ActionSell, Quantity: 50, Confidence: 0.8}, time.Unix(0, 0).UTC())

	records := tr.ResolveBar(bar(100, 110))
	require.Len(t, records, 2)
	assert.Equal(t, string(model.ActionUp), records[0].Action)
	assert.Equal(t, string(model.ActionDown), records[1].Action)
	assert.True(t, records[0].PnL.IsPositive())
	assert.True(t, records[1].PnL.IsNegative())
}

func TestEventsRejectsCloseActionsAndOverdraft(t *testing.T) {
	tr := newEventsTrader(50)

	assert.NotEmpty(t, tr.OnSignal(model.Signal{Action: model.ActionCloseLong, Confidence: 0.9}, time.Unix(0, 0).UTC()))
	assert.NotEmpty(t, tr.OnSignal(model.Signal{Action: model.ActionUp, Quantity: 100, Confidence: 0.9}, time.Unix(0, 0).UTC()))
	assert.Empty(t, tr.OnSignal(model.Signal{Action: model.ActionHold, Confidence: 1}, time.Unix(0, 0).UTC()))
	assert.Zero(t, tr.PendingCount())
}

func TestEventsFractionalMultiplierQuotesNetGain(t *testing.T) {
	cfg := DefaultEventsConfig()
	cfg.PayoutMultiplier = d(0.9)
	tr := NewEventsTrader("BTC/USDT", account.NewSimpleAccount(d(1000)), cfg, zap.NewNop())

	tr.OnSignal(model.Signal{Action: model.ActionUp, Quantity: 100, Confidence: 0.8}, time.Unix(0, 0).UTC())
	records := tr.ResolveBar(bar(100, 110))
	require.Len(t, records, 1)
	assert.True(t, records[0].PnL.Equal(d(90)))
	assert.True(t, tr.Balance().Equal(d(1090)))
}
