package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quant-engine/internal/config"
	"quant-engine/internal/model"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func defaultRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxDailyLossPct:     0.05,
		MaxDrawdownPct:      0.15,
		MaxTotalPositionPct: 0.8,
		WarningRatio:        0.7,
	}
}

func newManager(initial float64) *Manager {
	return NewManager(defaultRiskConfig(), d(initial), time.Unix(0, 0).UTC(), zap.NewNop())
}

func TestNormalStateTriggersNothing(t *testing.T) {
	m := newManager(10000)
	res := m.CheckRisk(Snapshot{Equity: d(10000), Now: time.Unix(60, 0).UTC()}, nil)
	assert.Equal(t, LevelNormal, res.Level)
	assert.Equal(t, ActionNone, res.Action)
	assert.Empty(t, res.TriggeredRules)
}

func TestDrawdownCritical(t *testing.T) {
	m := newManager(10000)

	// peak 10000, equity 8490 -> drawdown 15.1%
	res := m.CheckRisk(Snapshot{Equity: d(8490), Now: time.Unix(60, 0).UTC()}, nil)
	assert.Equal(t, LevelCritical, res.Level)
	assert.Equal(t, ActionForceClose, res.Action)
	assert.Contains(t, res.TriggeredRules, "max_drawdown_critical")
}

func TestDrawdownWarningBand(t *testing.T) {
	m := newManager(10000)

	// 12% drawdown: above the warning threshold (10.5%), below critical (15%)
	res := m.CheckRisk(Snapshot{Equity: d(8800), Now: time.Unix(60, 0).UTC()}, nil)
	assert.Equal(t, LevelWarning, res.Level)
	assert.Equal(t, ActionWarn, res.Action)
	assert.Contains(t, res.TriggeredRules, "max_drawdown_warning")
	assert.NotContains(t, res.TriggeredRules, "max_drawdown_critical")
}

func TestDailyLossFromTradeHistory(t *testing.T) {
	m := newManager(10000)
	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	trades := []model.TradeRecord{
		{PnL: d(-300), ExitTime: day.Add(-time.Hour)},
		{PnL: d(-300), ExitTime: day},
		{PnL: d(-300), ExitTime: day.AddDate(0, 0, -1)}, // previous day, ignored
	}

	// first tick of the day anchors day-start equity at 9400
	res := m.CheckRisk(Snapshot{Equity: d(9400), Now: day.Add(-2 * time.Hour)}, nil)
	assert.Equal(t, LevelNormal, res.Level)

	// -600 on the day is 6.4% of the anchor: past critical (5%)
	res = m.CheckRisk(Snapshot{Equity: d(9400), Now: day}, trades)
	assert.Equal(t, LevelCritical, res.Level)
	assert.Equal(t, ActionForceClose, res.Action)
	assert.Contains(t, res.TriggeredRules, "daily_loss_critical")
}

func TestDailyWindowResetsOnNewUTCDay(t *testing.T) {
	m := newManager(10000)
	day1 := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	trades := []model.TradeRecord{{PnL: d(-600), ExitTime: day1}}

	res := m.CheckRisk(Snapshot{Equity: d(9400), Now: day1}, trades)
	require.Contains(t, res.TriggeredRules, "daily_loss_critical")

	// the next UTC day carries no loss yet
	res = m.CheckRisk(Snapshot{Equity: d(9400), Now: day2}, trades)
	assert.NotContains(t, res.TriggeredRules, "daily_loss_critical")
	assert.NotContains(t, res.TriggeredRules, "daily_loss_warning")
}

func TestPositionRatioStopsTrading(t *testing.T) {
	m := newManager(10000)
	res := m.CheckRisk(Snapshot{
		Equity:       d(10000),
		MarginLocked: d(8500),
		Now:          time.Unix(60, 0).UTC(),
	}, nil)
	assert.Equal(t, LevelWarning, res.Level)
	assert.Equal(t, ActionStopTrading, res.Action)
	assert.Contains(t, res.TriggeredRules, "position_ratio")
}

func TestPeakEquityIsMonotone(t *testing.T) {
	m := newManager(10000)

	m.CheckRisk(Snapshot{Equity: d(11000), Now: time.Unix(60, 0).UTC()}, nil)
	assert.True(t, m.PeakEquity().Equal(d(11000)))

	m.CheckRisk(Snapshot{Equity: d(9000), Now: time.Unix(120, 0).UTC()}, nil)
	assert.True(t, m.PeakEquity().Equal(d(11000)))

	m.CheckRisk(Snapshot{Equity: d(12000), Now: time.Unix(180, 0).UTC()}, nil)
	assert.True(t, m.PeakEquity().Equal(d(12000)))
}

func TestActionSeverityOrdering(t *testing.T) {
	m := newManager(10000)
	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// drawdown critical and position ratio together must report FORCE_CLOSE
	res := m.CheckRisk(Snapshot{
		Equity:       d(8400),
		MarginLocked: d(8000),
		Now:          day,
	}, nil)
	assert.Equal(t, LevelCritical, res.Level)
	assert.Equal(t, ActionForceClose, res.Action)
	assert.Contains(t, res.TriggeredRules, "position_ratio")
	assert.Contains(t, res.TriggeredRules, "max_drawdown_critical")
}
