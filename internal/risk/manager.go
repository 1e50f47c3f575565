// Package risk evaluates the graded account-protection rules each tick.
package risk

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quant-engine/internal/config"
	"quant-engine/internal/infrastructure"
	"quant-engine/internal/model"
)

// Level grades the overall risk state of a run.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "WARNING"
	case LevelCritical:
		return "CRITICAL"
	}
	return "NORMAL"
}

// Action is the recommended engine response, ordered by severity.
type Action int

const (
	ActionNone Action = iota
	ActionWarn
	ActionStopTrading
	ActionForceClose
)

func (a Action) String() string {
	switch a {
	case ActionWarn:
		return "WARN"
	case ActionStopTrading:
		return "STOP_TRADING"
	case ActionForceClose:
		return "FORCE_CLOSE"
	}
	return "NONE"
}

// Rule is one threshold check over the current account state.
type Rule struct {
	Name      string
	Level     Level
	Threshold float64
	Action    Action
}

// Snapshot is the per-tick input to CheckRisk.
type Snapshot struct {
	Equity       decimal.Decimal
	MarginLocked decimal.Decimal
	Now          time.Time
}

// Result is the graded outcome of one risk check.
type Result struct {
	Level          Level
	TriggeredRules []string
	Action         Action
	Details        map[string]float64
}

// Manager tracks peak equity and the daily PnL anchor across ticks.
type Manager struct {
	rules []Rule

	peakEquity     decimal.Decimal
	dayStartEquity decimal.Decimal
	dayAnchor      string // UTC date of the current day window
	logger         *zap.Logger
}

// NewManager derives the rule table from config: warning thresholds sit at
// warning_ratio of their critical counterparts.
func NewManager(cfg config.RiskConfig, initialEquity decimal.Decimal, start time.Time, logger *zap.Logger) *Manager {
	rules := []Rule{
		{Name: "daily_loss_warning", Level: LevelWarning, Threshold: cfg.MaxDailyLossPct * cfg.WarningRatio, Action: ActionWarn},
		{Name: "daily_loss_critical", Level: LevelCritical, Threshold: cfg.MaxDailyLossPct, Action: ActionForceClose},
		{Name: "max_drawdown_warning", Level: LevelWarning, Threshold: cfg.MaxDrawdownPct * cfg.WarningRatio, Action: ActionWarn},
		{Name: "max_drawdown_critical", Level: LevelCritical, Threshold: cfg.MaxDrawdownPct, Action: ActionForceClose},
		{Name: "position_ratio", Level: LevelWarning, Threshold: cfg.MaxTotalPositionPct, Action: ActionStopTrading},
	}
	return &Manager{
		rules:          rules,
		peakEquity:     initialEquity,
		dayStartEquity: initialEquity,
		dayAnchor:      start.UTC().Format("2006-01-02"),
		logger:         logger,
	}
}

func (m *Manager) PeakEquity() decimal.Decimal { return m.peakEquity }

// Drawdown against the running peak, as a fraction.
func (m *Manager) Drawdown(equity decimal.Decimal) float64 {
	if m.peakEquity.IsZero() {
		return 0
	}
	dd, _ := m.peakEquity.Sub(equity).Div(m.peakEquity).Float64()
	return dd
}

// CheckRisk evaluates every rule against the snapshot and the trade history.
// The returned level and action are the maxima over triggered rules. The day
// window rolls on the tick's UTC date, resetting the daily PnL anchor.
func (m *Manager) CheckRisk(snap Snapshot, trades []model.TradeRecord) Result {
	day := snap.Now.UTC().Format("2006-01-02")
	if day != m.dayAnchor {
		m.dayAnchor = day
		m.dayStartEquity = snap.Equity
	}
	if snap.Equity.GreaterThan(m.peakEquity) {
		m.peakEquity = snap.Equity
	}

	dailyPnL := decimal.Zero
	for _, tr := range trades {
		if tr.ExitTime.UTC().Format("2006-01-02") == day {
			dailyPnL = dailyPnL.Add(tr.PnL)
		}
	}

	dailyLoss := 0.0
	if m.dayStartEquity.IsPositive() && dailyPnL.IsNegative() {
		dailyLoss, _ = dailyPnL.Neg().Div(m.dayStartEquity).Float64()
	}
	drawdown := m.Drawdown(snap.Equity)
	positionRatio := 0.0
	if snap.Equity.IsPositive() {
		positionRatio, _ = snap.MarginLocked.Div(snap.Equity).Float64()
	}

	observed := map[string]float64{
		"daily_loss_warning":    dailyLoss,
		"daily_loss_critical":   dailyLoss,
		"max_drawdown_warning":  drawdown,
		"max_drawdown_critical": drawdown,
		"position_ratio":        positionRatio,
	}

	res := Result{
		Details: map[string]float64{
			"daily_loss":     dailyLoss,
			"drawdown":       drawdown,
			"position_ratio": positionRatio,
		},
	}
	for _, rule := range m.rules {
		if observed[rule.Name] < rule.Threshold {
			continue
		}
		res.TriggeredRules = append(res.TriggeredRules, rule.Name)
		if rule.Level > res.Level {
			res.Level = rule.Level
		}
		if rule.Action > res.Action {
			res.Action = rule.Action
		}
		infrastructure.RiskEvents.WithLabelValues(rule.Name).Inc()
	}

	if res.Level > LevelNormal {
		m.logger.Warn("risk rules triggered",
			zap.String("level", res.Level.String()),
			zap.String("action", res.Action.String()),
			zap.Strings("rules", res.TriggeredRules),
			zap.Float64("daily_loss", dailyLoss),
			zap.Float64("drawdown", drawdown),
			zap.Float64("position_ratio", positionRatio))
	}
	return res
}
