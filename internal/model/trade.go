package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeResult carries the account-level effect of one executed signal.
type TradeResult struct {
	PnL          decimal.Decimal `json:"pnl"`
	Fees         decimal.Decimal `json:"fees"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// TradeRecord is one completed trade. Futures trades are recorded at close;
// event contracts at bar resolution.
type TradeRecord struct {
	TradeID       string          `json:"trade_id"`
	Symbol        string          `json:"symbol"`
	Action        string          `json:"action"`
	EntryTime     time.Time       `json:"entry_time"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	ExitTime      time.Time       `json:"exit_time,omitempty"`
	ExitPrice     decimal.Decimal `json:"exit_price,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	PnL           decimal.Decimal `json:"pnl"`
	PnLPct        decimal.Decimal `json:"pnl_pct"`
	Fees          decimal.Decimal `json:"fees"`
	HoldingPeriod time.Duration   `json:"holding_period,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// EquityPoint is one sample of the equity curve, recorded once per tick
// after mark-to-market and stop handling.
type EquityPoint struct {
	Timestamp   int64           `json:"timestamp"`
	Equity      decimal.Decimal `json:"equity"`
	Drawdown    decimal.Decimal `json:"drawdown"`
	DrawdownPct float64         `json:"drawdown_pct"`
}

// Report aggregates trade records and the equity curve for one run.
type Report struct {
	StrategyName   string          `json:"strategy_name"`
	Symbol         string          `json:"symbol"`
	Interval       string          `json:"interval"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        time.Time       `json:"end_time"`
	DurationDays   float64         `json:"duration_days"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalCapital   decimal.Decimal `json:"final_capital"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	TotalReturn    float64         `json:"total_return"`
	AnnualReturn   float64         `json:"annual_return"`
	TotalTrades    int             `json:"total_trades"`
	WinningTrades  int             `json:"winning_trades"`
	LosingTrades   int             `json:"losing_trades"`
	WinRate        float64         `json:"win_rate"`
	AvgWin         decimal.Decimal `json:"avg_win"`
	AvgLoss        decimal.Decimal `json:"avg_loss"`
	ProfitFactor   float64         `json:"profit_factor"`
	MaxDrawdownPct float64         `json:"max_drawdown_pct"`
	SharpeRatio    float64         `json:"sharpe_ratio"`
	SortinoRatio   float64         `json:"sortino_ratio"`
	CalmarRatio    float64         `json:"calmar_ratio"`
	TradesLog      []TradeRecord   `json:"trades_log,omitempty"`
	EquityCurve    []EquityPoint   `json:"equity_curve,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}
