// Package position implements the hedge-mode futures position manager: one
// long and one short slot per symbol, each with its own margin and stop
// orders.
package position

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quant-engine/internal/account"
	"quant-engine/internal/model"
)

var (
	ErrDuplicatePosition = errors.New("duplicate position")
	ErrPositionNotFound  = errors.New("position not found")
)

// Close reasons carried on trade records.
const (
	ReasonSignal       = "signal"
	ReasonLiquidation  = "liquidation"
	ReasonStopLoss     = "stop_loss"
	ReasonTakeProfit   = "take_profit"
	ReasonTrailingStop = "trailing_stop"
	ReasonSessionEnd   = "session_end"
	ReasonRiskCritical = "risk_critical"
	ReasonCancelled    = "cancelled"
)

// Config is the sizing and fee model for futures fills.
type Config struct {
	Leverage               int
	PositionSizePct        decimal.Decimal
	TakerFee               decimal.Decimal
	MakerFee               decimal.Decimal
	Slippage               decimal.Decimal
	MaintenanceMarginRatio decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		Leverage:               10,
		PositionSizePct:        decimal.NewFromFloat(0.1),
		TakerFee:               decimal.NewFromFloat(0.0004),
		MakerFee:               decimal.NewFromFloat(0.0002),
		Slippage:               decimal.NewFromFloat(0.0005),
		MaintenanceMarginRatio: decimal.NewFromFloat(0.004),
	}
}

// Position is one open hedge slot.
type Position struct {
	Symbol           string          `json:"symbol"`
	Side             account.Side    `json:"side"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	Size             decimal.Decimal `json:"size"`
	Leverage         int             `json:"leverage"`
	Margin           decimal.Decimal `json:"margin"`
	EntryTime        time.Time       `json:"entry_time"`
	EntryFee         decimal.Decimal `json:"entry_fee"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`

	// Stop orders. Zero means unset; TrailingStop is an offset fraction
	// of price, TrailingStopPrice the resulting trigger level.
	StopLoss          decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit        decimal.Decimal `json:"take_profit,omitempty"`
	TrailingStop      decimal.Decimal `json:"trailing_stop,omitempty"`
	TrailingStopPrice decimal.Decimal `json:"trailing_stop_price,omitempty"`

	HighestPrice decimal.Decimal `json:"highest_price"`
	LowestPrice  decimal.Decimal `json:"lowest_price"`
}

// StopTrigger names the stop order that fired for one side, and the mark
// price at which it fired.
type StopTrigger struct {
	Side   account.Side
	Reason string
	Mark   decimal.Decimal
}

// Manager holds the hedge slots for a single symbol.
type Manager struct {
	symbol string
	long   *Position
	short  *Position
	seq    int
	logger *zap.Logger
}

func NewManager(symbol string, logger *zap.Logger) *Manager {
	return &Manager{symbol: symbol, logger: logger}
}

func (m *Manager) Symbol() string { return m.symbol }

func (m *Manager) Get(side account.Side) *Position {
	if side == account.SideLong {
		return m.long
	}
	return m.short
}

func (m *Manager) Has(side account.Side) bool { return m.Get(side) != nil }

func (m *Manager) HasAny() bool { return m.long != nil || m.short != nil }

// NetSize is the net-visible exposure: long size minus short size.
func (m *Manager) NetSize() decimal.Decimal {
	net := decimal.Zero
	if m.long != nil {
		net = net.Add(m.long.Size)
	}
	if m.short != nil {
		net = net.Sub(m.short.Size)
	}
	return net
}

func (m *Manager) TotalMargin() decimal.Decimal {
	total := decimal.Zero
	if m.long != nil {
		total = total.Add(m.long.Margin)
	}
	if m.short != nil {
		total = total.Add(m.short.Margin)
	}
	return total
}

func (m *Manager) TotalUnrealized() decimal.Decimal {
	total := decimal.Zero
	if m.long != nil {
		total = total.Add(m.long.UnrealizedPnL)
	}
	if m.short != nil {
		total = total.Add(m.short.UnrealizedPnL)
	}
	return total
}

var one = decimal.NewFromInt(1)

// Open fills a new position into the side's slot.
//
// Sizing: margin comes from signal quantity (USDT notional over leverage)
// when given, otherwise cash * position_size_pct. The fill price carries
// slippage against the taker, and the liquidation price is derived from the
// fill per the maintenance-margin model.
func (m *Manager) Open(sig model.Signal, price decimal.Decimal, side account.Side, acct *account.FuturesAccount, cfg Config, now time.Time) (*Position, error) {
	if m.Has(side) {
		return nil, fmt.Errorf("%w: %s %s already open", ErrDuplicatePosition, m.symbol, side)
	}

	leverage := decimal.NewFromInt(int64(cfg.Leverage))
	var margin decimal.Decimal
	if sig.Quantity > 0 {
		margin = decimal.NewFromFloat(sig.Quantity).Div(leverage)
	} else {
		margin = acct.Cash().Mul(cfg.PositionSizePct)
	}
	notional := margin.Mul(leverage)

	var fillPrice decimal.Decimal
	if side == account.SideLong {
		fillPrice = price.Mul(one.Add(cfg.Slippage))
	} else {
		fillPrice = price.Mul(one.Sub(cfg.Slippage))
	}
	size := notional.Div(fillPrice)
	entryFee := notional.Mul(cfg.TakerFee)

	invLev := one.Div(leverage)
	var liqPrice decimal.Decimal
	if side == account.SideLong {
		liqPrice = fillPrice.Mul(one.Sub(invLev).Add(cfg.MaintenanceMarginRatio))
	} else {
		liqPrice = fillPrice.Mul(one.Add(invLev).Sub(cfg.MaintenanceMarginRatio))
	}

	if err := acct.LockMargin(margin, side); err != nil {
		return nil, err
	}
	acct.ApplyFee(entryFee)

	pos := &Position{
		Symbol:           m.symbol,
		Side:             side,
		EntryPrice:       fillPrice,
		Size:             size,
		Leverage:         cfg.Leverage,
		Margin:           margin,
		EntryTime:        now,
		EntryFee:         entryFee,
		LiquidationPrice: liqPrice,
		HighestPrice:     fillPrice,
		LowestPrice:      fillPrice,
	}
	if sig.StopLoss > 0 {
		pos.StopLoss = decimal.NewFromFloat(sig.StopLoss)
	}
	if sig.TakeProfit > 0 {
		pos.TakeProfit = decimal.NewFromFloat(sig.TakeProfit)
	}
	if sig.TrailingStop > 0 {
		pos.TrailingStop = decimal.NewFromFloat(sig.TrailingStop)
		pos.updateTrailingStop()
	}

	if side == account.SideLong {
		m.long = pos
	} else {
		m.short = pos
	}

	m.logger.Debug("position opened",
		zap.String("symbol", m.symbol),
		zap.String("side", string(side)),
		zap.String("entry_price", fillPrice.String()),
		zap.String("size", size.String()),
		zap.String("margin", margin.String()),
		zap.String("liquidation_price", liqPrice.String()))
	return pos, nil
}

// Close fully closes the side's slot at the given reference price and emits
// the trade record. Partial closes are not modeled.
func (m *Manager) Close(side account.Side, price decimal.Decimal, acct *account.FuturesAccount, cfg Config, reason string, now time.Time) (model.TradeRecord, error) {
	pos := m.Get(side)
	if pos == nil {
		return model.TradeRecord{}, fmt.Errorf("%w: no %s position on %s", ErrPositionNotFound, side, m.symbol)
	}

	var fillPrice, realized decimal.Decimal
	if side == account.SideLong {
		fillPrice = price.Mul(one.Sub(cfg.Slippage))
		realized = fillPrice.Sub(pos.EntryPrice).Mul(pos.Size)
	} else {
		fillPrice = price.Mul(one.Add(cfg.Slippage))
		realized = pos.EntryPrice.Sub(fillPrice).Mul(pos.Size)
	}
	exitFee := fillPrice.Mul(pos.Size).Mul(cfg.TakerFee)

	if err := acct.ReleaseMargin(pos.Margin, side); err != nil {
		return model.TradeRecord{}, err
	}
	acct.ApplyPnL(realized.Sub(exitFee))

	pnl := realized.Sub(exitFee).Sub(pos.EntryFee)
	m.seq++
	record := model.TradeRecord{
		TradeID:       fmt.Sprintf("%s-%s-%d", m.symbol, side, m.seq),
		Symbol:        m.symbol,
		Action:        "close_" + string(side),
		EntryTime:     pos.EntryTime,
		EntryPrice:    pos.EntryPrice,
		ExitTime:      now,
		ExitPrice:     fillPrice,
		Quantity:      pos.Size,
		PnL:           pnl,
		PnLPct:        safeDiv(pnl, pos.Margin),
		Fees:          pos.EntryFee.Add(exitFee),
		HoldingPeriod: now.Sub(pos.EntryTime),
		Reason:        reason,
	}

	if side == account.SideLong {
		m.long = nil
	} else {
		m.short = nil
	}

	m.logger.Debug("position closed",
		zap.String("symbol", m.symbol),
		zap.String("side", string(side)),
		zap.String("exit_price", fillPrice.String()),
		zap.String("pnl", pnl.String()),
		zap.String("reason", reason))
	return record, nil
}

func safeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}

// MarkToMarket refreshes unrealized PnL against the mark price and pushes
// the price extremes (and with them the trailing-stop levels) out to the
// bar's high and low.
func (m *Manager) MarkToMarket(mark, high, low decimal.Decimal) {
	for _, pos := range []*Position{m.long, m.short} {
		if pos == nil {
			continue
		}
		if pos.Side == account.SideLong {
			pos.UnrealizedPnL = mark.Sub(pos.EntryPrice).Mul(pos.Size)
		} else {
			pos.UnrealizedPnL = pos.EntryPrice.Sub(mark).Mul(pos.Size)
		}
		if high.GreaterThan(pos.HighestPrice) {
			pos.HighestPrice = high
		}
		if low.LessThan(pos.LowestPrice) {
			pos.LowestPrice = low
		}
		pos.updateTrailingStop()
	}
}

func (p *Position) updateTrailingStop() {
	if p.TrailingStop.IsZero() {
		return
	}
	if p.Side == account.SideLong {
		p.TrailingStopPrice = p.HighestPrice.Mul(one.Sub(p.TrailingStop))
	} else {
		p.TrailingStopPrice = p.LowestPrice.Mul(one.Add(p.TrailingStop))
	}
}

// CheckStopOrders evaluates stop conditions against the bar's price range:
// adverse triggers fire on the extreme that moved against the position,
// take-profit on the favorable one. At most one trigger fires per slot, in
// strict priority: liquidation, stop-loss, take-profit, trailing stop. Long
// is reported before short.
func (m *Manager) CheckStopOrders(high, low decimal.Decimal) []StopTrigger {
	var triggers []StopTrigger
	for _, pos := range []*Position{m.long, m.short} {
		if pos == nil {
			continue
		}
		if trig, ok := pos.stopTrigger(high, low); ok {
			triggers = append(triggers, trig)
		}
	}
	return triggers
}

func (p *Position) stopTrigger(high, low decimal.Decimal) (StopTrigger, bool) {
	crossedDown := func(level decimal.Decimal) bool { return !level.IsZero() && low.LessThanOrEqual(level) }
	crossedUp := func(level decimal.Decimal) bool { return !level.IsZero() && high.GreaterThanOrEqual(level) }

	var reason string
	var mark decimal.Decimal
	if p.Side == account.SideLong {
		switch {
		case crossedDown(p.LiquidationPrice):
			reason, mark = ReasonLiquidation, low
		case crossedDown(p.StopLoss):
			reason, mark = ReasonStopLoss, low
		case crossedUp(p.TakeProfit):
			reason, mark = ReasonTakeProfit, high
		case crossedDown(p.TrailingStopPrice):
			reason, mark = ReasonTrailingStop, low
		}
	} else {
		switch {
		case crossedUp(p.LiquidationPrice):
			reason, mark = ReasonLiquidation, high
		case crossedUp(p.StopLoss):
			reason, mark = ReasonStopLoss, high
		case crossedDown(p.TakeProfit):
			reason, mark = ReasonTakeProfit, low
		case crossedUp(p.TrailingStopPrice):
			reason, mark = ReasonTrailingStop, high
		}
	}
	if reason == "" {
		return StopTrigger{}, false
	}
	return StopTrigger{Side: p.Side, Reason: reason, Mark: mark}, true
}

// CloseAll flushes both slots, long first.
func (m *Manager) CloseAll(price decimal.Decimal, acct *account.FuturesAccount, cfg Config, reason string, now time.Time) []model.TradeRecord {
	var records []model.TradeRecord
	for _, side := range []account.Side{account.SideLong, account.SideShort} {
		if !m.Has(side) {
			continue
		}
		record, err := m.Close(side, price, acct, cfg, reason, now)
		if err != nil {
			m.logger.Error("close_all failed", zap.String("side", string(side)), zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records
}
