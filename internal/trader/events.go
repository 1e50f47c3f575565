// Package trader executes resolved signals against the simulated accounts.
// The events trader bets on bar direction; the futures trader drives the
// hedge-mode position manager.
package trader

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quant-engine/internal/account"
	"quant-engine/internal/model"
)

// EventsConfig tunes the event-contract trader.
type EventsConfig struct {
	// PayoutMultiplier of a winning contract. Values >= 1 pay
	// stake*(multiplier-1) on a win; values < 1 pay stake*multiplier.
	PayoutMultiplier decimal.Decimal
	DefaultStake     decimal.Decimal
}

func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		PayoutMultiplier: decimal.NewFromFloat(1.8),
		DefaultStake:     decimal.NewFromInt(100),
	}
}

type bet struct {
	direction model.Action // UP or DOWN
	stake     decimal.Decimal
	placedAt  time.Time
	reason    string
}

// EventsTrader plays one-bar direction contracts: a bet placed during a bar
// wins iff the bar closes strictly in the bet's direction. Ties lose.
type EventsTrader struct {
	symbol  string
	acct    *account.SimpleAccount
	cfg     EventsConfig
	pending []bet
	seq     int
	logger  *zap.Logger
}

func NewEventsTrader(symbol string, acct *account.SimpleAccount, cfg EventsConfig, logger *zap.Logger) *EventsTrader {
	return &EventsTrader{symbol: symbol, acct: acct, cfg: cfg, logger: logger}
}

func (t *EventsTrader) Name() string { return "events" }

func (t *EventsTrader) Balance() decimal.Decimal { return t.acct.Balance() }

// OnSignal stakes a contract on the current bar. LONG/BUY map to UP and
// SHORT/SELL to DOWN; close-family and HOLD signals have no meaning here and
// produce a warning or are ignored.
func (t *EventsTrader) OnSignal(sig model.Signal, now time.Time) (warning string) {
	var direction model.Action
	switch sig.Action {
	case model.ActionUp, model.ActionLong, model.ActionBuy:
		direction = model.ActionUp
	case model.ActionDown, model.ActionShort, model.ActionSell:
		direction = model.ActionDown
	case model.ActionHold:
		return ""
	default:
		return fmt.Sprintf("events trader cannot execute %s", sig.Action)
	}

	stake := t.cfg.DefaultStake
	if sig.Quantity > 0 {
		stake = decimal.NewFromFloat(sig.Quantity)
	}
	if stake.GreaterThan(t.acct.Balance()) {
		return fmt.Sprintf("stake %s exceeds balance %s", stake, t.acct.Balance())
	}

	// Stake is debited up front; the payout lands at bar resolution.
	t.acct.Adjust(stake.Neg())
	t.pending = append(t.pending, bet{direction: direction, stake: stake, placedAt: now, reason: sig.Reason})
	t.logger.Debug("contract staked",
		zap.String("symbol", t.symbol),
		zap.String("direction", string(direction)),
		zap.String("stake", stake.String()))
	return ""
}

// ResolveBar settles every pending contract against the finished bar. A bar
// that closes exactly where it opened resolves neither direction as a win.
func (t *EventsTrader) ResolveBar(bar model.KLine) []model.TradeRecord {
	if len(t.pending) == 0 {
		return nil
	}
	records := make([]model.TradeRecord, 0, len(t.pending))
	closeTime := time.UnixMilli(bar.CloseTime).UTC()

	for _, b := range t.pending {
		var won bool
		if b.direction == model.ActionUp {
			won = bar.Close.GreaterThan(bar.Open)
		} else {
			won = bar.Close.LessThan(bar.Open)
		}

		// Winning contracts pay stake*multiplier back (multiplier >= 1)
		// or stake plus stake*multiplier (fractional multipliers quote the
		// net gain). Losses and ties pay nothing.
		payout := decimal.Zero
		if won {
			if t.cfg.PayoutMultiplier.GreaterThanOrEqual(decimal.NewFromInt(1)) {
				payout = b.stake.Mul(t.cfg.PayoutMultiplier)
			} else {
				payout = b.stake.Add(b.stake.Mul(t.cfg.PayoutMultiplier))
			}
		}
		t.acct.Adjust(payout)
		pnl := payout.Sub(b.stake)

		reason := "lost"
		if won {
			reason = "won"
		}
		t.seq++
		records = append(records, model.TradeRecord{
			TradeID:       fmt.Sprintf("%s-event-%d", t.symbol, t.seq),
			Symbol:        t.symbol,
			Action:        string(b.direction),
			EntryTime:     b.placedAt,
			EntryPrice:    bar.Open,
			ExitTime:      closeTime,
			ExitPrice:     bar.Close,
			Quantity:      b.stake,
			PnL:           pnl,
			PnLPct:        safePct(pnl, b.stake),
			HoldingPeriod: closeTime.Sub(b.placedAt),
			Reason:        reason,
		})
	}
	t.pending = t.pending[:0]
	return records
}

func (t *EventsTrader) PendingCount() int { return len(t.pending) }

func safePct(pnl, stake decimal.Decimal) decimal.Decimal {
	if stake.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(stake)
}
