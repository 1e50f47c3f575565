package trader

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quant-engine/internal/account"
	"quant-engine/internal/model"
	"quant-engine/internal/position"
)

// FuturesTrader translates resolved signals into operations on the
// hedge-mode position manager. Opens against an occupied slot and closes
// against an empty one are soft failures reported as warnings.
type FuturesTrader struct {
	symbol  string
	acct    *account.FuturesAccount
	manager *position.Manager
	cfg     position.Config
	logger  *zap.Logger
}

func NewFuturesTrader(symbol string, acct *account.FuturesAccount, cfg position.Config, logger *zap.Logger) *FuturesTrader {
	return &FuturesTrader{
		symbol:  symbol,
		acct:    acct,
		manager: position.NewManager(symbol, logger),
		cfg:     cfg,
		logger:  logger,
	}
}

func (t *FuturesTrader) Name() string               { return "futures" }
func (t *FuturesTrader) Manager() *position.Manager { return t.manager }
func (t *FuturesTrader) Account() *account.FuturesAccount {
	return t.acct
}

// OnSignal executes one resolved signal at the given reference price.
// BUY/SELL are treated as LONG/SHORT aliases. HOLD is a no-op.
func (t *FuturesTrader) OnSignal(sig model.Signal, price decimal.Decimal, now time.Time) (records []model.TradeRecord, warning string, err error) {
	switch sig.Action {
	case model.ActionLong, model.ActionBuy:
		return t.open(sig, price, account.SideLong, now)
	case model.ActionShort, model.ActionSell:
		return t.open(sig, price, account.SideShort, now)
	case model.ActionCloseLong:
		return t.close(account.SideLong, price, now)
	case model.ActionCloseShort:
		return t.close(account.SideShort, price, now)
	case model.ActionClose:
		recs := t.manager.CloseAll(price, t.acct, t.cfg, position.ReasonSignal, now)
		return recs, "", nil
	case model.ActionHold:
		return nil, "", nil
	default:
		return nil, fmt.Sprintf("futures trader cannot execute %s", sig.Action), nil
	}
}

func (t *FuturesTrader) open(sig model.Signal, price decimal.Decimal, side account.Side, now time.Time) ([]model.TradeRecord, string, error) {
	_, err := t.manager.Open(sig, price, side, t.acct, t.cfg, now)
	switch {
	case errors.Is(err, position.ErrDuplicatePosition):
		return nil, fmt.Sprintf("%s %s position already open", t.symbol, side), nil
	case errors.Is(err, account.ErrInsufficientFunds):
		return nil, fmt.Sprintf("cannot open %s %s: %v", t.symbol, side, err), nil
	case err != nil:
		return nil, "", err
	}
	return nil, "", nil
}

func (t *FuturesTrader) close(side account.Side, price decimal.Decimal, now time.Time) ([]model.TradeRecord, string, error) {
	record, err := t.manager.Close(side, price, t.acct, t.cfg, position.ReasonSignal, now)
	if errors.Is(err, position.ErrPositionNotFound) {
		return nil, fmt.Sprintf("no %s position on %s to close", side, t.symbol), nil
	}
	if err != nil {
		return nil, "", err
	}
	return []model.TradeRecord{record}, "", nil
}

// MarkToMarket refreshes unrealized PnL and trailing levels from the bar.
func (t *FuturesTrader) MarkToMarket(mark, high, low decimal.Decimal) {
	t.manager.MarkToMarket(mark, high, low)
}

// SweepStops closes every slot whose stop condition fired within the bar's
// range, at the mark price that fired it.
func (t *FuturesTrader) SweepStops(high, low decimal.Decimal, now time.Time) []model.TradeRecord {
	triggers := t.manager.CheckStopOrders(high, low)
	if len(triggers) == 0 {
		return nil
	}
	records := make([]model.TradeRecord, 0, len(triggers))
	for _, trig := range triggers {
		record, err := t.manager.Close(trig.Side, trig.Mark, t.acct, t.cfg, trig.Reason, now)
		if err != nil {
			t.logger.Error("stop close failed",
				zap.String("side", string(trig.Side)),
				zap.String("reason", trig.Reason),
				zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records
}

// CloseAll flattens both slots, long first.
func (t *FuturesTrader) CloseAll(price decimal.Decimal, reason string, now time.Time) []model.TradeRecord {
	return t.manager.CloseAll(price, t.acct, t.cfg, reason, now)
}

// Equity is wallet balance plus unrealized PnL.
func (t *FuturesTrader) Equity() decimal.Decimal {
	return t.acct.WalletBalance().Add(t.manager.TotalUnrealized())
}
