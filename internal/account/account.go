// Package account provides the simulated accounts backing backtest and
// paper runs.
package account

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"quant-engine/internal/model"
)

// ErrInsufficientFunds is returned when a margin lock exceeds free cash.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Side tags the two hedge-mode directions.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the other direction.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// SimpleAccount is cash-only; event-contract runs use it.
type SimpleAccount struct {
	mu   sync.Mutex
	cash decimal.Decimal
}

func NewSimpleAccount(initialCapital decimal.Decimal) *SimpleAccount {
	return &SimpleAccount{cash: initialCapital}
}

func (a *SimpleAccount) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// Adjust applies a signed cash delta: stake debits at contract open and
// payout credits at resolution.
func (a *SimpleAccount) Adjust(delta decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash = a.cash.Add(delta)
}

// ApplyTradeResult settles a trade into cash and stamps the balance after.
func (a *SimpleAccount) ApplyTradeResult(tr *model.TradeResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash = a.cash.Add(tr.PnL)
	tr.BalanceAfter = a.cash
}

// FuturesAccount adds per-direction locked margin on top of free cash.
// Invariant: cash, longMargin, shortMargin are all non-negative and
// wallet = cash + longMargin + shortMargin at every step.
type FuturesAccount struct {
	mu          sync.Mutex
	cash        decimal.Decimal
	longMargin  decimal.Decimal
	shortMargin decimal.Decimal
}

func NewFuturesAccount(initialCapital decimal.Decimal) *FuturesAccount {
	return &FuturesAccount{cash: initialCapital}
}

func (a *FuturesAccount) Cash() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

func (a *FuturesAccount) MarginLocked() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.longMargin.Add(a.shortMargin)
}

func (a *FuturesAccount) MarginLockedSide(side Side) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	if side == SideLong {
		return a.longMargin
	}
	return a.shortMargin
}

// WalletBalance is cash plus all locked margin.
func (a *FuturesAccount) WalletBalance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash.Add(a.longMargin).Add(a.shortMargin)
}

// LockMargin moves amount from cash into the side's margin bucket.
func (a *FuturesAccount) LockMargin(amount decimal.Decimal, side Side) error {
	if amount.IsNegative() {
		return fmt.Errorf("negative margin lock: %s", amount)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount.GreaterThan(a.cash) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, amount, a.cash)
	}
	a.cash = a.cash.Sub(amount)
	if side == SideLong {
		a.longMargin = a.longMargin.Add(amount)
	} else {
		a.shortMargin = a.shortMargin.Add(amount)
	}
	return nil
}

// ReleaseMargin moves amount back into cash. Releasing more than is locked
// is a programming error and fails.
func (a *FuturesAccount) ReleaseMargin(amount decimal.Decimal, side Side) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	locked := &a.longMargin
	if side == SideShort {
		locked = &a.shortMargin
	}
	if amount.GreaterThan(*locked) {
		return fmt.Errorf("release %s exceeds locked %s margin %s", amount, side, *locked)
	}
	*locked = locked.Sub(amount)
	a.cash = a.cash.Add(amount)
	return nil
}

func (a *FuturesAccount) ApplyFee(fee decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash = a.cash.Sub(fee)
}

func (a *FuturesAccount) ApplyPnL(pnl decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash = a.cash.Add(pnl)
}

func (a *FuturesAccount) ApplyTradeResult(tr *model.TradeResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tr.BalanceAfter = a.cash
}
