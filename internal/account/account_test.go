package account

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quant-engine/internal/model"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestSimpleAccountAdjustAndSettle(t *testing.T) {
	acct := NewSimpleAccount(d(1000))
	acct.Adjust(d(-100))
	assert.True(t, acct.Balance().Equal(d(900)))

	acct.Adjust(d(180))
	assert.True(t, acct.Balance().Equal(d(1080)))

	tr := model.TradeResult{PnL: d(80)}
	acct.ApplyTradeResult(&tr)
	assert.True(t, tr.BalanceAfter.Equal(d(1160)))
}

func TestFuturesAccountMarginLifecycle(t *testing.T) {
	acct := NewFuturesAccount(d(10000))

	require.NoError(t, acct.LockMargin(d(1000), SideLong))
	require.NoError(t, acct.LockMargin(d(500), SideShort))

	assert.True(t, acct.Cash().Equal(d(8500)))
	assert.True(t, acct.MarginLockedSide(SideLong).Equal(d(1000)))
	assert.True(t, acct.MarginLockedSide(SideShort).Equal(d(500)))
	assert.True(t, acct.MarginLocked().Equal(d(1500)))
	assert.True(t, acct.WalletBalance().Equal(d(10000)))

	require.NoError(t, acct.ReleaseMargin(d(1000), SideLong))
	assert.True(t, acct.Cash().Equal(d(9500)))
	assert.True(t, acct.WalletBalance().Equal(d(10000)))
}

func TestFuturesAccountLockRejections(t *testing.T) {
	acct := NewFuturesAccount(d(100))

	err := acct.LockMargin(d(200), SideLong)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, acct.Cash().Equal(d(100)))

	assert.Error(t, acct.LockMargin(d(-1), SideLong))
	assert.Error(t, acct.ReleaseMargin(d(1), SideShort))
}

func TestFuturesAccountWalletInvariantUnderFeesAndPnL(t *testing.T) {
	acct := NewFuturesAccount(d(10000))
	require.NoError(t, acct.LockMargin(d(1000), SideLong))

	acct.ApplyFee(d(4))
	acct.ApplyPnL(d(984.6))
	require.NoError(t, acct.ReleaseMargin(d(1000), SideLong))

	// wallet = cash + locked margin at every step
	assert.True(t, acct.WalletBalance().Equal(d(10000).Sub(d(4)).Add(d(984.6))))
	assert.True(t, acct.MarginLocked().IsZero())
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, SideShort, SideLong.Opposite())
	assert.Equal(t, SideLong, SideShort.Opposite())
}
