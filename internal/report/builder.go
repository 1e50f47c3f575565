// Package report folds trade records and the equity curve into the run
// statistics: returns, drawdown, and the Sharpe/Sortino/Calmar family.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"quant-engine/internal/model"
)

// Input is everything the builder needs from a finished run.
type Input struct {
	StrategyName   string
	Symbol         string
	Interval       string
	StartTime      time.Time
	EndTime        time.Time
	InitialCapital decimal.Decimal
	FinalCapital   decimal.Decimal
	Trades         []model.TradeRecord
	EquityCurve    []model.EquityPoint
	Metadata       map[string]any
}

const tradingDaysPerYear = 365.0

// Build computes the full report. Every ratio with a zero denominator
// reports 0 rather than NaN or Inf, except profit factor which is +Inf for
// a run with gains and no losses.
func Build(in Input) model.Report {
	rep := model.Report{
		StrategyName:   in.StrategyName,
		Symbol:         in.Symbol,
		Interval:       in.Interval,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		InitialCapital: in.InitialCapital,
		FinalCapital:   in.FinalCapital,
		TotalPnL:       in.FinalCapital.Sub(in.InitialCapital),
		TradesLog:      in.Trades,
		EquityCurve:    in.EquityCurve,
		Metadata:       in.Metadata,
	}
	rep.DurationDays = in.EndTime.Sub(in.StartTime).Hours() / 24

	if in.InitialCapital.IsPositive() {
		rep.TotalReturn, _ = rep.TotalPnL.Div(in.InitialCapital).Float64()
	}
	if rep.DurationDays > 0 {
		growth := 1 + rep.TotalReturn
		if growth > 0 {
			rep.AnnualReturn = math.Pow(growth, tradingDaysPerYear/rep.DurationDays) - 1
		} else {
			rep.AnnualReturn = -1
		}
	}

	tallyTrades(&rep, in.Trades)
	rep.MaxDrawdownPct = maxDrawdown(in.EquityCurve)

	returns := dailyReturns(in.EquityCurve)
	rep.SharpeRatio = sharpe(returns)
	rep.SortinoRatio = sortino(returns)
	if rep.MaxDrawdownPct > 0 {
		rep.CalmarRatio = rep.AnnualReturn / rep.MaxDrawdownPct
	}
	return rep
}

func tallyTrades(rep *model.Report, trades []model.TradeRecord) {
	rep.TotalTrades = len(trades)
	grossWin := decimal.Zero
	grossLoss := decimal.Zero
	for _, tr := range trades {
		// break-even trades fall into the losing bucket
		if tr.PnL.IsPositive() {
			rep.WinningTrades++
			grossWin = grossWin.Add(tr.PnL)
		} else {
			rep.LosingTrades++
			grossLoss = grossLoss.Add(tr.PnL.Neg())
		}
	}
	if rep.TotalTrades > 0 {
		rep.WinRate = float64(rep.WinningTrades) / float64(rep.TotalTrades)
	}
	if rep.WinningTrades > 0 {
		rep.AvgWin = grossWin.Div(decimal.NewFromInt(int64(rep.WinningTrades)))
	}
	if rep.LosingTrades > 0 {
		rep.AvgLoss = grossLoss.Div(decimal.NewFromInt(int64(rep.LosingTrades)))
	}
	switch {
	case grossLoss.IsPositive():
		rep.ProfitFactor, _ = grossWin.Div(grossLoss).Float64()
	case grossWin.IsPositive():
		rep.ProfitFactor = math.Inf(1)
	}
}

func maxDrawdown(curve []model.EquityPoint) float64 {
	maxDD := 0.0
	for _, pt := range curve {
		if pt.DrawdownPct > maxDD {
			maxDD = pt.DrawdownPct
		}
	}
	return maxDD
}

// dailyReturns resamples the equity curve to one closing value per UTC day
// and returns the day-over-day fractional changes.
func dailyReturns(curve []model.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	lastOfDay := map[string]float64{}
	var days []string
	for _, pt := range curve {
		day := time.UnixMilli(pt.Timestamp).UTC().Format("2006-01-02")
		if _, seen := lastOfDay[day]; !seen {
			days = append(days, day)
		}
		eq, _ := pt.Equity.Float64()
		lastOfDay[day] = eq
	}
	sort.Strings(days)

	var returns []float64
	for i := 1; i < len(days); i++ {
		prev := lastOfDay[days[i-1]]
		if prev == 0 {
			continue
		}
		returns = append(returns, (lastOfDay[days[i]]-prev)/prev)
	}
	return returns
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := meanOf(returns)
	sd := stdev(returns, m)
	if sd == 0 {
		return 0
	}
	return m / sd * math.Sqrt(tradingDaysPerYear)
}

// sortino penalizes only downside volatility.
func sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := meanOf(returns)
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, r := range downside {
		sumSq += r * r
	}
	dd := math.Sqrt(sumSq / float64(len(downside)))
	if dd == 0 {
		return 0
	}
	return m / dd * math.Sqrt(tradingDaysPerYear)
}

func meanOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdev(values []float64, mean float64) float64 {
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}
