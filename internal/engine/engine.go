// Package engine drives a strategy over a bar stream: one strategy call per
// bar, bars consumed strictly monotonically, every mutation funneled through
// the traders.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quant-engine/internal/account"
	"quant-engine/internal/config"
	"quant-engine/internal/data"
	"quant-engine/internal/indicator"
	"quant-engine/internal/infrastructure"
	"quant-engine/internal/model"
	"quant-engine/internal/position"
	"quant-engine/internal/report"
	"quant-engine/internal/risk"
	sig "quant-engine/internal/signal"
	"quant-engine/internal/strategy"
	"quant-engine/internal/trader"
)

// Mode selects the bar source.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModePaper    Mode = "paper"
	ModeLive     Mode = "live"
)

// Market selects the instrument the run trades.
type Market string

const (
	MarketFutures Market = "futures"
	MarketEvents  Market = "events"
)

// ErrUnsupportedMode rejects modes the engine cannot drive yet. Live order
// routing needs a TradingAdapter behind it.
var ErrUnsupportedMode = errors.New("unsupported engine mode")

// Termination reasons carried on the complete event.
const (
	reasonSessionEnd   = "session_end"
	reasonRiskCritical = "risk_critical"
	reasonCancelled    = "cancelled"
)

// RunConfig describes one engine run.
type RunConfig struct {
	Mode       Mode
	Market     Market
	Symbol     string
	Interval   string
	Exchange   string
	MarketType data.MarketType

	Start time.Time // ignored in paper mode
	End   time.Time

	InitialCapital decimal.Decimal
	Strategy       string
	StrategyConfig map[string]any
	Indicators     []string

	// Speed is the replay pacing factor in [0, 999]; it only affects event
	// flush batching, never the logical sequence.
	Speed float64

	PayoutMultiplier float64 // events market
	DefaultStake     float64
}

func (rc *RunConfig) normalize(cfg config.Config) error {
	if rc.Mode == "" {
		rc.Mode = ModeBacktest
	}
	if rc.Market == "" {
		rc.Market = MarketFutures
	}
	if rc.Exchange == "" {
		rc.Exchange = "binance"
	}
	if rc.MarketType == "" {
		rc.MarketType = data.MarketSpot
		if rc.Market == MarketFutures {
			rc.MarketType = data.MarketFutures
		}
	}
	if !model.IsValidInterval(rc.Interval) {
		return fmt.Errorf("invalid interval %q", rc.Interval)
	}
	if rc.Speed > cfg.Engine.MaxSpeed {
		rc.Speed = cfg.Engine.MaxSpeed
	}
	if len(rc.Indicators) == 0 {
		rc.Indicators = cfg.Engine.DefaultIndicators
	}
	if rc.Mode == ModeBacktest && !rc.End.After(rc.Start) {
		return fmt.Errorf("backtest range [%s, %s) is empty", rc.Start, rc.End)
	}
	return nil
}

// Engine runs one strategy session and owns all of its mutable state.
type Engine struct {
	cfg    config.Config
	run    RunConfig
	dc     *data.DataCenter
	logger *zap.Logger
	em     *emitter

	strat strategy.Strategy
	specs []indicator.Spec

	futures *trader.FuturesTrader
	events  *trader.EventsTrader
	riskMgr *risk.Manager

	series      model.OHLCVSeries
	trades      []model.TradeRecord
	curve       []model.EquityPoint
	stopTrading bool
	ticks       int
}

func New(cfg config.Config, dc *data.DataCenter, run RunConfig, logger *zap.Logger) (*Engine, error) {
	if run.Mode == ModeLive {
		return nil, fmt.Errorf("%w: live trading requires an order-routing adapter", ErrUnsupportedMode)
	}
	if err := run.normalize(cfg); err != nil {
		return nil, err
	}

	strat, err := strategy.New(run.Strategy, run.StrategyConfig)
	if err != nil {
		return nil, err
	}

	specs := make([]indicator.Spec, 0, len(run.Indicators))
	for _, s := range run.Indicators {
		spec, err := indicator.ParseSpec(s)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if req, ok := strat.(strategy.IndicatorRequirer); ok {
		specs = append(specs, req.IndicatorRequirements()...)
	}

	e := &Engine{
		cfg:    cfg,
		run:    run,
		dc:     dc,
		logger: logger.With(zap.String("mode", string(run.Mode)), zap.String("symbol", run.Symbol)),
		em:     newEmitter(run.Speed),
		strat:  strat,
		specs:  specs,
	}

	switch run.Market {
	case MarketEvents:
		ecfg := trader.DefaultEventsConfig()
		if run.PayoutMultiplier > 0 {
			ecfg.PayoutMultiplier = decimal.NewFromFloat(run.PayoutMultiplier)
		}
		if run.DefaultStake > 0 {
			ecfg.DefaultStake = decimal.NewFromFloat(run.DefaultStake)
		}
		e.events = trader.NewEventsTrader(run.Symbol, account.NewSimpleAccount(run.InitialCapital), ecfg, e.logger)
	case MarketFutures:
		pcfg := position.Config{
			Leverage:               cfg.Trading.DefaultLeverage,
			PositionSizePct:        decimal.NewFromFloat(cfg.Trading.DefaultPositionSizePct),
			TakerFee:               decimal.NewFromFloat(cfg.Trading.TakerFee),
			MakerFee:               decimal.NewFromFloat(cfg.Trading.MakerFee),
			Slippage:               decimal.NewFromFloat(cfg.Trading.Slippage),
			MaintenanceMarginRatio: decimal.NewFromFloat(cfg.Trading.MaintenanceMarginRatio),
		}
		e.futures = trader.NewFuturesTrader(run.Symbol, account.NewFuturesAccount(run.InitialCapital), pcfg, e.logger)
	default:
		return nil, fmt.Errorf("unknown market %q", run.Market)
	}

	start := run.Start
	if run.Mode == ModePaper {
		start = time.Now().UTC()
	}
	e.riskMgr = risk.NewManager(cfg.Risk, run.InitialCapital, start, e.logger)
	return e, nil
}

// Events exposes the output stream. It is closed after the complete event.
func (e *Engine) Events() <-chan Event { return e.em.events() }

// warmupBars is the number of extra bars loaded before the requested start.
func (e *Engine) warmupBars() int {
	warmup := strategy.DefaultDataRequirements().WarmupPeriods
	if r, ok := e.strat.(strategy.DataRequirer); ok {
		req := r.GetDataRequirements(e.run.Interval, e.run.StrategyConfig)
		if req.WarmupPeriods > warmup {
			warmup = req.WarmupPeriods
		}
		if req.MinBars > warmup {
			warmup = req.MinBars
		}
	}
	if w := indicator.WarmupPeriods(e.specs); w > warmup {
		warmup = w
	}
	return warmup
}

// Run drives the session to completion and returns the final report. The
// event channel is closed before Run returns.
func (e *Engine) Run(ctx context.Context) (model.Report, error) {
	defer e.em.close()

	switch e.run.Mode {
	case ModeBacktest:
		return e.runBacktest(ctx)
	case ModePaper:
		return e.runPaper(ctx)
	default:
		return model.Report{}, ErrUnsupportedMode
	}
}

func (e *Engine) runBacktest(ctx context.Context) (model.Report, error) {
	warmup := e.warmupBars()
	startMs := e.run.Start.UTC().UnixMilli()
	loadStart := startMs
	if ms, err := model.IntervalMillis(e.run.Interval); err == nil {
		loadStart = startMs - int64(warmup)*ms
	}

	loader := data.NewStreamLoader(e.dc, data.LoaderConfig{
		Symbol:     e.run.Symbol,
		Interval:   e.run.Interval,
		Exchange:   e.run.Exchange,
		MarketType: e.run.MarketType,
		Start:      loadStart,
		End:        e.run.End.UTC().UnixMilli(),
		BatchSize:  e.cfg.Engine.BatchSize,
		Preload:    e.cfg.Engine.PreloadEnabled,
	}, e.logger)

	bars, errc := loader.Bars(ctx)
	var lastBar *model.KLine

	for bar := range bars {
		bar := bar
		e.series.Append(bar)
		if bar.OpenTime < startMs {
			continue // warm-up, no trading
		}
		lastBar = &bar

		critical := e.tick(bar)
		if critical {
			return e.finalize(lastBar, reasonRiskCritical, nil)
		}
		if ctx.Err() != nil {
			return e.finalize(lastBar, reasonCancelled, ctx.Err())
		}
	}

	if err := <-errc; err != nil {
		if errors.Is(err, context.Canceled) {
			return e.finalize(lastBar, reasonCancelled, err)
		}
		e.emitError(err, lastBar)
		rep, _ := e.finalize(lastBar, reasonSessionEnd, nil)
		return rep, err
	}
	return e.finalize(lastBar, reasonSessionEnd, nil)
}

func (e *Engine) runPaper(ctx context.Context) (model.Report, error) {
	if err := e.preloadPaperWindow(ctx); err != nil {
		e.logger.Warn("paper warm-up preload failed, starting cold", zap.Error(err))
	}

	stream := data.NewKlineStream(e.run.Symbol, e.run.Interval, e.logger)
	barChan := make(chan model.KLine, 16)
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		stream.Run(streamCtx, barChan)
		close(barChan)
	}()

	var lastBar *model.KLine
	for {
		select {
		case <-ctx.Done():
			return e.finalize(lastBar, reasonCancelled, ctx.Err())
		case bar, ok := <-barChan:
			if !ok {
				return e.finalize(lastBar, reasonSessionEnd, nil)
			}
			e.series.Append(bar)
			lastBar = &bar
			if e.tick(bar) {
				return e.finalize(lastBar, reasonRiskCritical, nil)
			}
		}
	}
}

func (e *Engine) preloadPaperWindow(ctx context.Context) error {
	warmup := e.warmupBars()
	if warmup <= 0 {
		return nil
	}
	klines, err := e.dc.GetKlines(ctx, data.MarketDataRequest{
		Symbol:     e.run.Symbol,
		Interval:   e.run.Interval,
		Exchange:   e.run.Exchange,
		MarketType: e.run.MarketType,
		Limit:      warmup,
	})
	if err != nil {
		return err
	}
	for _, k := range klines {
		e.series.Append(k)
	}
	return nil
}

// tick runs the full per-bar pipeline. It reports whether a CRITICAL risk
// level terminated the run.
func (e *Engine) tick(bar model.KLine) (critical bool) {
	barTime := time.UnixMilli(bar.CloseTime).UTC()
	e.ticks++
	infrastructure.TicksProcessed.WithLabelValues(string(e.run.Mode)).Inc()

	var stopRecords, tradeRecords []model.TradeRecord
	var warnings []string

	// Mark-to-market and the stop sweep come before anything can trade on
	// this bar. Mark price is the bar close; stops see the full bar range.
	if e.futures != nil {
		e.futures.MarkToMarket(bar.Close, bar.High, bar.Low)
		stopRecords = e.futures.SweepStops(bar.High, bar.Low, barTime)
		e.trades = append(e.trades, stopRecords...)
	}

	e.recordEquity(bar)

	result := e.executeStrategy(bar)
	resolved := sig.Resolve(result.Signals, sig.DefaultResolverConfig())

	for _, s := range resolved {
		if err := s.Validate(); err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		if e.stopTrading && !s.Action.IsClose() {
			warnings = append(warnings, fmt.Sprintf("open signal %s discarded: trading stopped by risk control", s.Action))
			continue
		}
		records, warning := e.executeSignal(s, bar, barTime)
		tradeRecords = append(tradeRecords, records...)
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}
	if e.events != nil {
		records := e.events.ResolveBar(bar)
		tradeRecords = append(tradeRecords, records...)
	}
	e.trades = append(e.trades, tradeRecords...)

	riskRes := e.riskMgr.CheckRisk(risk.Snapshot{
		Equity:       e.equity(),
		MarginLocked: e.marginLocked(),
		Now:          barTime,
	}, e.trades)

	switch riskRes.Action {
	case risk.ActionStopTrading:
		if !e.stopTrading {
			e.stopTrading = true
			warnings = append(warnings, fmt.Sprintf("risk control stopped trading: %v", riskRes.TriggeredRules))
		}
	case risk.ActionWarn:
		warnings = append(warnings, fmt.Sprintf("risk warning: %v", riskRes.TriggeredRules))
	}

	e.emitTickEvents(bar, barTime, stopRecords, tradeRecords, warnings)
	return riskRes.Level == risk.LevelCritical
}

func (e *Engine) executeStrategy(bar model.KLine) strategy.Result {
	ctx := strategy.Context{
		Symbol:      e.run.Symbol,
		Interval:    e.run.Interval,
		CurrentTime: time.UnixMilli(bar.CloseTime).UTC(),
		MarketData:  e.series.Columns(),
		Positions:   map[string]decimal.Decimal{},
		Metadata:    map[string]any{},
	}
	if len(e.specs) > 0 {
		indicators, err := indicator.Compute(e.specs, e.series.Close)
		if err != nil {
			e.logger.Error("indicator compute failed", zap.Error(err))
		} else {
			ctx.Indicators = indicators
		}
	}
	if e.futures != nil {
		ctx.AccountBalance = e.futures.Account().Cash()
		ctx.Positions[e.run.Symbol] = e.futures.Manager().NetSize()
	} else {
		ctx.AccountBalance = e.events.Balance()
	}

	result := func() (res strategy.Result) {
		defer func() {
			if r := recover(); r != nil {
				res = strategy.Result{ErrorMessage: fmt.Sprintf("strategy panic: %v", r)}
			}
		}()
		return e.strat.Execute(ctx)
	}()

	if !result.Success {
		// A failing strategy call yields no signals; the run continues.
		if result.ErrorMessage != "" {
			e.logger.Error("strategy execution failed", zap.String("error", result.ErrorMessage))
		}
		result.Signals = nil
	}
	return result
}

func (e *Engine) executeSignal(s model.Signal, bar model.KLine, barTime time.Time) ([]model.TradeRecord, string) {
	if e.events != nil {
		return nil, e.events.OnSignal(s, barTime)
	}
	records, warning, err := e.futures.OnSignal(s, bar.Close, barTime)
	if err != nil {
		return records, err.Error()
	}
	for _, r := range records {
		infrastructure.TradesExecuted.WithLabelValues(r.Symbol, r.Action).Inc()
	}
	return records, warning
}

func (e *Engine) equity() decimal.Decimal {
	if e.futures != nil {
		return e.futures.Equity()
	}
	return e.events.Balance()
}

func (e *Engine) marginLocked() decimal.Decimal {
	if e.futures != nil {
		return e.futures.Account().MarginLocked()
	}
	return decimal.Zero
}

func (e *Engine) recordEquity(bar model.KLine) {
	equity := e.equity()
	peak := e.riskMgr.PeakEquity()
	if equity.GreaterThan(peak) {
		peak = equity
	}
	point := model.EquityPoint{
		Timestamp: bar.CloseTime,
		Equity:    equity,
		Drawdown:  peak.Sub(equity),
	}
	if peak.IsPositive() {
		point.DrawdownPct, _ = peak.Sub(equity).Div(peak).Float64()
	}
	e.curve = append(e.curve, point)
}

// emitTickEvents flushes the per-tick sequence: stops, trades, warnings,
// tick, then progress.
func (e *Engine) emitTickEvents(bar model.KLine, barTime time.Time, stops, trades []model.TradeRecord, warnings []string) {
	for _, r := range append(stops, trades...) {
		e.em.emit(Event{Type: EventTrade, Timestamp: barTime, Data: tradeData(r)})
	}
	for _, w := range warnings {
		e.em.emit(Event{Type: EventWarning, Timestamp: barTime, Data: map[string]any{"message": w}})
	}
	equity, _ := e.equity().Float64()
	e.em.emit(Event{Type: EventTick, Timestamp: barTime, Data: map[string]any{
		"open_time": bar.OpenTime,
		"close":     bar.Close.InexactFloat64(),
		"equity":    equity,
	}})

	if e.run.Mode == ModeBacktest && e.ticks%100 == 0 {
		total := e.run.End.UTC().UnixMilli() - e.run.Start.UTC().UnixMilli()
		if total > 0 {
			done := bar.CloseTime - e.run.Start.UTC().UnixMilli()
			e.em.emit(Event{Type: EventProgress, Timestamp: barTime, Data: map[string]any{
				"ticks":   e.ticks,
				"percent": float64(done) / float64(total) * 100,
			}})
		}
	}
}

func (e *Engine) emitError(err error, lastBar *model.KLine) {
	ts := time.Now().UTC()
	if lastBar != nil {
		ts = time.UnixMilli(lastBar.CloseTime).UTC()
	}
	e.em.emit(Event{Type: EventError, Timestamp: ts, Data: map[string]any{"error": err.Error()}})
}

// finalize closes all open positions at the last observed price, records the
// final equity point, builds the report, and emits complete.
func (e *Engine) finalize(lastBar *model.KLine, reason string, cause error) (model.Report, error) {
	endTime := time.Now().UTC()
	if lastBar != nil {
		endTime = time.UnixMilli(lastBar.CloseTime).UTC()
	}

	if e.futures != nil && lastBar != nil && e.futures.Manager().HasAny() {
		closeReason := reason
		records := e.futures.CloseAll(lastBar.Close, closeReason, endTime)
		e.trades = append(e.trades, records...)
		for _, r := range records {
			e.em.emit(Event{Type: EventTrade, Timestamp: endTime, Data: tradeData(r)})
		}
	}
	if lastBar != nil {
		e.recordEquity(*lastBar)
	}

	startTime := e.run.Start.UTC()
	if e.run.Mode == ModePaper && len(e.curve) > 0 {
		startTime = time.UnixMilli(e.curve[0].Timestamp).UTC()
	}

	final := e.finalWallet()
	rep := report.Build(report.Input{
		StrategyName:   e.strat.Name(),
		Symbol:         e.run.Symbol,
		Interval:       e.run.Interval,
		StartTime:      startTime,
		EndTime:        endTime,
		InitialCapital: e.run.InitialCapital,
		FinalCapital:   final,
		Trades:         e.trades,
		EquityCurve:    e.curve,
		Metadata: map[string]any{
			"mode":              string(e.run.Mode),
			"market":            string(e.run.Market),
			"mark_price_source": "close",
			"reason":            reason,
		},
	})

	payload := map[string]any{
		"reason":       reason,
		"total_trades": rep.TotalTrades,
		"final_equity": final.InexactFloat64(),
		"cancelled":    reason == reasonCancelled,
	}
	if reason == reasonRiskCritical {
		payload["triggered_rules"] = e.lastTriggeredRules()
	}
	e.em.emit(Event{Type: EventComplete, Timestamp: endTime, Data: payload})

	e.logger.Info("run complete",
		zap.String("reason", reason),
		zap.Int("ticks", e.ticks),
		zap.Int("trades", rep.TotalTrades),
		zap.String("final_capital", final.String()))
	return rep, cause
}

func (e *Engine) finalWallet() decimal.Decimal {
	if e.futures != nil {
		return e.futures.Account().WalletBalance()
	}
	return e.events.Balance()
}

// lastTriggeredRules re-runs the risk check on the final state to report the
// rules that forced termination.
func (e *Engine) lastTriggeredRules() []string {
	ts := time.Now().UTC()
	if len(e.curve) > 0 {
		ts = time.UnixMilli(e.curve[len(e.curve)-1].Timestamp).UTC()
	}
	res := e.riskMgr.CheckRisk(risk.Snapshot{
		Equity:       e.equity(),
		MarginLocked: e.marginLocked(),
		Now:          ts,
	}, e.trades)
	return res.TriggeredRules
}

func tradeData(r model.TradeRecord) map[string]any {
	return map[string]any{
		"trade_id":    r.TradeID,
		"symbol":      r.Symbol,
		"action":      r.Action,
		"entry_price": r.EntryPrice.InexactFloat64(),
		"exit_price":  r.ExitPrice.InexactFloat64(),
		"quantity":    r.Quantity.InexactFloat64(),
		"pnl":         r.PnL.InexactFloat64(),
		"reason":      r.Reason,
	}
}
