// Package api exposes the engine over HTTP: launching runs, polling their
// reports, and serving historical bars.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quant-engine/internal/config"
	"quant-engine/internal/data"
	"quant-engine/internal/engine"
	"quant-engine/internal/model"
	"quant-engine/internal/push"
)

// run tracks one engine run from launch to completion.
type run struct {
	ID       string        `json:"run_id"`
	Status   string        `json:"status"` // running | complete | failed
	Report   *model.Report `json:"report,omitempty"`
	Error    string        `json:"error,omitempty"`
	cancel   context.CancelFunc
	finished chan struct{}
}

type Handler struct {
	cfg       config.Config
	dc        *data.DataCenter
	publisher *push.Publisher
	logger    *zap.Logger

	mu   sync.RWMutex
	runs map[string]*run
	seq  atomic.Int64
}

func NewHandler(cfg config.Config, dc *data.DataCenter, publisher *push.Publisher, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		dc:        dc,
		publisher: publisher,
		logger:    logger,
		runs:      make(map[string]*run),
	}
}

// BacktestRequest is the POST /api/v1/backtest body.
type BacktestRequest struct {
	Symbol           string         `json:"symbol" binding:"required"`
	Market           string         `json:"market"` // "futures" (default) | "events"
	Interval         string         `json:"interval" binding:"required"`
	Exchange         string         `json:"exchange"`
	Strategy         string         `json:"strategy" binding:"required"`
	StrategyConfig   map[string]any `json:"strategy_config"`
	Indicators       []string       `json:"indicators"`
	InitialCapital   float64        `json:"initial_capital"`
	StartTime        time.Time      `json:"start_time" binding:"required"`
	EndTime          time.Time      `json:"end_time" binding:"required"`
	Speed            float64        `json:"speed"`
	PayoutMultiplier float64        `json:"payout_multiplier"`
	DefaultStake     float64        `json:"default_stake"`
}

// RunBacktest launches a run and returns its id; events stream on
// engine.events.<run_id> and the report is available once complete.
func (h *Handler) RunBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.InitialCapital <= 0 {
		req.InitialCapital = 10000
	}
	market := engine.Market(req.Market)
	if req.Market == "" {
		market = engine.MarketFutures
	}

	eng, err := engine.New(h.cfg, h.dc, engine.RunConfig{
		Mode:             engine.ModeBacktest,
		Market:           market,
		Symbol:           req.Symbol,
		Interval:         req.Interval,
		Exchange:         req.Exchange,
		Start:            req.StartTime,
		End:              req.EndTime,
		InitialCapital:   decimal.NewFromFloat(req.InitialCapital),
		Strategy:         req.Strategy,
		StrategyConfig:   req.StrategyConfig,
		Indicators:       req.Indicators,
		Speed:            req.Speed,
		PayoutMultiplier: req.PayoutMultiplier,
		DefaultStake:     req.DefaultStake,
	}, h.logger)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := fmt.Sprintf("bt-%d-%d", time.Now().UTC().Unix(), h.seq.Add(1))
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{ID: runID, Status: "running", cancel: cancel, finished: make(chan struct{})}

	h.mu.Lock()
	h.runs[runID] = r
	h.mu.Unlock()

	if h.publisher != nil {
		go h.publisher.PublishRun(runID, eng.Events())
	} else {
		go func() {
			for range eng.Events() {
			}
		}()
	}

	go func() {
		defer cancel()
		defer close(r.finished)
		report, err := eng.Run(ctx)

		h.mu.Lock()
		defer h.mu.Unlock()
		if err != nil && ctx.Err() == nil {
			r.Status = "failed"
			r.Error = err.Error()
			h.logger.Error("backtest run failed", zap.String("run_id", runID), zap.Error(err))
		} else {
			r.Status = "complete"
		}
		r.Report = &report
	}()

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "events_topic": push.SubjectPrefix + runID})
}

// GetBacktest reports the status and, once finished, the report of a run.
func (h *Handler) GetBacktest(c *gin.Context) {
	h.mu.RLock()
	r, ok := h.runs[c.Param("id")]
	if !ok {
		h.mu.RUnlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run id"})
		return
	}
	// Snapshot under the lock: the completion goroutine mutates the shared
	// run entry. The report pointer is written once and never mutated after.
	resp := run{ID: r.ID, Status: r.Status, Report: r.Report, Error: r.Error}
	h.mu.RUnlock()
	c.JSON(http.StatusOK, resp)
}

// CancelBacktest cancels a running run. Cancellation still flushes open
// positions and produces a report.
func (h *Handler) CancelBacktest(c *gin.Context) {
	h.mu.RLock()
	r, ok := h.runs[c.Param("id")]
	h.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run id"})
		return
	}
	r.cancel()
	c.JSON(http.StatusOK, gin.H{"run_id": r.ID, "status": "cancelling"})
}

// GetKLines serves recent bars through the data center (cache, breaker, and
// retries included).
func (h *Handler) GetKLines(c *gin.Context) {
	symbol := data.NormalizeSymbol(c.Param("symbol"))
	interval := c.DefaultQuery("interval", "1m")
	if !model.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid interval %q", interval)})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be in [1, 1500]"})
		return
	}

	md, err := h.dc.GetMarketData(c.Request.Context(), data.MarketDataRequest{
		Symbol:     symbol,
		Interval:   interval,
		Exchange:   c.DefaultQuery("exchange", "binance"),
		MarketType: data.MarketType(c.DefaultQuery("market_type", "spot")),
		Limit:      limit,
	})
	if err != nil {
		h.logger.Error("kline fetch failed", zap.String("symbol", symbol), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream fetch failed"})
		return
	}
	c.JSON(http.StatusOK, md)
}

// GetTicker serves the latest quote for a symbol.
func (h *Handler) GetTicker(c *gin.Context) {
	ticker, err := h.dc.GetTicker(c.Request.Context(),
		c.DefaultQuery("exchange", "binance"),
		data.MarketType(c.DefaultQuery("market_type", "spot")),
		data.NormalizeSymbol(c.Param("symbol")))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream fetch failed"})
		return
	}
	c.JSON(http.StatusOK, ticker)
}

// Stats exposes the data center's cache and breaker counters.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.dc.Stats())
}
