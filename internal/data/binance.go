package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quant-engine/internal/model"
)

// BinanceAdapter reads market data over the Binance REST API. Spot and
// USDT-margined futures share the wire format but use different hosts and
// path prefixes.
type BinanceAdapter struct {
	marketType MarketType
	baseURL    string
	client     *http.Client
	logger     *zap.Logger
}

func NewBinanceAdapter(marketType MarketType, baseURL string, timeout time.Duration, logger *zap.Logger) *BinanceAdapter {
	if baseURL == "" {
		if marketType == MarketFutures {
			baseURL = "https://fapi.binance.com"
		} else {
			baseURL = "https://api.binance.com"
		}
	}
	return &BinanceAdapter{
		marketType: marketType,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (b *BinanceAdapter) Name() string { return "binance" }

func (b *BinanceAdapter) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

func (b *BinanceAdapter) path(endpoint string) string {
	if b.marketType == MarketFutures {
		return b.baseURL + "/fapi/v1/" + endpoint
	}
	return b.baseURL + "/api/v3/" + endpoint
}

func (b *BinanceAdapter) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAdapter, err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418:
		return fmt.Errorf("%w: http %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: http %d", ErrNetwork, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: http %d: %s", ErrAdapter, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrAdapter, err)
	}
	return nil
}

// GetKlines fetches bars. The wire format is an array of 11-tuples:
// [open_time, open, high, low, close, volume, close_time, quote_volume,
// trade_count, taker_buy_volume, taker_buy_quote_volume].
func (b *BinanceAdapter) GetKlines(ctx context.Context, symbol, interval string, limit int, startMs, endMs int64) ([]model.KLine, error) {
	normalized := NormalizeSymbol(symbol)
	q := url.Values{}
	q.Set("symbol", ExchangeSymbol(normalized))
	q.Set("interval", interval)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if startMs > 0 {
		q.Set("startTime", strconv.FormatInt(startMs, 10))
	}
	if endMs > 0 {
		q.Set("endTime", strconv.FormatInt(endMs, 10))
	}

	var raw [][]json.RawMessage
	if err := b.get(ctx, b.path("klines")+"?"+q.Encode(), &raw); err != nil {
		return nil, err
	}

	klines := make([]model.KLine, 0, len(raw))
	for _, row := range raw {
		k, err := parseKlineRow(row, normalized, interval)
		if err != nil {
			return nil, err
		}
		klines = append(klines, k)
	}
	sort.Slice(klines, func(i, j int) bool { return klines[i].OpenTime < klines[j].OpenTime })
	if limit > 0 && len(klines) > limit {
		klines = klines[:limit]
	}
	return klines, nil
}

func parseKlineRow(row []json.RawMessage, symbol, interval string) (model.KLine, error) {
	if len(row) < 7 {
		return model.KLine{}, fmt.Errorf("%w: kline row has %d fields", ErrAdapter, len(row))
	}
	k := model.KLine{Symbol: symbol, Exchange: "binance", Period: interval}
	var err error
	if k.OpenTime, err = rawInt(row[0]); err != nil {
		return model.KLine{}, err
	}
	if k.Open, err = rawDecimal(row[1]); err != nil {
		return model.KLine{}, err
	}
	if k.High, err = rawDecimal(row[2]); err != nil {
		return model.KLine{}, err
	}
	if k.Low, err = rawDecimal(row[3]); err != nil {
		return model.KLine{}, err
	}
	if k.Close, err = rawDecimal(row[4]); err != nil {
		return model.KLine{}, err
	}
	if k.Volume, err = rawDecimal(row[5]); err != nil {
		return model.KLine{}, err
	}
	if k.CloseTime, err = rawInt(row[6]); err != nil {
		return model.KLine{}, err
	}
	if len(row) > 7 {
		if k.QuoteVolume, err = rawDecimal(row[7]); err != nil {
			return model.KLine{}, err
		}
	}
	if len(row) > 8 {
		if k.TradeCount, err = rawInt(row[8]); err != nil {
			return model.KLine{}, err
		}
	}
	return k, nil
}

// rawDecimal accepts both quoted-string and bare-number encodings.
func rawDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	s := string(raw)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad numeric %q", ErrAdapter, string(raw))
	}
	return d, nil
}

func rawInt(raw json.RawMessage) (int64, error) {
	d, err := rawDecimal(raw)
	if err != nil {
		return 0, err
	}
	return d.IntPart(), nil
}

type binanceTicker struct {
	Symbol   string `json:"symbol"`
	Last     string `json:"lastPrice"`
	Bid      string `json:"bidPrice"`
	Ask      string `json:"askPrice"`
	Volume   string `json:"volume"`
	Time     int64  `json:"closeTime"`
}

func (b *BinanceAdapter) GetTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	normalized := NormalizeSymbol(symbol)
	var raw binanceTicker
	u := b.path("ticker/24hr") + "?symbol=" + ExchangeSymbol(normalized)
	if err := b.get(ctx, u, &raw); err != nil {
		return model.Ticker{}, err
	}
	t := model.Ticker{Symbol: normalized, Timestamp: raw.Time}
	t.LastPrice, _ = decimal.NewFromString(raw.Last)
	t.BidPrice, _ = decimal.NewFromString(raw.Bid)
	t.AskPrice, _ = decimal.NewFromString(raw.Ask)
	t.Volume24h, _ = decimal.NewFromString(raw.Volume)

	if b.marketType == MarketFutures {
		if mark, err := b.GetMarkPrice(ctx, normalized); err == nil {
			t.MarkPrice = mark
		}
		if rate, err := b.GetFundingRate(ctx, normalized); err == nil {
			t.FundingRate = rate
		}
	}
	return t, nil
}

type premiumIndex struct {
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	LastFundingRate string `json:"lastFundingRate"`
}

func (b *BinanceAdapter) premiumIndex(ctx context.Context, symbol string) (premiumIndex, error) {
	if b.marketType != MarketFutures {
		return premiumIndex{}, fmt.Errorf("%w: mark price requires the futures market", ErrAdapter)
	}
	var raw premiumIndex
	u := b.baseURL + "/fapi/v1/premiumIndex?symbol=" + ExchangeSymbol(NormalizeSymbol(symbol))
	if err := b.get(ctx, u, &raw); err != nil {
		return premiumIndex{}, err
	}
	return raw, nil
}

func (b *BinanceAdapter) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	idx, err := b.premiumIndex(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	mark, err := decimal.NewFromString(idx.MarkPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad mark price %q", ErrAdapter, idx.MarkPrice)
	}
	return mark, nil
}

func (b *BinanceAdapter) GetFundingRate(ctx context.Context, symbol string) (decimal.Decimal, error) {
	idx, err := b.premiumIndex(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := decimal.NewFromString(idx.LastFundingRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad funding rate %q", ErrAdapter, idx.LastFundingRate)
	}
	return rate, nil
}
