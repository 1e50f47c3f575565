package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// KLine is one OHLCV bar. Times are UTC epoch milliseconds aligned to the
// bar boundary.
type KLine struct {
	Symbol      string          `json:"symbol" db:"symbol"`
	Exchange    string          `json:"exchange" db:"exchange"`
	Period      string          `json:"period" db:"period"` // "1m", "1h", ...
	OpenTime    int64           `json:"open_time" db:"open_time"`
	CloseTime   int64           `json:"close_time" db:"close_time"`
	Open        decimal.Decimal `json:"o" db:"open"`
	High        decimal.Decimal `json:"h" db:"high"`
	Low         decimal.Decimal `json:"l" db:"low"`
	Close       decimal.Decimal `json:"c" db:"close"`
	Volume      decimal.Decimal `json:"v" db:"volume"`
	QuoteVolume decimal.Decimal `json:"qv,omitempty" db:"quote_volume"`
	TradeCount  int64           `json:"n,omitempty" db:"trade_count"`
}

// Time returns the bar open time as a UTC time.Time.
func (k KLine) Time() time.Time {
	return time.UnixMilli(k.OpenTime).UTC()
}

// Ticker is the latest quote for a symbol. Mark/index/funding are only
// populated by futures adapters.
type Ticker struct {
	Symbol      string          `json:"symbol"`
	LastPrice   decimal.Decimal `json:"last_price"`
	BidPrice    decimal.Decimal `json:"bid_price"`
	AskPrice    decimal.Decimal `json:"ask_price"`
	Volume24h   decimal.Decimal `json:"volume_24h"`
	Timestamp   int64           `json:"timestamp"`
	MarkPrice   decimal.Decimal `json:"mark_price,omitempty"`
	IndexPrice  decimal.Decimal `json:"index_price,omitempty"`
	FundingRate decimal.Decimal `json:"funding_rate,omitempty"`
}

// OHLCVSeries is the column-oriented view handed to strategies and the
// indicator stage. All slices share the same length and index.
type OHLCVSeries struct {
	Timestamps []int64   `json:"timestamps"`
	Open       []float64 `json:"open"`
	High       []float64 `json:"high"`
	Low        []float64 `json:"low"`
	Close      []float64 `json:"close"`
	Volume     []float64 `json:"volume"`
}

func (s *OHLCVSeries) Len() int { return len(s.Timestamps) }

// Append adds one bar to the series.
func (s *OHLCVSeries) Append(k KLine) {
	s.Timestamps = append(s.Timestamps, k.OpenTime)
	s.Open = append(s.Open, k.Open.InexactFloat64())
	s.High = append(s.High, k.High.InexactFloat64())
	s.Low = append(s.Low, k.Low.InexactFloat64())
	s.Close = append(s.Close, k.Close.InexactFloat64())
	s.Volume = append(s.Volume, k.Volume.InexactFloat64())
}

// Window returns a view of the first n bars. The backing arrays are shared;
// callers must treat the result as read-only.
func (s *OHLCVSeries) Window(n int) OHLCVSeries {
	if n > s.Len() {
		n = s.Len()
	}
	return OHLCVSeries{
		Timestamps: s.Timestamps[:n],
		Open:       s.Open[:n],
		High:       s.High[:n],
		Low:        s.Low[:n],
		Close:      s.Close[:n],
		Volume:     s.Volume[:n],
	}
}

// Columns exposes the series as the name -> array mapping strategies consume.
func (s *OHLCVSeries) Columns() map[string][]float64 {
	ts := make([]float64, len(s.Timestamps))
	for i, t := range s.Timestamps {
		ts[i] = float64(t)
	}
	return map[string][]float64{
		"timestamps": ts,
		"open":       s.Open,
		"high":       s.High,
		"low":        s.Low,
		"close":      s.Close,
		"volume":     s.Volume,
	}
}

// SeriesFromKLines converts row-form bars to column form.
func SeriesFromKLines(klines []KLine) OHLCVSeries {
	s := OHLCVSeries{
		Timestamps: make([]int64, 0, len(klines)),
		Open:       make([]float64, 0, len(klines)),
		High:       make([]float64, 0, len(klines)),
		Low:        make([]float64, 0, len(klines)),
		Close:      make([]float64, 0, len(klines)),
		Volume:     make([]float64, 0, len(klines)),
	}
	for _, k := range klines {
		s.Append(k)
	}
	return s
}
