package data

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"quant-engine/internal/model"
)

// LoaderConfig describes the half-open time range [Start, End) a stream
// loader walks through.
type LoaderConfig struct {
	Symbol     string
	Interval   string
	Exchange   string
	MarketType MarketType
	Start      int64 // ms, inclusive
	End        int64 // ms, exclusive
	BatchSize  int
	Preload    bool
}

// StreamLoader yields bars in open-time order over a bounded range, fetching
// in batches. With Preload enabled the next batch is requested while the
// consumer drains the current one.
type StreamLoader struct {
	dc     *DataCenter
	cfg    LoaderConfig
	logger *zap.Logger
}

func NewStreamLoader(dc *DataCenter, cfg LoaderConfig, logger *zap.Logger) *StreamLoader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	cfg.Symbol = NormalizeSymbol(cfg.Symbol)
	return &StreamLoader{dc: dc, cfg: cfg, logger: logger}
}

type fetchResult struct {
	klines []model.KLine
	err    error
}

func (l *StreamLoader) fetch(ctx context.Context, cursor int64) fetchResult {
	klines, err := l.dc.GetKlines(ctx, MarketDataRequest{
		Symbol:     l.cfg.Symbol,
		Interval:   l.cfg.Interval,
		Exchange:   l.cfg.Exchange,
		MarketType: l.cfg.MarketType,
		Limit:      l.cfg.BatchSize,
		StartTime:  cursor,
		EndTime:    l.cfg.End,
	})
	return fetchResult{klines: klines, err: err}
}

// validateBatch enforces the bar-sequence invariants: strictly increasing
// open times, no duplicates past lastOpen, boundary alignment.
func (l *StreamLoader) validateBatch(klines []model.KLine, lastOpen int64) ([]model.KLine, error) {
	out := klines[:0]
	prev := lastOpen
	for _, k := range klines {
		if k.OpenTime <= prev {
			// Overlapping pages produce duplicates; drop them silently.
			continue
		}
		if !model.IsAligned(k.OpenTime, l.cfg.Interval) {
			return nil, fmt.Errorf("%w: bar open_time %d not aligned to %s boundary", ErrAdapter, k.OpenTime, l.cfg.Interval)
		}
		prev = k.OpenTime
		out = append(out, k)
	}
	return out, nil
}

// Bars starts the stream. The bar channel is closed on clean termination;
// a fetch failure is delivered on the error channel after the bar channel
// closes. Both channels are owned by the loader.
func (l *StreamLoader) Bars(ctx context.Context) (<-chan model.KLine, <-chan error) {
	bars := make(chan model.KLine)
	errc := make(chan error, 1)

	go func() {
		defer close(bars)
		defer close(errc)

		cursor := l.cfg.Start
		lastOpen := int64(-1)
		pending := make(chan fetchResult, 1)
		pending <- l.fetch(ctx, cursor)

		for cursor < l.cfg.End {
			res := <-pending
			if res.err != nil {
				errc <- res.err
				return
			}
			batch, err := l.validateBatch(res.klines, lastOpen)
			if err != nil {
				errc <- err
				return
			}
			if len(batch) == 0 {
				// Nothing past the cursor: the range is exhausted.
				return
			}

			last := batch[len(batch)-1].OpenTime
			next, err := model.NextOpenTime(last, l.cfg.Interval)
			if err != nil {
				errc <- fmt.Errorf("%w: %v", ErrAdapter, err)
				return
			}

			if l.cfg.Preload && next < l.cfg.End {
				go func(c int64) { pending <- l.fetch(ctx, c) }(next)
			}

			for _, k := range batch {
				if k.OpenTime >= l.cfg.End {
					return
				}
				select {
				case bars <- k:
					lastOpen = k.OpenTime
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}

			cursor = next
			if !l.cfg.Preload && cursor < l.cfg.End {
				pending <- l.fetch(ctx, cursor)
			}
		}
	}()

	return bars, errc
}
