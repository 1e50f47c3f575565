package strategy

import (
	"time"

	"quant-engine/internal/model"
)

func init() {
	Register("ma_cross", func(config map[string]any) (Strategy, error) {
		short := int(floatParam(config, "short_period", 5))
		long := int(floatParam(config, "long_period", 20))
		return NewMACrossStrategy(short, long), nil
	})
}

// MACrossStrategy opens on moving-average crossovers: golden cross closes
// any short and goes long, death cross does the opposite.
type MACrossStrategy struct {
	shortPeriod int
	longPeriod  int
}

func NewMACrossStrategy(shortPeriod, longPeriod int) *MACrossStrategy {
	return &MACrossStrategy{shortPeriod: shortPeriod, longPeriod: longPeriod}
}

func (s *MACrossStrategy) Name() string    { return "ma_cross" }
func (s *MACrossStrategy) Version() string { return "1.0.0" }
func (s *MACrossStrategy) Tags() []string  { return []string{"trend", "sample"} }

func (s *MACrossStrategy) GetConfig() map[string]any {
	return map[string]any{"short_period": s.shortPeriod, "long_period": s.longPeriod}
}

func (s *MACrossStrategy) GetDataRequirements(interval string, config map[string]any) DataRequirements {
	req := DefaultDataRequirements()
	req.MinBars = s.longPeriod + 1
	req.WarmupPeriods = s.longPeriod + 1
	return req
}

func (s *MACrossStrategy) Execute(ctx Context) Result {
	start := time.Now()
	closes := ctx.Closes()
	result := Result{Success: true}

	if len(closes) < s.longPeriod+1 {
		result.ExecutionTime = time.Since(start)
		return result
	}

	shortMA := mean(closes[len(closes)-s.shortPeriod:])
	longMA := mean(closes[len(closes)-s.longPeriod:])
	prevShortMA := mean(closes[len(closes)-s.shortPeriod-1 : len(closes)-1])
	prevLongMA := mean(closes[len(closes)-s.longPeriod-1 : len(closes)-1])

	net := ctx.Positions[ctx.Symbol]

	switch {
	case prevShortMA <= prevLongMA && shortMA > longMA: // golden cross
		if net.IsNegative() {
			result.Signals = append(result.Signals, model.Signal{
				Action: model.ActionCloseShort, Symbol: ctx.Symbol,
				Confidence: 0.9, Reason: "golden cross",
			})
		}
		result.Signals = append(result.Signals, model.Signal{
			Action: model.ActionLong, Symbol: ctx.Symbol,
			Confidence: 0.7, Reason: "golden cross",
		})
	case prevShortMA >= prevLongMA && shortMA < longMA: // death cross
		if net.IsPositive() {
			result.Signals = append(result.Signals, model.Signal{
				Action: model.ActionCloseLong, Symbol: ctx.Symbol,
				Confidence: 0.9, Reason: "death cross",
			})
		}
		result.Signals = append(result.Signals, model.Signal{
			Action: model.ActionShort, Symbol: ctx.Symbol,
			Confidence: 0.7, Reason: "death cross",
		})
	}

	result.ExecutionTime = time.Since(start)
	return result
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
