package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"quant-engine/internal/indicator"
	"quant-engine/internal/model"
)

// Context is the per-tick view handed to a strategy. It is immutable to the
// strategy except for the Metadata scratch map, which sequential composite
// members share.
type Context struct {
	Symbol      string
	Interval    string
	CurrentTime time.Time

	// MarketData holds at least open/high/low/close/volume/timestamps of
	// the visible window; Indicators holds arrays aligned with close.
	MarketData map[string][]float64
	Indicators map[string][]float64

	AccountBalance decimal.Decimal
	// Positions maps symbol to net visible size: positive = net long.
	Positions map[string]decimal.Decimal

	Metadata map[string]any
}

// Closes is a convenience accessor for the visible close window.
func (c *Context) Closes() []float64 { return c.MarketData["close"] }

// Result is the strategy output for one tick.
type Result struct {
	Signals       []model.Signal
	Metadata      map[string]any
	ExecutionTime time.Duration
	Success       bool
	ErrorMessage  string
}

// Strategy is the only contract imposed on user code.
type Strategy interface {
	Name() string
	Version() string
	Execute(ctx Context) Result
}

// DataRequirements lets a strategy declare its warm-up window.
type DataRequirements struct {
	UseTimeRange         bool
	MinBars              int
	WarmupPeriods        int
	PreferClosedBar      bool
	ExtraSeconds         int
	MaxTimeframeRequired string
}

func DefaultDataRequirements() DataRequirements {
	return DataRequirements{UseTimeRange: true, WarmupPeriods: 50}
}

// DataRequirer is the optional warm-up capability.
type DataRequirer interface {
	GetDataRequirements(interval string, config map[string]any) DataRequirements
}

// Configurable exposes strategy configuration for reporting.
type Configurable interface {
	GetConfig() map[string]any
}

// IndicatorRequirer declares the indicator set the precompute stage must
// supply.
type IndicatorRequirer interface {
	IndicatorRequirements() []indicator.Spec
}

// Tagged adds free-form identity tags.
type Tagged interface {
	Tags() []string
}
