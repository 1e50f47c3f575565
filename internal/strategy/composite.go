package strategy

import (
	"fmt"
	"time"

	"quant-engine/internal/model"
)

// ExecutionOrder controls how composite members run.
type ExecutionOrder string

const (
	// Parallel members are independent; their results are aggregated.
	Parallel ExecutionOrder = "parallel"
	// Sequential members run in order and may communicate through the
	// shared Context.Metadata scratch map.
	Sequential ExecutionOrder = "sequential"
)

// Aggregation collapses member results into one signal list.
type Aggregation string

const (
	// Vote keeps the direction a majority of members agree on.
	Vote Aggregation = "vote"
	// First keeps the first non-HOLD member result.
	First Aggregation = "first"
	// Weighted keeps the direction with the largest total confidence.
	Weighted Aggregation = "weighted"
)

// Composite chains sub-strategies under a single Strategy identity.
type Composite struct {
	name  string
	subs  []Strategy
	order ExecutionOrder
	agg   Aggregation
}

func NewComposite(name string, subs []Strategy, order ExecutionOrder, agg Aggregation) (*Composite, error) {
	if len(subs) == 0 {
		return nil, fmt.Errorf("composite %q needs at least one sub-strategy", name)
	}
	switch order {
	case Parallel, Sequential:
	default:
		return nil, fmt.Errorf("unknown execution order %q", order)
	}
	switch agg {
	case Vote, First, Weighted:
	default:
		return nil, fmt.Errorf("unknown aggregation %q", agg)
	}
	return &Composite{name: name, subs: subs, order: order, agg: agg}, nil
}

func (c *Composite) Name() string    { return c.name }
func (c *Composite) Version() string { return "1.0.0" }

// GetDataRequirements takes the widest requirement over the members.
func (c *Composite) GetDataRequirements(interval string, config map[string]any) DataRequirements {
	req := DefaultDataRequirements()
	for _, sub := range c.subs {
		r, ok := sub.(DataRequirer)
		if !ok {
			continue
		}
		sr := r.GetDataRequirements(interval, config)
		if sr.MinBars > req.MinBars {
			req.MinBars = sr.MinBars
		}
		if sr.WarmupPeriods > req.WarmupPeriods {
			req.WarmupPeriods = sr.WarmupPeriods
		}
		if sr.ExtraSeconds > req.ExtraSeconds {
			req.ExtraSeconds = sr.ExtraSeconds
		}
		req.PreferClosedBar = req.PreferClosedBar || sr.PreferClosedBar
	}
	return req
}

func (c *Composite) Execute(ctx Context) Result {
	start := time.Now()
	if ctx.Metadata == nil {
		ctx.Metadata = make(map[string]any)
	}

	results := make([]Result, 0, len(c.subs))
	for _, sub := range c.subs {
		res := sub.Execute(ctx)
		results = append(results, res)
		if c.order == Sequential {
			for k, v := range res.Metadata {
				ctx.Metadata[k] = v
			}
		}
	}

	out := Result{Success: true, Metadata: ctx.Metadata}
	out.Signals = c.aggregate(results)
	out.ExecutionTime = time.Since(start)
	return out
}

func (c *Composite) aggregate(results []Result) []model.Signal {
	switch c.agg {
	case First:
		for _, res := range results {
			for _, sig := range res.Signals {
				if sig.Action != model.ActionHold {
					return res.Signals
				}
			}
		}
		return nil
	case Vote:
		return c.scoreDirections(results, func(model.Signal) float64 { return 1 })
	default: // Weighted
		return c.scoreDirections(results, func(s model.Signal) float64 { return s.Confidence })
	}
}

// scoreDirections tallies open directions by weight and keeps the strongest
// representative signal of the winning direction. Close-family signals pass
// through untouched so members can always flatten.
func (c *Composite) scoreDirections(results []Result, weight func(model.Signal) float64) []model.Signal {
	scores := map[string]float64{}
	best := map[string]model.Signal{}
	var closes []model.Signal

	for _, res := range results {
		for _, sig := range res.Signals {
			if sig.Action.IsClose() {
				closes = append(closes, sig)
				continue
			}
			dir := sig.Action.Direction()
			if dir == "" {
				continue
			}
			scores[dir] += weight(sig)
			if cur, ok := best[dir]; !ok || sig.Confidence > cur.Confidence {
				best[dir] = sig
			}
		}
	}

	out := closes
	switch {
	case scores["long"] > scores["short"]:
		out = append(out, best["long"])
	case scores["short"] > scores["long"]:
		out = append(out, best["short"])
	}
	return out
}
