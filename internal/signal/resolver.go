// Package signal resolves the raw signal list a strategy emits into the
// set the traders are allowed to act on.
package signal

import (
	"sort"

	"quant-engine/internal/model"
)

// ResolverConfig tunes the conflict-resolution pipeline.
type ResolverConfig struct {
	MinConfidence float64
	// PreferCloseSignals short-circuits the tick to close-family signals
	// whenever any are present.
	PreferCloseSignals bool
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{MinConfidence: 0.5, PreferCloseSignals: true}
}

// bucket keys canonical directions. BUY/SELL are kept apart from LONG/SHORT
// because they target different traders; opposites still cancel pairwise.
func bucket(a model.Action) string {
	switch a {
	case model.ActionLong, model.ActionUp:
		return "long_open"
	case model.ActionShort, model.ActionDown:
		return "short_open"
	case model.ActionBuy:
		return "buy"
	case model.ActionSell:
		return "sell"
	}
	return ""
}

var opposites = map[string]string{
	"long_open":  "short_open",
	"short_open": "long_open",
	"buy":        "sell",
	"sell":       "buy",
}

// Resolve filters by confidence, prefers closes, deduplicates per direction,
// cancels equal-confidence opposites, and drops HOLD when anything actionable
// was present. The result is ordered by action priority, stable on input
// order, and the function is idempotent.
func Resolve(signals []model.Signal, cfg ResolverConfig) []model.Signal {
	filtered := make([]model.Signal, 0, len(signals))
	for _, s := range signals {
		if s.Confidence < cfg.MinConfidence {
			continue
		}
		filtered = append(filtered, s)
	}
	if len(filtered) == 0 {
		return nil
	}

	if cfg.PreferCloseSignals {
		var closes []model.Signal
		for _, s := range filtered {
			if s.Action.IsClose() {
				closes = append(closes, s)
			}
		}
		if len(closes) > 0 {
			return orderByPriority(closes)
		}
	}

	var (
		holds    []model.Signal
		closes   []model.Signal
		rest     []model.Signal
		nonHolds int
	)
	for _, s := range filtered {
		switch {
		case s.Action == model.ActionHold:
			holds = append(holds, s)
		case s.Action.IsClose():
			closes = append(closes, s)
			nonHolds++
		default:
			rest = append(rest, s)
			nonHolds++
		}
	}

	// Best per direction bucket; ties keep the earlier signal.
	bestByBucket := map[string]model.Signal{}
	bucketOrder := []string{}
	for _, s := range rest {
		b := bucket(s.Action)
		if b == "" {
			continue
		}
		cur, seen := bestByBucket[b]
		if !seen {
			bucketOrder = append(bucketOrder, b)
			bestByBucket[b] = s
		} else if s.Confidence > cur.Confidence {
			bestByBucket[b] = s
		}
	}

	// Opposite buckets: higher confidence wins, exact ties cancel both.
	cancelled := map[string]bool{}
	for _, b := range bucketOrder {
		opp := opposites[b]
		other, ok := bestByBucket[opp]
		if !ok || cancelled[b] || cancelled[opp] {
			continue
		}
		mine := bestByBucket[b]
		switch {
		case mine.Confidence > other.Confidence:
			cancelled[opp] = true
		case mine.Confidence < other.Confidence:
			cancelled[b] = true
		default:
			cancelled[b] = true
			cancelled[opp] = true
		}
	}

	out := closes
	for _, b := range bucketOrder {
		if !cancelled[b] {
			out = append(out, bestByBucket[b])
		}
	}

	// HOLD survives only a tick where nothing actionable was emitted at all.
	if len(out) == 0 && nonHolds == 0 && len(holds) > 0 {
		return holds[:1]
	}
	return orderByPriority(out)
}

func orderByPriority(signals []model.Signal) []model.Signal {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Action.Priority() > signals[j].Action.Priority()
	})
	return signals
}
