package model

import (
	"errors"
	"fmt"
)

// ErrInvalidSignal marks signals that violate the signal invariants.
var ErrInvalidSignal = errors.New("invalid signal")

// Action is a strategy intention. Events traders use UP/DOWN; futures traders
// use LONG/SHORT/CLOSE_*; BUY/SELL are accepted as aliases at the trader
// boundary.
type Action string

const (
	ActionBuy        Action = "BUY"
	ActionSell       Action = "SELL"
	ActionHold       Action = "HOLD"
	ActionLong       Action = "LONG"
	ActionShort      Action = "SHORT"
	ActionCloseLong  Action = "CLOSE_LONG"
	ActionCloseShort Action = "CLOSE_SHORT"
	ActionClose      Action = "CLOSE"
	ActionUp         Action = "UP"
	ActionDown       Action = "DOWN"
)

// Priority orders surviving signals: closes before opens before holds.
func (a Action) Priority() int {
	switch a {
	case ActionClose:
		return 100
	case ActionCloseLong, ActionCloseShort:
		return 90
	case ActionLong, ActionShort, ActionBuy, ActionSell, ActionUp, ActionDown:
		return 50
	default:
		return 0
	}
}

// IsClose reports whether the action belongs to the close family.
func (a Action) IsClose() bool {
	switch a {
	case ActionClose, ActionCloseLong, ActionCloseShort:
		return true
	}
	return false
}

// Direction collapses open actions into long/short buckets. Non-open actions
// return an empty direction.
func (a Action) Direction() string {
	switch a {
	case ActionLong, ActionBuy, ActionUp:
		return "long"
	case ActionShort, ActionSell, ActionDown:
		return "short"
	}
	return ""
}

// Signal is the strategy output consumed by the resolver and traders.
// Quantity is interpreted by the receiving trader (stake for events, USDT
// notional for futures); zero means "use the configured default".
type Signal struct {
	Action       Action  `json:"action"`
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity,omitempty"`
	Price        float64 `json:"price,omitempty"`
	StopLoss     float64 `json:"stop_loss,omitempty"`
	TakeProfit   float64 `json:"take_profit,omitempty"`
	TrailingStop float64 `json:"trailing_stop,omitempty"` // offset as a fraction of price
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason,omitempty"`
}

// Validate enforces the signal invariants: confidence in [0, 1] and a
// non-negative quantity.
func (s Signal) Validate() error {
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidSignal, s.Confidence)
	}
	if s.Quantity < 0 {
		return fmt.Errorf("%w: negative quantity %v", ErrInvalidSignal, s.Quantity)
	}
	return nil
}
