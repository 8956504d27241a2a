package strategy

import "trendbot/internal/market"

// Action is the direction an entry signal asks for.
type Action string

const (
	EnterLong  Action = "ENTER_LONG"
	EnterShort Action = "ENTER_SHORT"
)

// Side maps the action to a position side string.
func (a Action) Side() string {
	if a == EnterShort {
		return "SHORT"
	}
	return "LONG"
}

// Strategy names as persisted on positions and signals.
const (
	NameTrendCross     = "A_SUPERTREND_CROSS"
	NameBreakoutRetest = "B_BREAKOUT_RETEST"
)

// Signal is an entry request produced by a strategy.
type Signal struct {
	Action      Action
	Strategy    string
	InitialStop *float64
	Reason      string
}

// Evaluation carries an optional signal plus the breakout machine state the
// caller must commit once the evaluation is accepted.
type Evaluation struct {
	Signal   *Signal
	Breakout market.BreakoutState
}

// Strategy inspects a snapshot and optionally emits an entry signal.
type Strategy interface {
	Name() string
	Evaluate(snap market.Snapshot) Evaluation
}

func ptr(v float64) *float64 { return &v }
