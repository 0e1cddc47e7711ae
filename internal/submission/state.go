package submission

import "time"

// State is a position in the submission state machine.
type State string

const (
	StateDraft              State = "draft"
	StateSubmitting         State = "submitting"
	StateAwaitingIdentifier State = "awaiting_identifier"
	StatePolling            State = "polling"
	StateResolved           State = "resolved"
	StateDownloading        State = "downloading"
	StateVerifying          State = "verifying"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// Terminal reports whether a run ends in s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// allowed lists the legal successors of each state. Failed is reachable
// from every non-terminal state and is handled separately.
var allowed = map[State][]State{
	StateDraft:              {StateSubmitting, StatePolling, StateResolved},
	StateSubmitting:         {StateAwaitingIdentifier},
	StateAwaitingIdentifier: {StatePolling, StateResolved},
	StatePolling:            {StateResolved},
	StateResolved:           {StateDownloading},
	StateDownloading:        {StateVerifying},
	StateVerifying:          {StateDownloading, StateCompleted},
	StateCompleted:          {StateDraft},
	StateFailed:             {StateDraft},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

var statePercent = map[State]int{
	StateDraft:              0,
	StateSubmitting:         5,
	StateAwaitingIdentifier: 15,
	StatePolling:            30,
	StateResolved:           60,
	StateDownloading:        70,
	StateVerifying:          90,
	StateCompleted:          100,
}

var stateStep = map[State]int{
	StateDraft:              0,
	StateSubmitting:         1,
	StateAwaitingIdentifier: 2,
	StatePolling:            3,
	StateResolved:           4,
	StateDownloading:        5,
	StateVerifying:          6,
	StateCompleted:          7,
}

// Transition is one recorded state change.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
	// Category is set on transitions into Failed.
	Category string `json:"category,omitempty"`
}

// Event is a progress update for one work item.
type Event struct {
	ItemKey string
	State   State
	Step    int
	Percent int
	Message string
	Time    time.Time
}
