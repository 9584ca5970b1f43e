package domain

import "fmt"

// RunState is one state of the pipeline state machine.
// A run moves through the states strictly in order; any non-terminal
// state may transition to RunStateFailed on a hard error.
type RunState uint

const (
	RunStateStart RunState = iota
	RunStateClassified
	RunStateSkipped
	RunStateGating
	RunStateGatedOk
	RunStateBuilding
	RunStateBuilt
	RunStatePublishing
	RunStatePublished
	RunStatePromoting
	RunStatePromoted
	RunStateCommitting
	RunStateDone
	RunStateFailed
)

func (self RunState) String() string {
	switch self {
	case RunStateStart:
		return "start"
	case RunStateClassified:
		return "classified"
	case RunStateSkipped:
		return "skipped"
	case RunStateGating:
		return "gating"
	case RunStateGatedOk:
		return "gated_ok"
	case RunStateBuilding:
		return "building"
	case RunStateBuilt:
		return "built"
	case RunStatePublishing:
		return "publishing"
	case RunStatePublished:
		return "published"
	case RunStatePromoting:
		return "promoting"
	case RunStatePromoted:
		return "promoted"
	case RunStateCommitting:
		return "committing"
	case RunStateDone:
		return "done"
	case RunStateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", self)
	}
}

func (self RunState) Terminal() bool {
	switch self {
	case RunStateSkipped, RunStateDone, RunStateFailed:
		return true
	default:
		return false
	}
}

var runStateSuccessors = map[RunState][]RunState{
	RunStateStart:      {RunStateClassified},
	RunStateClassified: {RunStateSkipped, RunStateGating},
	RunStateGating:     {RunStateGatedOk},
	RunStateGatedOk:    {RunStateBuilding},
	RunStateBuilding:   {RunStateBuilt},
	RunStateBuilt:      {RunStatePublishing},
	RunStatePublishing: {RunStatePublished},
	RunStatePublished:  {RunStatePromoting},
	RunStatePromoting:  {RunStatePromoted},
	RunStatePromoted:   {RunStateCommitting},
	RunStateCommitting: {RunStateDone},
}

// CanAdvanceTo reports whether next is a legal successor of this state.
func (self RunState) CanAdvanceTo(next RunState) bool {
	if next == RunStateFailed {
		return !self.Terminal()
	}
	for _, successor := range runStateSuccessors[self] {
		if successor == next {
			return true
		}
	}
	return false
}

func (self RunState) Outcome() (RunOutcome, error) {
	switch self {
	case RunStateDone:
		return RunOutcomeSuccess, nil
	case RunStateSkipped:
		return RunOutcomeSkipped, nil
	case RunStateFailed:
		return RunOutcomeFailure, nil
	default:
		return RunOutcomeFailure, fmt.Errorf("State %q is not terminal", self)
	}
}
