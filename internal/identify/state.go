package identify

// State is a step of the identification state machine.
type State int

const (
	StateNormalizing State = iota
	StateCacheCheck
	StateCacheHit
	StateClassifying
	StateGating
	StateRejected
	StateEnriching
	StateRecording
	StateCacheStoring
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateNormalizing:  "normalizing",
	StateCacheCheck:   "cache_check",
	StateCacheHit:     "cache_hit",
	StateClassifying:  "classifying",
	StateGating:       "gating",
	StateRejected:     "rejected",
	StateEnriching:    "enriching",
	StateRecording:    "recording",
	StateCacheStoring: "cache_storing",
	StateDone:         "done",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// transitions lists the legal successors of each state. Any non-terminal
// state may also move to StateFailed.
var transitions = map[State][]State{
	StateNormalizing:  {StateCacheCheck},
	StateCacheCheck:   {StateCacheHit, StateClassifying},
	StateCacheHit:     {StateDone},
	StateClassifying:  {StateGating},
	StateGating:       {StateRejected, StateEnriching},
	StateRejected:     {StateRecording},
	StateEnriching:    {StateRecording},
	StateRecording:    {StateCacheStoring},
	StateCacheStoring: {StateDone},
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether a run may move from s to next.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
