package submission

import "fmt"

// Stage is a step of one submission's life.
//
//	Received → Validating → Persisting → PersistFailed
//	                                   → Persisted → Notifying → NotifyFailed
//	                                                           → Completed
type Stage int

const (
	Received Stage = iota
	Validating
	Persisting
	PersistFailed
	Persisted
	Notifying
	NotifyFailed
	Completed
)

var stageNames = [...]string{
	Received:      "received",
	Validating:    "validating",
	Persisting:    "persisting",
	PersistFailed: "persist_failed",
	Persisted:     "persisted",
	Notifying:     "notifying",
	NotifyFailed:  "notify_failed",
	Completed:     "completed",
}

var transitions = map[Stage][]Stage{
	Received:   {Validating},
	Validating: {Persisting},
	Persisting: {PersistFailed, Persisted},
	Persisted:  {Notifying},
	Notifying:  {NotifyFailed, Completed},
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Terminal reports whether no further transition leaves s.
func (s Stage) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanAdvance reports whether next directly follows s.
func (s Stage) CanAdvance(next Stage) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// advance moves to next, panicking on an edge the graph does not have.
func (s Stage) advance(next Stage) Stage {
	if !s.CanAdvance(next) {
		panic(fmt.Sprintf("submission: illegal transition %s -> %s", s, next))
	}
	return next
}
