package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: collect client poses
	PhasePreUpdate               // 1: react to last tick's results
	PhaseUpdate                  // 2: streaming window, world edits
	PhasePostUpdate              // 3: derived state
	PhaseOutput                  // 4: publish deltas to clients
	PhasePersist                 // 5: diff save
	PhaseCleanup                 // 6: release per-tick scratch
)

var phaseNames = [...]string{"input", "pre-update", "update", "post-update", "output", "persist", "cleanup"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// System is one unit of per-tick work.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
