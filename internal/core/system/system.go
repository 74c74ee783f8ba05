package system

import "time"

// Phase defines execution ordering within a single host tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain session queues, run handlers
	PhasePreUpdate               // 1: dispatch last tick's events
	PhaseUpdate                  // 2: script hooks
	PhasePostUpdate              // 3: periodic stats
	PhaseOutput                  // 4: flush session output
	PhaseCleanup                 // 5: reap closed sessions

	phaseCount
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhaseOutput:
		return "output"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// System is the interface every host-loop system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
