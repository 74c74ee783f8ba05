package system

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// Runner executes systems in phase order each tick. Systems sharing a phase
// run in registration order.
type Runner struct {
	systems []System
	sorted  bool

	ticks  uint64
	budget time.Duration // 0 disables slow tick reports
	log    *zap.Logger
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
		log:     zap.NewNop(),
	}
}

// ReportSlowTicks logs a warning for every full tick that takes longer than
// budget, naming the slowest phase.
func (r *Runner) ReportSlowTicks(budget time.Duration, log *zap.Logger) {
	r.budget = budget
	r.log = log
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	r.ticks++
	if r.budget <= 0 {
		for _, s := range r.systems {
			s.Update(dt)
		}
		return
	}

	var phaseTime [phaseCount]time.Duration
	start := time.Now()
	for _, s := range r.systems {
		t0 := time.Now()
		s.Update(dt)
		if p := s.Phase(); p >= 0 && p < phaseCount {
			phaseTime[p] += time.Since(t0)
		}
	}
	if took := time.Since(start); took > r.budget {
		slowest := PhaseInput
		for p := range phaseTime {
			if phaseTime[p] > phaseTime[slowest] {
				slowest = Phase(p)
			}
		}
		r.log.Warn("slow host tick",
			zap.Uint64("tick", r.ticks),
			zap.Duration("took", took),
			zap.Duration("budget", r.budget),
			zap.Stringer("slowest_phase", slowest),
			zap.Duration("slowest_took", phaseTime[slowest]))
	}
}

// TickPhase runs only the systems of one phase. The host loop polls
// PhaseInput between full ticks to keep handler latency low.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// Len returns the number of registered systems.
func (r *Runner) Len() int {
	return len(r.systems)
}

// Ticks returns the number of full ticks run.
func (r *Runner) Ticks() uint64 {
	return r.ticks
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
