package system

import (
	"time"

	"github.com/l1jgo/entitysync/internal/core/event"
	coresys "github.com/l1jgo/entitysync/internal/core/system"
)

// Hooks is the script side of the host loop.
type Hooks interface {
	OnTick(dt time.Duration)
	OnViewerConnected(viewerID uint64, name string)
	OnViewerDisconnected(viewerID uint64)
}

// ScriptSystem forwards viewer events and the host tick to script hooks.
// Phase 2 (Update).
type ScriptSystem struct {
	hooks Hooks
}

func NewScriptSystem(hooks Hooks, bus *event.Bus) *ScriptSystem {
	s := &ScriptSystem{hooks: hooks}
	event.Subscribe(bus, func(e event.ViewerJoined) {
		s.hooks.OnViewerConnected(e.ViewerID, e.Name)
	})
	event.Subscribe(bus, func(e event.ViewerLeft) {
		s.hooks.OnViewerDisconnected(e.ViewerID)
	})
	return s
}

func (s *ScriptSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ScriptSystem) Update(dt time.Duration) {
	s.hooks.OnTick(dt)
}
