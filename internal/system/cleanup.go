package system

import (
	"time"

	coresys "github.com/l1jgo/entitysync/internal/core/system"
	"github.com/l1jgo/entitysync/internal/handler"
	"github.com/l1jgo/entitysync/internal/net"
)

// CleanupSystem reaps closed sessions at tick end: the engine forgets the
// viewer and the session leaves the store. Phase 5 (Cleanup).
type CleanupSystem struct {
	store *net.SessionStore
	deps  *handler.Deps
}

func NewCleanupSystem(store *net.SessionStore, deps *handler.Deps) *CleanupSystem {
	return &CleanupSystem{store: store, deps: deps}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	for id, sess := range s.store.Raw() {
		if !sess.IsClosed() {
			continue
		}
		handler.HandleDisconnect(sess, s.deps)
		s.store.Remove(id)
	}
}
