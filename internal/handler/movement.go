package handler

import (
	"github.com/l1jgo/entitysync/internal/net"
	"github.com/l1jgo/entitysync/internal/net/packet"
	"github.com/l1jgo/entitysync/internal/spatial"
	"go.uber.org/zap"
)

// HandleMove processes C_MOVE. The client is trusted with its own position;
// the engine only rejects non-finite coordinates.
func HandleMove(sess *net.Session, r *packet.Reader, deps *Deps) {
	pos := spatial.V(r.ReadF(), r.ReadF(), r.ReadF())
	if r.Overrun() {
		return
	}
	if err := deps.Viewers.ViewerMoved(sess.ID, pos); err != nil {
		deps.Log.Debug("move ignored", zap.Uint64("viewer", sess.ID), zap.Error(err))
	}
}

// HandleDimension processes C_DIMENSION.
func HandleDimension(sess *net.Session, r *packet.Reader, deps *Deps) {
	dim := r.ReadD()
	if r.Overrun() {
		return
	}
	if err := deps.Viewers.ViewerDimensionChanged(sess.ID, dim); err != nil {
		deps.Log.Debug("dimension change ignored", zap.Uint64("viewer", sess.ID), zap.Error(err))
	}
}
