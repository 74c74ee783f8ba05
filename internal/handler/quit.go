package handler

import (
	"github.com/l1jgo/entitysync/internal/core/event"
	"github.com/l1jgo/entitysync/internal/net"
	"github.com/l1jgo/entitysync/internal/net/packet"
	"go.uber.org/zap"
)

// HandleQuit processes C_QUIT. It only closes the session; the input system
// notices and calls HandleDisconnect.
func HandleQuit(sess *net.Session, _ *packet.Reader, deps *Deps) {
	deps.Log.Info("viewer quit", zap.Uint64("session", sess.ID), zap.String("name", sess.Name))
	sess.Close()
}

// HandleDisconnect forgets a closed session. Safe for sessions that never
// said hello.
func HandleDisconnect(sess *net.Session, deps *Deps) {
	deps.Viewers.ViewerDisconnected(sess.ID)
	if !deps.Gateway.Unbind(sess.ID, sess) {
		return
	}
	event.Emit(deps.Bus, event.ViewerLeft{ViewerID: sess.ID})
	deps.Log.Info("viewer left", zap.Uint64("viewer", sess.ID), zap.String("name", sess.Name))
}
