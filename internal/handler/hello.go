package handler

import (
	"fmt"

	"github.com/l1jgo/entitysync/internal/core/event"
	"github.com/l1jgo/entitysync/internal/net"
	"github.com/l1jgo/entitysync/internal/net/packet"
	"github.com/l1jgo/entitysync/internal/spatial"
	"go.uber.org/zap"
)

const maxNameLen = 32

// HandleHello processes C_HELLO: the client names itself and reports where
// it is. The session id becomes the viewer id.
//
// S_WELCOME is queued before the engine learns about the viewer so it is
// always the first packet the client reads, ahead of any S_SYNC.
func HandleHello(sess *net.Session, r *packet.Reader, deps *Deps) {
	name := r.ReadS()
	pos := spatial.V(r.ReadF(), r.ReadF(), r.ReadF())
	dim := r.ReadD()
	if r.Overrun() {
		deps.Log.Warn("malformed hello", zap.Uint64("session", sess.ID), zap.String("ip", sess.IP))
		kick(sess, deps, "malformed hello")
		return
	}
	if name == "" {
		name = fmt.Sprintf("viewer-%d", sess.ID)
	}
	if len([]rune(name)) > maxNameLen {
		name = string([]rune(name)[:maxNameLen])
	}

	viewerID := sess.ID
	deps.Gateway.Bind(viewerID, sess)

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_WELCOME)
	w.WriteQ(viewerID)
	if err := sess.TrySend(w.Bytes()); err != nil {
		deps.Gateway.Unbind(viewerID, sess)
		sess.Close()
		return
	}

	if err := deps.Viewers.ViewerConnected(viewerID, pos, dim); err != nil {
		deps.Gateway.Unbind(viewerID, sess)
		deps.Log.Warn("viewer rejected",
			zap.Uint64("viewer", viewerID),
			zap.String("name", name),
			zap.Error(err))
		kick(sess, deps, err.Error())
		return
	}

	sess.Name = name
	sess.SetState(packet.StateInWorld)
	event.Emit(deps.Bus, event.ViewerJoined{ViewerID: viewerID, Name: name})

	deps.Log.Info("viewer joined",
		zap.Uint64("viewer", viewerID),
		zap.String("name", name),
		zap.String("ip", sess.IP),
		zap.Int32("dimension", dim))
}
