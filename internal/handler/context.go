package handler

import (
	"github.com/l1jgo/entitysync/internal/config"
	"github.com/l1jgo/entitysync/internal/core/event"
	"github.com/l1jgo/entitysync/internal/net"
	"github.com/l1jgo/entitysync/internal/net/packet"
	"github.com/l1jgo/entitysync/internal/spatial"
	"go.uber.org/zap"
)

// Viewers is the part of the sync engine the network layer reports to.
type Viewers interface {
	ViewerConnected(viewerID uint64, pos spatial.Vec3, dim int32) error
	ViewerDisconnected(viewerID uint64)
	ViewerMoved(viewerID uint64, pos spatial.Vec3) error
	ViewerDimensionChanged(viewerID uint64, dim int32) error
}

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	Config  *config.Config
	Log     *zap.Logger
	Viewers Viewers
	Gateway *net.Gateway
	Bus     *event.Bus
	Charset *packet.Charset // for outgoing strings; nil means UTF-8
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	// Handshake phase
	reg.Register(packet.C_OPCODE_HELLO,
		[]packet.SessionState{packet.StateHandshake},
		func(sess any, r *packet.Reader) {
			HandleHello(sess.(*net.Session), r, deps)
		},
	)

	// In world
	inWorld := []packet.SessionState{packet.StateInWorld}

	reg.Register(packet.C_OPCODE_MOVE, inWorld,
		func(sess any, r *packet.Reader) {
			HandleMove(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_DIMENSION, inWorld,
		func(sess any, r *packet.Reader) {
			HandleDimension(sess.(*net.Session), r, deps)
		},
	)

	// Quit is accepted before hello too.
	reg.Register(packet.C_OPCODE_QUIT,
		[]packet.SessionState{packet.StateHandshake, packet.StateInWorld},
		func(sess any, r *packet.Reader) {
			HandleQuit(sess.(*net.Session), r, deps)
		},
	)
}

// kick tells the client why it is being dropped, then closes the session.
func kick(sess *net.Session, deps *Deps, reason string) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_DISCONNECT).WithCharset(deps.Charset)
	w.WriteS(reason)
	sess.Kick(w.Bytes())
}
