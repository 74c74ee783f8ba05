package packet

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// SessionState is where a connection stands in the viewer protocol.
type SessionState int

const (
	StateHandshake     SessionState = iota // connected, awaiting hello
	StateInWorld                           // registered as a viewer
	StateDisconnecting                     // closing, nothing more is handled
)

func (s SessionState) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateInWorld:
		return "InWorld"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// stateSet is a bitmask of SessionStates.
type stateSet uint32

func statesOf(states []SessionState) stateSet {
	var set stateSet
	for _, s := range states {
		set |= 1 << uint(s)
	}
	return set
}

func (set stateSet) has(s SessionState) bool {
	return s >= 0 && set&(1<<uint(s)) != 0
}

// HandlerFunc handles one client packet. sess is the caller's session type;
// the registry never looks inside it.
type HandlerFunc func(sess any, r *Reader)

type route struct {
	fn     HandlerFunc
	states stateSet
}

// DispatchCounts tallies what Dispatch did with incoming packets.
type DispatchCounts struct {
	Handled uint64
	Unknown uint64 // opcode without a route, ignored
	Refused uint64 // route exists but not in the session's state
	Panics  uint64
}

// Registry routes client opcodes to handlers, gated by session state.
// Routes are registered before the host loop starts; Dispatch runs on the
// host loop only.
type Registry struct {
	routes  map[byte]route
	charset *Charset
	log     *zap.Logger

	handled, unknown, refused, panics atomic.Uint64
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		routes:  make(map[byte]route),
		charset: UTF8,
		log:     log,
	}
}

// SetCharset sets the encoding of strings in client payloads.
func (reg *Registry) SetCharset(cs *Charset) {
	reg.charset = cs
}

func (reg *Registry) Charset() *Charset {
	return reg.charset
}

// Register routes opcode to fn while the session is in one of states.
// Registering an opcode again replaces its route.
func (reg *Registry) Register(opcode byte, states []SessionState, fn HandlerFunc) {
	reg.routes[opcode] = route{fn: fn, states: statesOf(states)}
}

// Counts returns the running dispatch totals. Safe from any goroutine.
func (reg *Registry) Counts() DispatchCounts {
	return DispatchCounts{
		Handled: reg.handled.Load(),
		Unknown: reg.unknown.Load(),
		Refused: reg.refused.Load(),
		Panics:  reg.panics.Load(),
	}
}

// Dispatch runs the handler for data[0]. Unknown opcodes are dropped
// quietly; an opcode sent in the wrong state and a handler panic are
// returned as errors so the caller can drop the connection.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty packet")
	}
	op := data[0]
	name := OpcodeName(op)
	reg.log.Debug("RX",
		zap.String("op", name),
		zap.Int("len", len(data)),
		zap.Stringer("state", state))

	rt, ok := reg.routes[op]
	if !ok {
		reg.unknown.Add(1)
		reg.log.Debug("no route for opcode", zap.String("op", name))
		return nil
	}
	if !rt.states.has(state) {
		reg.refused.Add(1)
		reg.log.Warn("opcode refused in session state",
			zap.String("op", name),
			zap.Stringer("state", state))
		return fmt.Errorf("%s not allowed in state %s", name, state)
	}

	if err := reg.call(rt.fn, sess, NewReaderCharset(data, reg.charset), name); err != nil {
		reg.panics.Add(1)
		return err
	}
	reg.handled.Add(1)
	return nil
}

// call runs fn and turns a panic into an error.
func (reg *Registry) call(fn HandlerFunc, sess any, r *Reader, name string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("packet handler panicked",
				zap.String("op", name),
				zap.Any("panic", rec))
			err = fmt.Errorf("%s handler panic: %v", name, rec)
		}
	}()
	fn(sess, r)
	return nil
}
