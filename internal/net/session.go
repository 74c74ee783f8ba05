package net

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l1jgo/entitysync/internal/net/packet"
	"go.uber.org/zap"
)

var (
	ErrQueueFull     = errors.New("session output queue full")
	ErrSessionClosed = errors.New("session closed")
)

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; packet handling happens on the host loop.
type Session struct {
	ID   uint64 // also the viewer id once the client said hello
	conn Conn

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // host loop reads packets from here
	OutQueue chan []byte // writer goroutine reads from here

	IP   string
	Name string // set by the hello handler

	outBuf [][]byte   // buffered packets, flushed by the host loop only
	sendMu sync.Mutex // serializes writers of OutQueue

	kickCh    chan []byte // final packet before a server-side close
	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// Per-second packet rate limiter (readLoop goroutine only, no lock needed)
	pktPerSec  int   // max packets/sec (0 = unlimited)
	pktCount   int   // packets received this second
	pktResetAt int64 // unix second of last counter reset

	writeTimeout time.Duration

	log *zap.Logger
}

// SessionOptions sizes a session's queues and limits.
type SessionOptions struct {
	InQueueSize      int
	OutQueueSize     int
	PacketsPerSecond int
	WriteTimeout     time.Duration
}

func NewSession(conn Conn, id uint64, opts SessionOptions, log *zap.Logger) *Session {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, opts.InQueueSize),
		OutQueue:     make(chan []byte, opts.OutQueueSize),
		IP:           conn.RemoteAddr(),
		kickCh:       make(chan []byte, 1),
		closeCh:      make(chan struct{}),
		pktPerSec:    opts.PacketsPerSecond,
		writeTimeout: opts.WriteTimeout,
		log:          log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a packet for sending. The packet is not written until
// FlushOutput is called by the host loop.
// Called only from the host loop goroutine, no lock needed on outBuf.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop goroutine.
// Non-blocking: if OutQueue is full, the session is disconnected.
func (s *Session) FlushOutput() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow connection")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// TrySend queues data for the writer without blocking. It is safe to call
// from any goroutine. A full queue returns ErrQueueFull and leaves the
// session open so the caller can retry.
func (s *Session) TrySend(data []byte) error {
	return s.TrySendAll([][]byte{data})
}

// TrySendAll queues every payload or none of them. Only the writer drains
// OutQueue, so free space seen under sendMu cannot shrink before the
// payloads are in.
func (s *Session) TrySendAll(payloads [][]byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if cap(s.OutQueue)-len(s.OutQueue) < len(payloads) {
		return ErrQueueFull
	}
	for _, data := range payloads {
		select {
		case s.OutQueue <- data:
		case <-s.closeCh:
			return ErrSessionClosed
		}
	}
	return nil
}

// Kick writes data after everything already queued, then closes the
// session. Packets received meanwhile are refused by state.
func (s *Session) Kick(data []byte) {
	if s.closed.Load() {
		return
	}
	s.SetState(packet.StateDisconnecting)
	select {
	case s.kickCh <- data:
	default: // already kicked
	}
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

// readLoop runs in its own goroutine. It reads payloads from the connection
// and pushes them onto InQueue for the host loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		payload, err := s.conn.ReadPayload()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		if s.pktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.pktPerSec {
				s.log.Warn("packet rate exceeded, disconnecting", zap.Int("pps", s.pktCount))
				return
			}
		}

		// Block until InQueue has space or the session closes. Dropping
		// move packets would leave the viewer's position stale for good.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop runs in its own goroutine. It writes packets from OutQueue to
// the connection in order.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOnePacket(data) {
				return
			}
		case last := <-s.kickCh:
			if s.drainOutput() {
				s.writeOnePacket(last)
			}
			return
		case <-s.closeCh:
			return
		}
	}
}

// drainOutput writes whatever is queued without waiting for more.
func (s *Session) drainOutput() bool {
	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOnePacket(data) {
				return false
			}
		default:
			return true
		}
	}
}

func (s *Session) writeOnePacket(data []byte) bool {
	if len(data) > 0 {
		s.log.Debug("TX",
			zap.String("op", packet.OpcodeName(data[0])),
			zap.Int("len", len(data)),
		)
	}
	if err := s.conn.WritePayload(data, time.Now().Add(s.writeTimeout)); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
