package net

import (
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Server creates Sessions for accepted connections from any transport.
// New sessions are handed to the host loop through a channel; session ids
// are unique across transports and double as viewer ids.
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64
	newConns chan *Session
	opts     SessionOptions
	log      *zap.Logger

	closeCh   chan struct{}
	closeOnce sync.Once
}

func NewServer(opts SessionOptions, log *zap.Logger) *Server {
	return &Server{
		newConns: make(chan *Session, 64),
		opts:     opts,
		log:      log,
		closeCh:  make(chan struct{}),
	}
}

// Listen opens the TCP listener. Call AcceptLoop to serve it.
func (s *Server) Listen(bindAddr string) error {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// AcceptLoop runs in its own goroutine. It accepts TCP connections until
// Shutdown.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}
		s.Accept(NewTCPConn(conn))
	}
}

// Accept starts a session on conn and queues it for the host loop. Returns
// nil when the server is shutting down or the queue is full; conn is
// closed in that case.
func (s *Server) Accept(conn Conn) *Session {
	select {
	case <-s.closeCh:
		conn.Close()
		return nil
	default:
	}

	id := s.nextID.Add(1)
	sess := NewSession(conn, id, s.opts, s.log)
	sess.Start()

	s.log.Info("client connected", zap.Uint64("session", id), zap.String("ip", sess.IP))

	select {
	case s.newConns <- sess:
		return sess
	default:
		s.log.Warn("connection queue full, rejecting client")
		sess.Close()
		return nil
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		if s.listener != nil {
			err = s.listener.Close()
		}
	})
	return err
}

// Addr returns the TCP listener's address, or nil without one.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
