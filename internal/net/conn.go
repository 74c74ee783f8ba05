package net

import (
	"net"
	"time"
)

// Conn is a message-oriented client connection. One payload per call;
// byte 0 of every payload is the opcode.
type Conn interface {
	ReadPayload() ([]byte, error)
	WritePayload(data []byte, deadline time.Time) error
	RemoteAddr() string
	Close() error
}

// tcpConn frames payloads over a stream connection.
type tcpConn struct {
	c net.Conn
}

// NewTCPConn wraps a stream connection with length-prefixed framing.
func NewTCPConn(c net.Conn) Conn {
	return &tcpConn{c: c}
}

func (t *tcpConn) ReadPayload() ([]byte, error) {
	return ReadFrame(t.c)
}

func (t *tcpConn) WritePayload(data []byte, deadline time.Time) error {
	t.c.SetWriteDeadline(deadline)
	return WriteFrame(t.c, data)
}

func (t *tcpConn) RemoteAddr() string {
	return t.c.RemoteAddr().String()
}

func (t *tcpConn) Close() error {
	return t.c.Close()
}
