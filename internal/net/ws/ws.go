// Package ws serves viewer sessions over WebSocket. Each binary message
// carries one payload in the same format as a TCP frame body.
package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonet "github.com/l1jgo/entitysync/internal/net"
	"go.uber.org/zap"
)

// conn adapts a websocket connection to gonet.Conn.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex // gorilla allows one concurrent writer
}

func (c *conn) ReadPayload() ([]byte, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.BinaryMessage {
			return data, nil
		}
		// Text frames are not part of the protocol.
	}
}

func (c *conn) WritePayload(data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

func (c *conn) Close() error {
	// WriteControl may run concurrently with WriteMessage.
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

// Handler upgrades HTTP requests and hands the connections to srv.
type Handler struct {
	srv      *gonet.Server
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHandler(srv *gonet.Server, log *zap.Logger) *Handler {
	return &Handler{
		srv: srv,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	c.SetReadLimit(gonet.MaxFrameSize)
	h.srv.Accept(&conn{ws: c})
}

// Listener serves the WebSocket endpoint on its own HTTP server.
type Listener struct {
	http *http.Server
	log  *zap.Logger
}

func NewListener(addr, path string, h *Handler, log *zap.Logger) *Listener {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	return &Listener{
		http: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Serve blocks until Shutdown.
func (l *Listener) Serve() error {
	l.log.Info("websocket listener starting", zap.String("addr", l.http.Addr))
	err := l.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops the HTTP server. Upgraded connections belong to their
// sessions and are closed by them.
func (l *Listener) Close() error {
	return l.http.Close()
}
