package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	gonet "github.com/l1jgo/entitysync/internal/net"
	"github.com/l1jgo/entitysync/internal/net/packet"
	"go.uber.org/zap/zaptest"
)

func TestWebSocketSession(t *testing.T) {
	log := zaptest.NewLogger(t)
	srv := gonet.NewServer(gonet.SessionOptions{InQueueSize: 4, OutQueueSize: 4, WriteTimeout: time.Second}, log)
	defer srv.Shutdown()

	hs := httptest.NewServer(NewHandler(srv, log))
	defer hs.Close()

	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	var sess *gonet.Session
	select {
	case sess = <-srv.NewSessions():
	case <-time.After(2 * time.Second):
		t.Fatalf("no session")
	}
	defer sess.Close()

	w := packet.NewWriterWithOpcode(packet.C_OPCODE_DIMENSION)
	w.WriteD(3)
	if err := client.WriteMessage(websocket.TextMessage, []byte("ignored")); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if err := client.WriteMessage(websocket.BinaryMessage, w.Bytes()); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case got := <-sess.InQueue:
		r := packet.NewReader(got)
		if r.Opcode() != packet.C_OPCODE_DIMENSION || r.ReadD() != 3 {
			t.Fatalf("inbound = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no inbound packet")
	}

	if err := sess.TrySend([]byte{packet.S_OPCODE_WELCOME, 1}); err != nil {
		t.Fatalf("TrySend: %v", err)
	}
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := client.ReadMessage()
	if err != nil || typ != websocket.BinaryMessage || data[0] != packet.S_OPCODE_WELCOME {
		t.Fatalf("outbound = %d %v %v", typ, data, err)
	}

	client.Close()
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session not closed after client left")
	}
}
