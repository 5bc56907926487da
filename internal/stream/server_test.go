package stream

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"camera-node/internal/config"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := NewServer(config.GetDefaultConfig().Stream, zap.NewNop())
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Stop(context.Background())
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitEvent(t *testing.T, srv *Server, want EventType) Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var pending []Event
	for time.Now().Before(deadline) {
		pending = append(pending, srv.Poll()...)
		for i, ev := range pending {
			if ev.Type == want {
				return pending[i]
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %v event, got %+v", want, pending)
	return Event{}
}

func TestServerSessionLifecycle(t *testing.T) {
	srv, url := newTestServer(t)
	conn := dial(t, url)

	ev := waitEvent(t, srv, Connected)
	if ev.SessionID == "" || ev.URL != "/ws" {
		t.Fatalf("connected event = %+v", ev)
	}
	if srv.Count() != 1 {
		t.Fatalf("Count = %d", srv.Count())
	}

	if !srv.SendText(ev.SessionID, "hello") {
		t.Fatal("SendText returned false")
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if mt != websocket.TextMessage || string(msg) != "hello" {
		t.Fatalf("got %d %q", mt, msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("stream_stop")); err != nil {
		t.Fatal(err)
	}
	text := waitEvent(t, srv, Text)
	if string(text.Payload) != "stream_stop" || text.SessionID != ev.SessionID {
		t.Fatalf("text event = %+v", text)
	}

	conn.Close()
	gone := waitEvent(t, srv, Disconnected)
	if gone.SessionID != ev.SessionID {
		t.Fatalf("disconnected %q, want %q", gone.SessionID, ev.SessionID)
	}
	if srv.Count() != 0 {
		t.Fatalf("Count after close = %d", srv.Count())
	}
}

func TestBroadcastBinaryCopiesFrame(t *testing.T) {
	srv, url := newTestServer(t)
	conn := dial(t, url)
	defer conn.Close()
	waitEvent(t, srv, Connected)

	frame := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}
	if n := srv.BroadcastBinary(frame); n != 1 {
		t.Fatalf("BroadcastBinary sent to %d sessions", n)
	}
	// буфер возвращается драйверу сразу после отправки
	frame[2] = 0x99

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("message type = %d", mt)
	}
	if !bytes.Equal(msg, []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}) {
		t.Fatalf("payload = %x", msg)
	}
}

func TestBroadcastWithoutClients(t *testing.T) {
	srv := NewServer(config.GetDefaultConfig().Stream, zap.NewNop())
	if n := srv.BroadcastBinary([]byte{1}); n != 0 {
		t.Fatalf("sent = %d", n)
	}
	if srv.SendText("missing", "x") {
		t.Fatal("SendText to unknown session returned true")
	}
}

func TestMultipleClientsReceiveBroadcast(t *testing.T) {
	srv, url := newTestServer(t)
	a := dial(t, url)
	defer a.Close()
	b := dial(t, url)
	defer b.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := srv.BroadcastBinary([]byte("jpeg")); n != 2 {
		t.Fatalf("sent = %d, want 2", n)
	}
	for _, c := range []*websocket.Conn{a, b} {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, msg, err := c.ReadMessage(); err != nil || string(msg) != "jpeg" {
			t.Fatalf("read %q, %v", msg, err)
		}
	}
}
