package ws

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/visiona/camflow/frameslot"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	return conn
}

// TestStreamDeliversBinaryFrames validates each publish arrives as one
// complete binary message.
func TestStreamDeliversBinaryFrames(t *testing.T) {
	slot := frameslot.New()
	streamer := NewStreamer(slot)
	srv := httptest.NewServer(streamer)
	defer srv.Close()
	defer slot.Close()

	first := []byte("frame-one")
	slot.Publish(first, time.Now())

	conn := dial(t, srv)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading first frame: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Errorf("message type = %d, want BinaryMessage", mt)
	}
	if !bytes.Equal(msg, first) {
		t.Errorf("first frame = %q, want %q", msg, first)
	}

	second := []byte("frame-two")
	slot.Publish(second, time.Now())

	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading second frame: %v", err)
	}
	if !bytes.Equal(msg, second) {
		t.Errorf("second frame = %q, want %q", msg, second)
	}
}

// TestSlotCloseEndsStream validates the server sends a close frame and
// drops the connection when capture stops.
func TestSlotCloseEndsStream(t *testing.T) {
	slot := frameslot.New()
	srv := httptest.NewServer(NewStreamer(slot))
	defer srv.Close()

	slot.Publish([]byte("frame"), time.Now())

	conn := dial(t, srv)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("reading frame: %v", err)
	}

	slot.Close()

	// The next read observes the close handshake.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("close error = %v, want going-away", err)
			}
			return
		}
	}
}
