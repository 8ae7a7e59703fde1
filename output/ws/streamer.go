package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/visiona/camflow/frameslot"
)

const (
	// waitTimeout bounds each blocking wait for a new frame so the write
	// loop can observe client disconnects between frames.
	waitTimeout = time.Second

	// writeTimeout caps how long one frame write may stall on a dead peer.
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Streamer serves frames from a slot to WebSocket clients.
type Streamer struct {
	slot frameslot.Slot

	clients    atomic.Int64
	framesSent atomic.Uint64
}

// NewStreamer creates a streamer reading from slot.
func NewStreamer(slot frameslot.Slot) *Streamer {
	return &Streamer{slot: slot}
}

// ServeHTTP upgrades the connection and streams frames until the client
// disconnects or the slot closes.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	n := s.clients.Add(1)
	slog.Info("ws: client connected", "remote", conn.RemoteAddr().String(), "clients", n)
	defer func() {
		slog.Info("ws: client disconnected", "remote", conn.RemoteAddr().String(),
			"clients", s.clients.Add(-1))
	}()

	// The read pump discards client messages and signals peer-initiated
	// close; the write loop below owns the connection otherwise.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var lastSeen uint64
	for {
		select {
		case <-closed:
			return
		default:
		}

		snap, err := s.slot.WaitForNext(lastSeen, waitTimeout)
		switch {
		case errors.Is(err, frameslot.ErrWaitTimeout):
			continue
		case errors.Is(err, frameslot.ErrSlotClosed):
			deadline := time.Now().Add(writeTimeout)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "capture stopped"),
				deadline)
			return
		case err != nil:
			slog.Error("ws: waiting for frame", "error", err)
			return
		}
		lastSeen = snap.Generation

		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, snap.Data); err != nil {
			slog.Debug("ws: frame write failed", "error", err)
			return
		}
		s.framesSent.Add(1)
	}
}

// Stats reports per-streamer counters.
type Stats struct {
	Clients    int64
	FramesSent uint64
}

// Stats returns current counters.
func (s *Streamer) Stats() Stats {
	return Stats{
		Clients:    s.clients.Load(),
		FramesSent: s.framesSent.Load(),
	}
}
