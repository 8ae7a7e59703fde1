package mjpeg

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/visiona/camflow/frameslot"
)

// waitTimeout bounds each blocking wait for a new frame so the handler can
// observe client disconnects between frames.
const waitTimeout = time.Second

// Streamer serves frames from a slot over HTTP.
type Streamer struct {
	slot frameslot.Slot

	clients    atomic.Int64
	framesSent atomic.Uint64
}

// NewStreamer creates a streamer reading from slot.
func NewStreamer(slot frameslot.Slot) *Streamer {
	return &Streamer{slot: slot}
}

// Handler returns a mux exposing the stream and snapshot endpoints.
func (s *Streamer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.ServeStream)
	mux.HandleFunc("/snapshot", s.ServeSnapshot)
	return mux
}

// ServeStream writes a multipart/x-mixed-replace JPEG stream until the
// client disconnects or the slot closes.
func (s *Streamer) ServeStream(w http.ResponseWriter, r *http.Request) {
	// Only need a fresh boundary string; the parts are written by hand so
	// each frame can be flushed individually.
	mw := multipart.NewWriter(io.Discard)
	boundary := mw.Boundary()
	mw.Close()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	ctx := r.Context()

	n := s.clients.Add(1)
	slog.Info("mjpeg: client connected", "remote", r.RemoteAddr, "clients", n)
	defer func() {
		slog.Info("mjpeg: client disconnected", "remote", r.RemoteAddr,
			"clients", s.clients.Add(-1))
	}()

	var lastSeen uint64
	for {
		if ctx.Err() != nil {
			return
		}

		snap, err := s.slot.WaitForNext(lastSeen, waitTimeout)
		switch {
		case errors.Is(err, frameslot.ErrWaitTimeout):
			continue
		case errors.Is(err, frameslot.ErrSlotClosed):
			return
		case err != nil:
			slog.Error("mjpeg: waiting for frame", "error", err)
			return
		}
		lastSeen = snap.Generation

		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
			boundary, len(snap.Data)); err != nil {
			return
		}
		if _, err := w.Write(snap.Data); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		s.framesSent.Add(1)
	}
}

// ServeSnapshot writes the current frame as a single JPEG. Responds 503
// while nothing has been published yet.
func (s *Streamer) ServeSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.slot.Snapshot()
	if !ok {
		http.Error(w, "no frame available yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(snap.Data)))
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(snap.Data); err != nil {
		slog.Debug("mjpeg: snapshot write failed", "error", err)
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
