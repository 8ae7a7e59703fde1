package mjpeg

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/visiona/camflow/frameslot"
)

// TestSnapshotBeforeFirstFrame validates the snapshot endpoint reports
// unavailability rather than serving an empty body.
func TestSnapshotBeforeFirstFrame(t *testing.T) {
	slot := frameslot.New()
	defer slot.Close()
	srv := httptest.NewServer(NewStreamer(slot).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/snapshot")
	if err != nil {
		t.Fatalf("GET /snapshot: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

// TestSnapshotServesLatestFrame validates the snapshot endpoint returns the
// most recent publish verbatim.
func TestSnapshotServesLatestFrame(t *testing.T) {
	slot := frameslot.New()
	defer slot.Close()
	srv := httptest.NewServer(NewStreamer(slot).Handler())
	defer srv.Close()

	slot.Publish([]byte("stale"), time.Now())
	want := []byte("fresh-jpeg-bytes")
	slot.Publish(want, time.Now())

	resp, err := http.Get(srv.URL + "/snapshot")
	if err != nil {
		t.Fatalf("GET /snapshot: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, want) {
		t.Errorf("body = %q, want %q", body, want)
	}
}

// TestStreamDeliversFramesInOrder validates the multipart stream carries
// each new publish as a complete part and ends when the slot closes.
func TestStreamDeliversFramesInOrder(t *testing.T) {
	slot := frameslot.New()
	streamer := NewStreamer(slot)
	srv := httptest.NewServer(streamer.Handler())
	defer srv.Close()

	first := []byte("frame-one")
	slot.Publish(first, time.Now())

	resp, err := http.Get(srv.URL + "/stream")
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("parsing content type: %v", err)
	}
	if mediaType != "multipart/x-mixed-replace" {
		t.Fatalf("media type = %q, want multipart/x-mixed-replace", mediaType)
	}
	mr := multipart.NewReader(resp.Body, params["boundary"])

	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("reading first part: %v", err)
	}
	got, _ := io.ReadAll(part)
	if !bytes.Equal(got, first) {
		t.Errorf("first part = %q, want %q", got, first)
	}
	if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("part Content-Type = %q, want image/jpeg", ct)
	}

	second := []byte("frame-two")
	slot.Publish(second, time.Now())

	part, err = mr.NextPart()
	if err != nil {
		t.Fatalf("reading second part: %v", err)
	}
	got, _ = io.ReadAll(part)
	if !bytes.Equal(got, second) {
		t.Errorf("second part = %q, want %q", got, second)
	}

	// Closing the slot ends the stream.
	slot.Close()
	if _, err := mr.NextPart(); err == nil {
		t.Error("stream kept producing parts after slot close")
	}

	if streamer.Stats().FramesSent < 2 {
		t.Errorf("FramesSent = %d, want at least 2", streamer.Stats().FramesSent)
	}
}
