package relay

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/vidrelay/vidrelay/internal/domain"
)

// rangeServer serves body honoring Range requests, like a media CDN.
func rangeServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := 0
		if rng := r.Header.Get("Range"); rng != "" {
			var err error
			offset, err = strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-"))
			if err != nil || offset > len(body) {
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(body)-offset))
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		}
		w.Write(body[offset:])
	}))
}

// stripLengthFrame parses and removes the control frame from a relayed body.
func stripLengthFrame(t *testing.T, out []byte) (int64, []byte) {
	t.Helper()
	if !bytes.HasPrefix(out, []byte("[CONTENT-LENGTH:")) {
		t.Fatalf("output does not start with a content-length frame: %q", out[:min(32, len(out))])
	}
	end := bytes.IndexByte(out, ']')
	if end < 0 {
		t.Fatal("unterminated content-length frame")
	}
	n, err := strconv.ParseInt(string(out[len("[CONTENT-LENGTH:"):end]), 10, 64)
	if err != nil {
		t.Fatalf("parse length frame: %v", err)
	}
	return n, out[end+1:]
}

func TestDirectRelayFullBody(t *testing.T) {
	body := make([]byte, 3*ChunkSize+17)
	for i := range body {
		body[i] = byte(i % 251)
	}
	srv := rangeServer(t, body)
	defer srv.Close()

	relay := NewDirectRelay("test-agent", testLogger())
	var out bytes.Buffer
	written, err := relay.Relay(context.Background(), srv.URL, 0, &out)
	if err != nil {
		t.Fatalf("Relay: %v", err)
	}

	declared, media := stripLengthFrame(t, out.Bytes())
	if declared != int64(len(body)) {
		t.Errorf("declared length = %d, want %d", declared, len(body))
	}
	if !bytes.Equal(media, body) {
		t.Error("relayed media differs from upstream body")
	}
	if written != int64(out.Len()) {
		t.Errorf("written = %d, want %d", written, out.Len())
	}
}

func TestDirectRelayResume(t *testing.T) {
	body := make([]byte, 2*ChunkSize+999)
	for i := range body {
		body[i] = byte(i * 7 % 256)
	}
	srv := rangeServer(t, body)
	defer srv.Close()

	relay := NewDirectRelay("", testLogger())

	for _, offset := range []int64{1, 100, int64(ChunkSize), int64(len(body)) - 1} {
		var out bytes.Buffer
		if _, err := relay.Relay(context.Background(), srv.URL, offset, &out); err != nil {
			t.Fatalf("Relay(offset=%d): %v", offset, err)
		}
		_, media := stripLengthFrame(t, out.Bytes())
		if !bytes.Equal(media, body[offset:]) {
			t.Errorf("offset %d: relayed bytes differ from body[%d:]", offset, offset)
		}
	}
}

func TestDirectRelayUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	relay := NewDirectRelay("", testLogger())
	var out bytes.Buffer
	_, err := relay.Relay(context.Background(), srv.URL, 0, &out)

	var upErr *domain.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("error type = %T, want *domain.UpstreamError", err)
	}
	if upErr.StatusCode != http.StatusGone {
		t.Errorf("StatusCode = %d, want %d", upErr.StatusCode, http.StatusGone)
	}
	if out.Len() != 0 {
		t.Errorf("wrote %d bytes on upstream error, want 0", out.Len())
	}
}

func TestDirectRelaySendsRangeHeader(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	relay := NewDirectRelay("", testLogger())

	var out bytes.Buffer
	if _, err := relay.Relay(context.Background(), srv.URL, 500000, &out); err != nil {
		t.Fatalf("Relay: %v", err)
	}
	if gotRange != "bytes=500000-" {
		t.Errorf("Range header = %q, want %q", gotRange, "bytes=500000-")
	}

	out.Reset()
	gotRange = "unset"
	if _, err := relay.Relay(context.Background(), srv.URL, 0, &out); err != nil {
		t.Fatalf("Relay: %v", err)
	}
	if gotRange != "" {
		t.Errorf("Range header = %q, want omitted at offset 0", gotRange)
	}
}

// brokenWriter fails after accepting some bytes, like a disconnected client.
type brokenWriter struct {
	accept int
	wrote  int
}

func (b *brokenWriter) Write(p []byte) (int, error) {
	if b.wrote >= b.accept {
		return 0, errors.New("broken pipe")
	}
	n := len(p)
	if b.wrote+n > b.accept {
		n = b.accept - b.wrote
	}
	b.wrote += n
	if n < len(p) {
		return n, errors.New("broken pipe")
	}
	return n, nil
}

func TestDirectRelayClientDisconnect(t *testing.T) {
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(10*ChunkSize))
		buf := make([]byte, ChunkSize)
		for i := 0; i < 10; i++ {
			if _, err := w.Write(buf); err != nil {
				close(released)
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		close(released)
	}))
	defer srv.Close()

	relay := NewDirectRelay("", testLogger())
	w := &brokenWriter{accept: ChunkSize + 100}
	_, err := relay.Relay(context.Background(), srv.URL, 0, w)
	if err == nil {
		t.Fatal("expected error when client write fails")
	}

	// The upstream handler must unblock (connection released) promptly.
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream connection not released after client disconnect")
	}
}

