package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/vidrelay/vidrelay/internal/extractor"
	"github.com/vidrelay/vidrelay/internal/relay"
	"github.com/vidrelay/vidrelay/internal/service"
	"github.com/vidrelay/vidrelay/internal/worker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubExtractor struct {
	info     *extractor.MediaInfo
	playlist *extractor.PlaylistInfo
	err      error
}

func (s *stubExtractor) Extract(ctx context.Context, url string) (*extractor.MediaInfo, error) {
	return s.info, s.err
}

func (s *stubExtractor) ExtractPlaylist(ctx context.Context, url string) (*extractor.PlaylistInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.playlist == nil {
		return nil, errors.New("no playlist configured")
	}
	return s.playlist, nil
}

type inlineRunner struct{}

func (inlineRunner) Run(ctx context.Context, task worker.Task) error {
	return task(ctx)
}

// stubRelay writes a fixed payload for every source URL, then fails with err
// if one is configured. An empty payload with a non-nil err models a failure
// before the first byte.
type stubRelay struct {
	payload string
	err     error
}

func (s *stubRelay) Relay(ctx context.Context, sourceURL string, offset int64, w io.Writer) (int64, error) {
	n, werr := io.WriteString(w, s.payload)
	if werr != nil {
		return int64(n), werr
	}
	return int64(n), s.err
}

func (s *stubRelay) Merge(ctx context.Context, videoURL, audioURL string, offset int64, w io.Writer) (int64, error) {
	return s.Relay(ctx, videoURL, offset, w)
}

type noopNotifier struct{}

func (noopNotifier) Notify(room, message, messageType string) {}

func newTestEventService(t *testing.T) *service.EventService {
	t.Helper()
	svc, err := service.NewEventService(service.EventServiceConfig{RingBufferSize: 64}, testLogger())
	if err != nil {
		t.Fatalf("NewEventService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func newTestStreamService(t *testing.T, ex extractor.Extractor, relays *stubRelay) *service.StreamService {
	t.Helper()
	ladder := relay.NewLadder(noopNotifier{}, testLogger())
	return service.NewStreamService(ex, inlineRunner{}, relays, relays, ladder, newTestEventService(t), testLogger())
}
