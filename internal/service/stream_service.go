package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vidrelay/vidrelay/internal/auth"
	"github.com/vidrelay/vidrelay/internal/domain"
	"github.com/vidrelay/vidrelay/internal/extractor"
	"github.com/vidrelay/vidrelay/internal/relay"
	"github.com/vidrelay/vidrelay/internal/worker"
)

// DirectRelayer streams a single resolved source to the client.
type DirectRelayer interface {
	Relay(ctx context.Context, sourceURL string, offset int64, w io.Writer) (int64, error)
}

// MergeRelayer combines separate video and audio sources into one stream.
type MergeRelayer interface {
	Merge(ctx context.Context, videoURL, audioURL string, offset int64, w io.Writer) (int64, error)
}

// TaskRunner schedules blocking work off the request path.
type TaskRunner interface {
	Run(ctx context.Context, task worker.Task) error
}

// StreamService is the source resolver: it dispatches a download request by
// platform, resolves the requested format to upstream byte sources, and
// drives the relay, falling back through the format ladder when the platform
// has a multi-rendition catalog.
type StreamService struct {
	extractor extractor.Extractor
	pool      TaskRunner
	direct    DirectRelayer
	merge     MergeRelayer
	ladder    *relay.Ladder
	events    *EventService
	logger    *slog.Logger
}

// NewStreamService creates the resolver with its collaborators.
func NewStreamService(
	ex extractor.Extractor,
	pool TaskRunner,
	direct DirectRelayer,
	merge MergeRelayer,
	ladder *relay.Ladder,
	events *EventService,
	logger *slog.Logger,
) *StreamService {
	return &StreamService{
		extractor: ex,
		pool:      pool,
		direct:    direct,
		merge:     merge,
		ladder:    ladder,
		events:    events,
		logger:    logger,
	}
}

// Stream resolves and relays the request to w. Returns the terminal ladder
// result; a non-nil error with StateSuccess means the stream ended early
// after bytes were already delivered.
func (s *StreamService) Stream(ctx context.Context, req domain.StreamRequest, w io.Writer) (relay.Result, error) {
	platform := domain.IdentifyPlatform(req.URL)
	if platform == domain.PlatformUnknown {
		return relay.Result{State: relay.StateExhausted}, fmt.Errorf("url %q: %w", req.URL, domain.ErrUnsupportedPlatform)
	}

	room := auth.RoomID(req.Token)
	s.events.EmitInfo(domain.EventCategoryDownload, "resolver", "download started", domain.EventMetadata{
		"platform": platform.String(),
		"format":   req.FormatID,
		"offset":   req.StartByte,
	})

	var (
		requested string
		attempt   relay.AttemptFunc
	)
	if platform.HasFormatCatalog() {
		// The ladder walks the video component of a composite identifier;
		// the first attempt realizes the composite through the merge pipe.
		videoID, audioID := domain.SplitFormatID(req.FormatID)
		requested = videoID
		attempt = s.catalogAttempt(req.URL, videoID, audioID, req.StartByte, w)
	} else {
		// Single-rendition platforms always resolve their best stream and
		// never participate in the ladder.
		requested = "best"
		attempt = s.bestAttempt(req.URL, req.StartByte, w)
	}

	result, err := s.ladder.Run(ctx, room, requested, attempt)

	switch {
	case err == nil:
		s.events.EmitSuccess(domain.EventCategoryDownload, "resolver", "download finished", domain.EventMetadata{
			"platform": platform.String(),
			"format":   req.FormatID,
			"attempts": result.Attempts,
		})
	default:
		s.events.EmitError(domain.EventCategoryDownload, "resolver", "download failed: "+err.Error(), domain.EventMetadata{
			"platform": platform.String(),
			"format":   req.FormatID,
			"attempts": result.Attempts,
			"state":    result.State.String(),
		})
	}
	return result, err
}

// catalogAttempt resolves one catalog identifier per call, reusing the first
// successful extraction across fallback attempts for the same request.
func (s *StreamService) catalogAttempt(url, videoID, audioID string, offset int64, w io.Writer) relay.AttemptFunc {
	var info *extractor.MediaInfo
	return func(ctx context.Context, formatID string) (int64, error) {
		if info == nil {
			m, err := s.extract(ctx, url)
			if err != nil {
				return 0, err
			}
			info = m
		}

		if audioID != "" && formatID == videoID {
			vf, ok := info.FindFormat(videoID)
			if !ok || vf.SourceURL == "" {
				return 0, fmt.Errorf("video format %s: %w", videoID, domain.ErrFormatUnavailable)
			}
			af, ok := info.FindFormat(audioID)
			if !ok || af.SourceURL == "" {
				return 0, fmt.Errorf("audio format %s: %w", audioID, domain.ErrFormatUnavailable)
			}
			return s.merge.Merge(ctx, vf.SourceURL, af.SourceURL, offset, w)
		}

		f, ok := info.FindFormat(formatID)
		if !ok || f.SourceURL == "" {
			return 0, fmt.Errorf("format %s: %w", formatID, domain.ErrFormatUnavailable)
		}
		return s.direct.Relay(ctx, f.SourceURL, offset, w)
	}
}

// bestAttempt resolves the single best rendition regardless of the requested
// identifier.
func (s *StreamService) bestAttempt(url string, offset int64, w io.Writer) relay.AttemptFunc {
	return func(ctx context.Context, _ string) (int64, error) {
		info, err := s.extract(ctx, url)
		if err != nil {
			return 0, err
		}
		src := bestSourceURL(info)
		if src == "" {
			return 0, fmt.Errorf("%s: %w", url, domain.ErrNoStreamURL)
		}
		return s.direct.Relay(ctx, src, offset, w)
	}
}

// extract runs the blocking metadata lookup on the worker pool.
func (s *StreamService) extract(ctx context.Context, url string) (*extractor.MediaInfo, error) {
	var info *extractor.MediaInfo
	err := s.pool.Run(ctx, func(ctx context.Context) error {
		m, err := s.extractor.Extract(ctx, url)
		if err != nil {
			return err
		}
		info = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// bestSourceURL picks the stream URL for single-rendition platforms. The
// extractor lists formats in ascending quality, so the last combined format
// wins; a top-level URL beats everything.
func bestSourceURL(info *extractor.MediaInfo) string {
	if info.URL != "" {
		return info.URL
	}
	var fallback string
	for i := len(info.Formats) - 1; i >= 0; i-- {
		f := info.Formats[i]
		if f.SourceURL == "" {
			continue
		}
		if f.HasVideo() && f.HasAudio() {
			return f.SourceURL
		}
		if fallback == "" {
			fallback = f.SourceURL
		}
	}
	return fallback
}
