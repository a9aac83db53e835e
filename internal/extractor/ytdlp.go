package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/vidrelay/vidrelay/internal/domain"
)

// YtDlp shells out to the yt-dlp binary for metadata extraction. The binary
// is treated as a black box; only its JSON output shape is depended on.
type YtDlp struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewYtDlp creates a yt-dlp backed extractor. If path is empty, "yt-dlp" is
// looked up on PATH.
func NewYtDlp(path string, timeout time.Duration, logger *slog.Logger) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &YtDlp{path: path, timeout: timeout, logger: logger}
}

// Available checks that the extractor binary is executable. Absence is a
// startup-time fatal precondition.
func (y *YtDlp) Available() bool {
	_, err := exec.LookPath(y.path)
	return err == nil
}

// rawInfo mirrors the subset of yt-dlp's JSON output this server depends on.
type rawInfo struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Uploader    string      `json:"uploader"`
	Description string      `json:"description"`
	ViewCount   int64       `json:"view_count"`
	Duration    float64     `json:"duration"`
	Ext         string      `json:"ext"`
	URL         string      `json:"url"`
	Formats     []rawFormat `json:"formats"`
	Entries     []rawEntry  `json:"entries"`
}

type rawFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	URL            string  `json:"url"`
	Resolution     string  `json:"resolution"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	VBR            float64 `json:"vbr"`
	ABR            float64 `json:"abr"`
}

type rawEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Extract runs yt-dlp in JSON-dump mode and parses the result.
func (y *YtDlp) Extract(ctx context.Context, url string) (*MediaInfo, error) {
	raw, err := y.dump(ctx, url, "--no-playlist")
	if err != nil {
		return nil, err
	}

	info := &MediaInfo{
		ID:          raw.ID,
		Title:       raw.Title,
		Uploader:    raw.Uploader,
		Description: raw.Description,
		ViewCount:   raw.ViewCount,
		Duration:    raw.Duration,
		Ext:         raw.Ext,
		URL:         raw.URL,
		Formats:     make([]domain.FormatDescriptor, 0, len(raw.Formats)),
	}
	for _, f := range raw.Formats {
		if f.URL == "" {
			continue
		}
		info.Formats = append(info.Formats, domain.FormatDescriptor{
			FormatID:       f.FormatID,
			Ext:            f.Ext,
			VCodec:         f.VCodec,
			ACodec:         f.ACodec,
			Resolution:     f.Resolution,
			VideoBitrate:   f.VBR,
			AudioBitrate:   f.ABR,
			Filesize:       f.Filesize,
			FilesizeApprox: f.FilesizeApprox,
			SourceURL:      f.URL,
		})
	}

	if info.URL == "" && len(info.Formats) == 0 {
		return nil, domain.NewExtractionError(url, domain.ErrNoStreamURL)
	}
	return info, nil
}

// ExtractPlaylist runs yt-dlp in flat-playlist mode. Entries with no
// extractable metadata are dropped silently.
func (y *YtDlp) ExtractPlaylist(ctx context.Context, url string) (*PlaylistInfo, error) {
	raw, err := y.dump(ctx, url, "--flat-playlist")
	if err != nil {
		return nil, err
	}

	info := &PlaylistInfo{Title: raw.Title}
	for _, e := range raw.Entries {
		if e.ID == "" || e.Title == "" {
			continue
		}
		entryURL := e.URL
		if entryURL == "" {
			entryURL = "https://www.youtube.com/watch?v=" + e.ID
		}
		info.Entries = append(info.Entries, PlaylistEntry{
			ID:    e.ID,
			Title: e.Title,
			URL:   entryURL,
		})
	}
	if len(info.Entries) == 0 {
		return nil, domain.NewExtractionError(url, domain.ErrPlaylistEmpty)
	}
	return info, nil
}

func (y *YtDlp) dump(ctx context.Context, url string, extraArgs ...string) (*rawInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	args := []string{"-J", "--no-warnings"}
	args = append(args, extraArgs...)
	args = append(args, url)

	cmd := exec.CommandContext(ctx, y.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		y.logger.Warn("extractor run failed",
			"url", url,
			"error", err,
			"stderr", detail,
		)
		if detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}
		return nil, domain.NewExtractionError(url, err)
	}
	y.logger.Debug("extractor run complete",
		"url", url,
		"duration", time.Since(start),
	)

	var raw rawInfo
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, domain.NewExtractionError(url, fmt.Errorf("parse extractor output: %w", err))
	}
	if raw.Title == "" && raw.URL == "" && len(raw.Formats) == 0 && len(raw.Entries) == 0 {
		return nil, domain.NewExtractionError(url, errors.New("extractor returned no usable result"))
	}
	return &raw, nil
}
