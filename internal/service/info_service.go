package service

import (
	"context"
	"log/slog"
	"math"
	"net/url"
	"strconv"

	"github.com/vidrelay/vidrelay/internal/domain"
	"github.com/vidrelay/vidrelay/internal/extractor"
)

// Probe identifiers used by DownloadMeta to price a download cheaply. The
// streamed format is chosen later, independently.
const (
	audioProbeFormat = "140"
	videoProbeFormat = "18"
)

// FormatSummary is one catalog entry as presented to clients.
type FormatSummary struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	SizeMB     float64 `json:"size_mb"`
	HasVideo   bool    `json:"has_video"`
	HasAudio   bool    `json:"has_audio"`
}

// FormatList is the full catalog response for one asset.
type FormatList struct {
	Title       string          `json:"title"`
	Uploader    string          `json:"uploader"`
	Description string          `json:"description"`
	ViewCount   int64           `json:"view_count"`
	Formats     []FormatSummary `json:"formats"`
}

// PlaylistEntry is one playlist item as presented to clients.
type PlaylistEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// PlaylistList is the playlist response.
type PlaylistList struct {
	Title   string          `json:"title"`
	Entries []PlaylistEntry `json:"entries"`
}

// DownloadMeta describes a pending download for client-side display.
type DownloadMeta struct {
	Filename  string  `json:"filename"`
	Size      int64   `json:"size"`
	Mime      string  `json:"mime"`
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader"`
	Duration  float64 `json:"duration"`
	SourceURL string  `json:"source_url"`
}

// InfoService is the read path queried before a download request is issued.
// It never streams media, only metadata.
type InfoService struct {
	extractor extractor.Extractor
	pool      TaskRunner
	logger    *slog.Logger
}

// NewInfoService creates the metadata read service.
func NewInfoService(ex extractor.Extractor, pool TaskRunner, logger *slog.Logger) *InfoService {
	return &InfoService{extractor: ex, pool: pool, logger: logger}
}

// ListFormats returns the asset's format catalog with approximate sizes.
func (s *InfoService) ListFormats(ctx context.Context, mediaURL string) (*FormatList, error) {
	info, err := s.extract(ctx, mediaURL)
	if err != nil {
		return nil, err
	}

	list := &FormatList{
		Title:       info.Title,
		Uploader:    info.Uploader,
		Description: info.Description,
		ViewCount:   info.ViewCount,
		Formats:     make([]FormatSummary, 0, len(info.Formats)),
	}
	for _, f := range info.Formats {
		list.Formats = append(list.Formats, FormatSummary{
			FormatID:   f.FormatID,
			Ext:        f.Ext,
			Resolution: f.Resolution,
			SizeMB:     approxSizeMB(f),
			HasVideo:   f.HasVideo(),
			HasAudio:   f.HasAudio(),
		})
	}
	return list, nil
}

// ListPlaylist returns playlist metadata without resolving its entries.
func (s *InfoService) ListPlaylist(ctx context.Context, listURL string) (*PlaylistList, error) {
	var info *extractor.PlaylistInfo
	err := s.pool.Run(ctx, func(ctx context.Context) error {
		p, err := s.extractor.ExtractPlaylist(ctx, listURL)
		if err != nil {
			return err
		}
		info = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	list := &PlaylistList{
		Title:   info.Title,
		Entries: make([]PlaylistEntry, 0, len(info.Entries)),
	}
	for _, e := range info.Entries {
		list.Entries = append(list.Entries, PlaylistEntry{ID: e.ID, Title: e.Title, URL: e.URL})
	}
	return list, nil
}

// DownloadMeta resolves display metadata for a pending download. A composite
// identifier collapses to its video component, which then maps to a fixed
// probe format; the probe is only a cheap stand-in for size and naming, not
// the format that will be streamed.
func (s *InfoService) DownloadMeta(ctx context.Context, mediaURL, formatID string) (*DownloadMeta, error) {
	info, err := s.extract(ctx, mediaURL)
	if err != nil {
		return nil, err
	}

	collapsed, _ := domain.SplitFormatID(formatID)
	probe := videoProbeFormat
	ext := "mp4"
	if domain.IsAudioFormat(collapsed) {
		probe = audioProbeFormat
		ext = "m4a"
	}

	meta := &DownloadMeta{
		Filename: info.Title + "." + ext,
		Mime:     MimeForExt(ext),
		Title:    info.Title,
		Uploader: info.Uploader,
		Duration: info.Duration,
	}

	f, ok := info.FindFormat(probe)
	if !ok {
		// Probe absent from this asset's catalog; fall back to the
		// collapsed identifier itself.
		f, ok = info.FindFormat(collapsed)
	}
	if ok {
		meta.Size = sizeBytes(f)
		meta.SourceURL = f.SourceURL
	}
	return meta, nil
}

func (s *InfoService) extract(ctx context.Context, mediaURL string) (*extractor.MediaInfo, error) {
	var info *extractor.MediaInfo
	err := s.pool.Run(ctx, func(ctx context.Context) error {
		m, err := s.extractor.Extract(ctx, mediaURL)
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

// sizeBytes resolves a format's size in priority order: exact, approximate,
// then the content-length hint embedded in the source URL. Fails open to 0.
func sizeBytes(f domain.FormatDescriptor) int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	if f.FilesizeApprox > 0 {
		return f.FilesizeApprox
	}
	u, err := url.Parse(f.SourceURL)
	if err != nil {
		return 0
	}
	if clen := u.Query().Get("clen"); clen != "" {
		if n, err := strconv.ParseInt(clen, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// approxSizeMB converts the resolved size to megabytes, two decimals.
func approxSizeMB(f domain.FormatDescriptor) float64 {
	bytes := sizeBytes(f)
	if bytes <= 0 {
		return 0
	}
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}

// MimeForExt maps a container extension to a content type, defaulting to
// video/mp4.
func MimeForExt(ext string) string {
	switch ext {
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "m4a":
		return "audio/mp4"
	case "mp3":
		return "audio/mpeg"
	case "opus", "ogg":
		return "audio/ogg"
	default:
		return "video/mp4"
	}
}
