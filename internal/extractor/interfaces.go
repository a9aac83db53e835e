package extractor

import (
	"context"

	"github.com/vidrelay/vidrelay/internal/domain"
)

// MediaInfo is the structured description returned by the metadata
// extractor for a single asset.
type MediaInfo struct {
	ID          string
	Title       string
	Uploader    string
	Description string
	ViewCount   int64
	Duration    float64
	Ext         string

	// URL is the top-level stream URL for single-rendition platforms.
	URL string

	Formats []domain.FormatDescriptor
}

// FindFormat returns the descriptor matching the format identifier, or
// false when the asset has no such rendition.
func (m *MediaInfo) FindFormat(formatID string) (domain.FormatDescriptor, bool) {
	for _, f := range m.Formats {
		if f.FormatID == formatID {
			return f, true
		}
	}
	return domain.FormatDescriptor{}, false
}

// PlaylistEntry is one item of an extracted playlist.
type PlaylistEntry struct {
	ID    string
	Title string
	URL   string
}

// PlaylistInfo is the structured description of a playlist.
type PlaylistInfo struct {
	Title   string
	Entries []PlaylistEntry
}

// Extractor resolves media URLs to stream descriptors. Implementations
// perform blocking work and must be called through the worker pool, never
// inline on a request handling path.
type Extractor interface {
	// Extract fetches metadata and available formats for a single asset.
	Extract(ctx context.Context, url string) (*MediaInfo, error)

	// ExtractPlaylist fetches playlist metadata without resolving entries.
	ExtractPlaylist(ctx context.Context, url string) (*PlaylistInfo, error)
}
