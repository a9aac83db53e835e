package domain

import "strings"

// FormatDescriptor describes one encoded rendition of a source asset, as
// reported by the metadata extractor. Source URLs are valid only for a
// limited window and are re-resolved per request, never persisted.
type FormatDescriptor struct {
	FormatID       string
	Ext            string
	VCodec         string
	ACodec         string
	Resolution     string
	VideoBitrate   float64
	AudioBitrate   float64
	Filesize       int64
	FilesizeApprox int64
	SourceURL      string
}

// HasVideo reports whether the format carries a video track.
func (f FormatDescriptor) HasVideo() bool {
	return f.VCodec != "" && f.VCodec != "none"
}

// HasAudio reports whether the format carries an audio track.
func (f FormatDescriptor) HasAudio() bool {
	return f.ACodec != "" && f.ACodec != "none"
}

// StreamRequest is an immutable download request as dispatched to the
// streaming engine.
type StreamRequest struct {
	URL string

	// FormatID may be a composite "video+audio" identifier, which is
	// realized through the merge pipe.
	FormatID string

	// StartByte is the resume offset. It is applied to whichever byte
	// source ends up being streamed, even after a fallback switches
	// formats.
	StartByte int64

	// Token is the caller's session token, used only to derive the
	// notification room.
	Token string
}

// SplitFormatID splits a possibly composite "video+audio" format identifier.
// For a plain identifier, audioID is empty.
func SplitFormatID(formatID string) (videoID, audioID string) {
	if i := strings.IndexByte(formatID, '+'); i >= 0 {
		return formatID[:i], formatID[i+1:]
	}
	return formatID, ""
}

// IsComposite reports whether the identifier names separate video and audio
// tracks.
func IsComposite(formatID string) bool {
	return strings.IndexByte(formatID, '+') >= 0
}
