package domain

import (
	"net/url"
	"strings"
)

// Platform identifies the origin site of a media URL.
type Platform int

const (
	PlatformUnknown Platform = iota
	PlatformYouTube
	PlatformInstagram
	PlatformTikTok
	PlatformFacebook
	PlatformTwitter
)

// String returns the lowercase platform name used in routes and logs.
func (p Platform) String() string {
	switch p {
	case PlatformYouTube:
		return "youtube"
	case PlatformInstagram:
		return "instagram"
	case PlatformTikTok:
		return "tiktok"
	case PlatformFacebook:
		return "facebook"
	case PlatformTwitter:
		return "twitter"
	default:
		return "unknown"
	}
}

// HasFormatCatalog reports whether the platform exposes multiple renditions.
// Only YouTube does; the other platforms serve a single "best" rendition and
// never participate in format fallback.
func (p Platform) HasFormatCatalog() bool {
	return p == PlatformYouTube
}

// IdentifyPlatform determines the platform from the URL host via
// case-insensitive substring matching. Unmatched hosts map to
// PlatformUnknown.
func IdentifyPlatform(rawURL string) Platform {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PlatformUnknown
	}
	host := strings.ToLower(u.Host)

	switch {
	case strings.Contains(host, "youtube"), strings.Contains(host, "youtu.be"):
		return PlatformYouTube
	case strings.Contains(host, "instagram"):
		return PlatformInstagram
	case strings.Contains(host, "tiktok"):
		return PlatformTikTok
	case strings.Contains(host, "facebook"), strings.Contains(host, "fb.watch"):
		return PlatformFacebook
	case strings.Contains(host, "twitter"), strings.Contains(host, "x.com"):
		return PlatformTwitter
	default:
		return PlatformUnknown
	}
}
