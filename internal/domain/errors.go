package domain

import (
	"errors"
	"fmt"
)

// Domain errors.
var (
	// ErrUnsupportedPlatform is returned when the URL host is not recognized.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrFormatUnavailable is returned when the requested format identifier
	// does not exist for the asset. This is the only error that triggers
	// format fallback.
	ErrFormatUnavailable = errors.New("requested format not available")

	// ErrFormatsExhausted is returned when every fallback candidate has failed.
	ErrFormatsExhausted = errors.New("all fallback formats exhausted")

	// ErrNoStreamURL is returned when the extractor yields no playable URL.
	ErrNoStreamURL = errors.New("no stream URL found")

	// ErrPlaylistEmpty is returned when a playlist has no usable entries.
	ErrPlaylistEmpty = errors.New("playlist has no usable entries")

	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a bearer token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// ExtractionError wraps a failure of the external metadata extractor.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return "extraction failed [" + e.URL + "]: " + e.Err.Error()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError creates a new ExtractionError.
func NewExtractionError(url string, err error) *ExtractionError {
	return &ExtractionError{URL: url, Err: err}
}

// UpstreamError reports a non-success HTTP status from a resolved media source.
type UpstreamError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// MergeError reports an abnormal exit of the remuxing process.
type MergeError struct {
	Stderr string
	Err    error
}

func (e *MergeError) Error() string {
	msg := "merge process failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *MergeError) Unwrap() error {
	return e.Err
}
