package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vidrelay/vidrelay/internal/domain"
)

// ChunkSize is the fixed relay chunk size.
const ChunkSize = 64 * 1024

// DirectRelay streams raw bytes from a single resolved upstream URL,
// honoring a start offset via range requests. Before any media bytes it
// emits a bracket-tagged content-length announcement so the client can size
// a progress bar; the client strips that frame before decoding.
type DirectRelay struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewDirectRelay creates a direct relay. The underlying client has no
// overall timeout; long transfers are bounded by the request context.
func NewDirectRelay(userAgent string, logger *slog.Logger) *DirectRelay {
	return &DirectRelay{
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Relay opens the upstream source and copies its body to w in order, in
// fixed chunks. Returns the number of bytes written to w, including the
// content-length frame. Cancelling ctx aborts the upstream transfer.
func (d *DirectRelay) Relay(ctx context.Context, sourceURL string, offset int64, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create upstream request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("open upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &domain.UpstreamError{URL: sourceURL, StatusCode: resp.StatusCode}
	}

	var written int64
	if resp.ContentLength >= 0 {
		n, err := fmt.Fprintf(w, "[CONTENT-LENGTH:%d]", resp.ContentLength)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("write length frame: %w", err)
		}
	}
	flush(w)

	n, err := copyChunks(resp.Body, w)
	written += n
	if err != nil {
		return written, err
	}

	d.logger.Debug("direct relay complete",
		"url", sourceURL,
		"offset", offset,
		"bytes", written,
	)
	return written, nil
}

// copyChunks copies src to dst in ChunkSize reads, preserving byte order,
// flushing after each chunk so playback can begin immediately.
func copyChunks(src io.Reader, dst io.Writer) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("write to client: %w", werr)
			}
			if wn < n {
				return written, io.ErrShortWrite
			}
			flush(dst)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("read upstream: %w", rerr)
		}
	}
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
