package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/vidrelay/vidrelay/internal/domain"
)

// MergePipe combines a video-only and an audio-only upstream track into a
// single interleaved container by piping them through an external remuxing
// process. Video is stream-copied, audio is transcoded to AAC, and the
// output container is fragmented MP4 so playback can begin before the whole
// asset is produced.
type MergePipe struct {
	path   string
	logger *slog.Logger
}

// NewMergePipe creates a merge pipe backed by the ffmpeg binary at path
// (PATH lookup when empty). A missing binary is a startup-time fatal
// precondition, not a per-request error.
func NewMergePipe(path string, logger *slog.Logger) (*MergePipe, error) {
	if path == "" {
		path = "ffmpeg"
	}
	if _, err := exec.LookPath(path); err != nil {
		return nil, fmt.Errorf("remux binary not found: %w", err)
	}
	return &MergePipe{path: path, logger: logger}, nil
}

// Merge launches the remuxing process over the two upstream URLs and relays
// its stdout to w in fixed chunks. A positive offset is realized by reading
// and discarding that many bytes of process output before relaying begins;
// the cost is O(offset) since the offset cannot be applied upstream of the
// transcode. The process is terminated and reaped on every exit path.
func (m *MergePipe) Merge(ctx context.Context, videoURL, audioURL string, offset int64, w io.Writer) (int64, error) {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoURL,
		"-i", audioURL,
		"-c:v", "copy",
		"-c:a", "aac",
		"-movflags", "frag_keyframe+empty_moov",
		"-f", "mp4",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, m.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, &domain.MergeError{Err: fmt.Errorf("open remux stdout: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return 0, &domain.MergeError{Err: fmt.Errorf("start remux: %w", err)}
	}
	m.logger.Debug("remux process started", "pid", cmd.Process.Pid, "offset", offset)

	// Unblock the pipe read on cancellation even if a child of the remux
	// process inherited the write end and outlives it.
	go func() {
		<-ctx.Done()
		stdout.Close()
	}()

	written, streamErr := m.stream(stdout, offset, w)
	if streamErr != nil {
		// Stop the process so Wait below reaps it promptly.
		cancel()
	}

	// Wait runs on every path so the process is always reaped.
	waitErr := cmd.Wait()

	if cerr := parent.Err(); cerr != nil {
		return written, cerr
	}
	if streamErr != nil {
		return written, streamErr
	}
	if waitErr != nil {
		return written, &domain.MergeError{
			Stderr: tail(stderr.String(), 512),
			Err:    waitErr,
		}
	}

	m.logger.Debug("merge relay complete", "bytes", written)
	return written, nil
}

func (m *MergePipe) stream(stdout io.Reader, offset int64, w io.Writer) (int64, error) {
	if offset > 0 {
		if _, err := io.CopyN(io.Discard, stdout, offset); err != nil {
			if err == io.EOF {
				// Output shorter than the requested offset; nothing to relay.
				return 0, nil
			}
			return 0, fmt.Errorf("skip %d bytes of remux output: %w", offset, err)
		}
	}
	return copyChunks(stdout, w)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
