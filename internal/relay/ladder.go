package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vidrelay/vidrelay/internal/domain"
)

// Notifier pushes out-of-band status to the requesting client. Emitting is
// best-effort; implementations must never return an error into the relay
// path.
type Notifier interface {
	Notify(room, message, messageType string)
}

// State is a fallback ladder state.
type State int

const (
	StateRequested State = iota
	StateStreaming
	StateRetrying
	StateSuccess
	StateExhausted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateStreaming:
		return "streaming"
	case StateRetrying:
		return "retrying"
	case StateSuccess:
		return "success"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// AttemptFunc resolves and relays one format identifier. It returns the
// number of bytes that reached the client and an error on failure. An
// attempt that fails with domain.ErrFormatUnavailable before writing any
// bytes is eligible for fallback.
type AttemptFunc func(ctx context.Context, formatID string) (int64, error)

// Result is the terminal outcome of one ladder run.
type Result struct {
	State    State
	Attempts int
	Failed   []string
}

// Ladder walks the static fallback catalogs when a requested format is
// rejected at resolution time. It is an iterative state machine driven by a
// work list; fallback state is created fresh per run and never shared.
type Ladder struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewLadder creates a fallback ladder with an injected notifier.
func NewLadder(notifier Notifier, logger *slog.Logger) *Ladder {
	return &Ladder{notifier: notifier, logger: logger}
}

// Run drives the download attempt chain for the requested identifier.
//
// Audio identifiers re-enter the chain with the next untried ladder entry.
// Video identifiers iterate in place over every class at or below the failed
// class, in descending order. The run terminates in StateSuccess or
// StateExhausted after at most one attempt per candidate identifier.
func (l *Ladder) Run(ctx context.Context, room, requested string, attempt AttemptFunc) (Result, error) {
	state := domain.NewFallbackState(requested)
	attempts := 0
	current := requested

	for {
		written, err := attempt(ctx, current)
		attempts++

		if err == nil {
			return l.done(StateSuccess, attempts, state), nil
		}
		if written > 0 {
			// Bytes already left for the client; headers are committed and
			// the stream just ends early. No fallback after the first byte.
			l.logger.Warn("relay ended early after partial stream",
				"format", current,
				"bytes", written,
				"error", err,
			)
			return l.done(StateSuccess, attempts, state), err
		}
		if !errors.Is(err, domain.ErrFormatUnavailable) {
			// Non-retryable resolution failure: notify with the raw error
			// text and stop.
			l.notifier.Notify(room, truncate("Download failed: "+err.Error(), 200), "error")
			return l.done(StateExhausted, attempts, state), err
		}

		state.MarkFailed(current)

		if domain.IsAudioFormat(current) {
			next := l.nextAudio(state)
			if next == "" {
				l.notifier.Notify(room, "Download failed: all audio formats exhausted", "error")
				return l.done(StateExhausted, attempts, state), fmt.Errorf("audio format %s: %w", requested, domain.ErrFormatsExhausted)
			}
			l.notifier.Notify(room, "Retrying with format "+next, "error")
			current = next
			continue
		}

		return l.walkVideo(ctx, room, requested, state, attempt, attempts)
	}
}

// nextAudio returns the first untried entry of the audio ladder.
func (l *Ladder) nextAudio(state *domain.FallbackState) string {
	for _, id := range domain.AudioLadder {
		if !state.HasFailed(id) {
			return id
		}
	}
	return ""
}

// walkVideo iterates candidate identifiers across every resolution class at
// or below the failed identifier's class, descending, skipping identifiers
// already in the failed set.
func (l *Ladder) walkVideo(ctx context.Context, room, requested string, state *domain.FallbackState, attempt AttemptFunc, attempts int) (Result, error) {
	classIdx := domain.ClassIndexOf(requested)
	if classIdx < 0 {
		l.notifier.Notify(room, "Download failed: format "+requested+" has no fallback candidates", "error")
		return l.done(StateExhausted, attempts, state), fmt.Errorf("format %s: %w", requested, domain.ErrFormatsExhausted)
	}

	for ci := classIdx; ci < len(domain.ResolutionLadder); ci++ {
		class := domain.ResolutionLadder[ci]
		// The step-down is announced with the first retry in the class, so a
		// class with no candidates left produces no notification.
		announced := ci == classIdx

		for _, id := range class.Formats {
			if state.HasFailed(id) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return l.done(StateExhausted, attempts, state), err
			}

			if !announced {
				l.notifier.Notify(room, fmt.Sprintf("Stepping down to %dp", class.Height), "error")
				announced = true
			}
			l.notifier.Notify(room, "Retrying with format "+id, "error")
			written, err := attempt(ctx, id)
			attempts++

			if err == nil {
				return l.done(StateSuccess, attempts, state), nil
			}
			if written > 0 {
				l.logger.Warn("relay ended early after partial stream",
					"format", id,
					"bytes", written,
					"error", err,
				)
				return l.done(StateSuccess, attempts, state), err
			}
			if !errors.Is(err, domain.ErrFormatUnavailable) {
				l.notifier.Notify(room, truncate("Download failed: "+err.Error(), 200), "error")
				return l.done(StateExhausted, attempts, state), err
			}
			state.MarkFailed(id)
		}
	}

	l.notifier.Notify(room, "Download failed: no available formats", "error")
	return l.done(StateExhausted, attempts, state), fmt.Errorf("format %s: %w", requested, domain.ErrFormatsExhausted)
}

func (l *Ladder) done(s State, attempts int, state *domain.FallbackState) Result {
	return Result{State: s, Attempts: attempts, Failed: state.Failed()}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
