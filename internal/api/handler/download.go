package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vidrelay/vidrelay/internal/domain"
	"github.com/vidrelay/vidrelay/internal/service"
)

// DownloadHandler handles streaming download requests.
type DownloadHandler struct {
	streamSvc *service.StreamService
	logger    *slog.Logger
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(streamSvc *service.StreamService, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		streamSvc: streamSvc,
		logger:    logger,
	}
}

// DownloadRequest is the JSON request body for a download.
type DownloadRequest struct {
	URL       string `json:"url"`
	ID        string `json:"id"`
	Itag      string `json:"itag"`
	StartByte int64  `json:"start_byte"`
	Ext       string `json:"ext"`
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
}

// countingWriter tracks whether any body bytes have been committed.
type countingWriter struct {
	http.ResponseWriter
	written int64
}

func (cw *countingWriter) Write(b []byte) (int, error) {
	n, err := cw.ResponseWriter.Write(b)
	cw.written += int64(n)
	return n, err
}

func (cw *countingWriter) Flush() {
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Download handles POST /api/v1/{platform}/download. The platform path
// segment is advisory; dispatch is by URL host.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.Token == "" {
		req.Token = bearerToken(r)
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	ext := req.Ext
	if ext == "" {
		if req.Type == "audio" {
			ext = "m4a"
		} else {
			ext = "mp4"
		}
	}
	itag := req.Itag
	if itag == "" {
		if req.Type == "audio" {
			itag = "140"
		} else {
			itag = "18"
		}
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"."+ext))
	w.Header().Set("Content-Type", service.MimeForExt(ext))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("X-Download-URL", id)

	cw := &countingWriter{ResponseWriter: w}
	result, err := h.streamSvc.Stream(r.Context(), domain.StreamRequest{
		URL:       req.URL,
		FormatID:  itag,
		StartByte: req.StartByte,
		Token:     req.Token,
	}, cw)

	if err == nil {
		return
	}

	if cw.written == 0 {
		// Nothing committed yet; a proper error response is still possible.
		w.Header().Del("Content-Disposition")
		w.Header().Del("Accept-Ranges")
		w.Header().Del("X-Download-URL")
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	// Bytes already left; signal the failure in-band and end the body.
	h.logger.Error("download aborted mid-stream",
		"url", req.URL,
		"itag", itag,
		"bytes", cw.written,
		"state", result.State.String(),
		"error", err,
	)
	fmt.Fprintf(cw, "[ERROR]%s", errorText(err))
}

// statusFor maps resolution failures to HTTP statuses.
func statusFor(err error) int {
	var upstream *domain.UpstreamError
	var extraction *domain.ExtractionError

	switch {
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrFormatsExhausted),
		errors.Is(err, domain.ErrFormatUnavailable),
		errors.Is(err, domain.ErrNoStreamURL):
		return http.StatusNotFound
	case errors.As(err, &upstream), errors.As(err, &extraction):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorText trims an error for in-band transmission.
func errorText(err error) string {
	s := err.Error()
	if runes := []rune(s); len(runes) > 200 {
		s = string(runes[:200])
	}
	return s
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func (h *DownloadHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
