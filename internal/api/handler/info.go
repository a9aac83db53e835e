package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vidrelay/vidrelay/internal/domain"
	"github.com/vidrelay/vidrelay/internal/service"
)

// InfoHandler handles metadata read requests.
type InfoHandler struct {
	infoSvc *service.InfoService
	logger  *slog.Logger
}

// NewInfoHandler creates a new info handler.
func NewInfoHandler(infoSvc *service.InfoService, logger *slog.Logger) *InfoHandler {
	return &InfoHandler{
		infoSvc: infoSvc,
		logger:  logger,
	}
}

// FormatsRequest is the JSON request body for a format catalog query.
type FormatsRequest struct {
	URL string `json:"url"`
}

// PlaylistRequest is the JSON request body for a playlist query.
type PlaylistRequest struct {
	ListURL string `json:"listUrl"`
}

// DownloadMetaRequest is the JSON request body for a download-meta query.
type DownloadMetaRequest struct {
	URL  string `json:"url"`
	Itag string `json:"itag"`
}

// Formats handles POST /api/v1/youtube/formats
func (h *InfoHandler) Formats(w http.ResponseWriter, r *http.Request) {
	var req FormatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	list, err := h.infoSvc.ListFormats(r.Context(), req.URL)
	if err != nil {
		h.logger.Error("format listing failed", "url", req.URL, "error", err)
		h.writeError(w, infoStatusFor(err), "failed to list formats")
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}

// List handles POST /api/v1/youtube/list
func (h *InfoHandler) List(w http.ResponseWriter, r *http.Request) {
	var req PlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ListURL == "" {
		h.writeError(w, http.StatusBadRequest, "listUrl is required")
		return
	}

	list, err := h.infoSvc.ListPlaylist(r.Context(), req.ListURL)
	if err != nil {
		h.logger.Error("playlist listing failed", "url", req.ListURL, "error", err)
		h.writeError(w, infoStatusFor(err), "failed to list playlist")
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}

// DownloadMeta handles POST /api/v1/youtube/download-meta
func (h *InfoHandler) DownloadMeta(w http.ResponseWriter, r *http.Request) {
	var req DownloadMetaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	meta, err := h.infoSvc.DownloadMeta(r.Context(), req.URL, req.Itag)
	if err != nil {
		h.logger.Error("download meta failed", "url", req.URL, "itag", req.Itag, "error", err)
		h.writeError(w, infoStatusFor(err), "failed to resolve download metadata")
		return
	}

	h.writeJSON(w, http.StatusOK, meta)
}

func infoStatusFor(err error) int {
	var extraction *domain.ExtractionError
	switch {
	case errors.Is(err, domain.ErrPlaylistEmpty):
		return http.StatusNotFound
	case errors.As(err, &extraction):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *InfoHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *InfoHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
