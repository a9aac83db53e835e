package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vidrelay/vidrelay/internal/domain"
	"github.com/vidrelay/vidrelay/internal/extractor"
	"github.com/vidrelay/vidrelay/internal/service"
)

func newInfoHandler(t *testing.T, ex extractor.Extractor) *InfoHandler {
	t.Helper()
	svc := service.NewInfoService(ex, inlineRunner{}, testLogger())
	return NewInfoHandler(svc, testLogger())
}

func postJSON(t *testing.T, fn http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func TestFormatsEndpoint(t *testing.T) {
	ex := &stubExtractor{info: &extractor.MediaInfo{
		Title:     "clip",
		Uploader:  "someone",
		ViewCount: 7,
		Formats: []domain.FormatDescriptor{
			{FormatID: "137", Filesize: 3 * 1024 * 1024, Resolution: "1920x1080", VCodec: "avc1", ACodec: "none"},
		},
	}}
	h := newInfoHandler(t, ex)

	rec := postJSON(t, h.Formats, "/api/v1/youtube/formats", `{"url":"https://youtu.be/abc"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp service.FormatList
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Title != "clip" || resp.ViewCount != 7 {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Formats) != 1 || resp.Formats[0].SizeMB != 3 {
		t.Errorf("formats = %+v", resp.Formats)
	}
}

func TestFormatsValidation(t *testing.T) {
	h := newInfoHandler(t, &stubExtractor{})

	if rec := postJSON(t, h.Formats, "/api/v1/youtube/formats", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing url status = %d, want 400", rec.Code)
	}
	if rec := postJSON(t, h.Formats, "/api/v1/youtube/formats", `nope`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
}

func TestFormatsExtractionFailure(t *testing.T) {
	h := newInfoHandler(t, &stubExtractor{err: domain.NewExtractionError("u", domain.ErrNoStreamURL)})

	rec := postJSON(t, h.Formats, "/api/v1/youtube/formats", `{"url":"https://youtu.be/abc"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestListEndpoint(t *testing.T) {
	ex := &stubExtractor{playlist: &extractor.PlaylistInfo{
		Title: "mix",
		Entries: []extractor.PlaylistEntry{
			{ID: "a", Title: "first", URL: "https://www.youtube.com/watch?v=a"},
		},
	}}
	h := newInfoHandler(t, ex)

	rec := postJSON(t, h.List, "/api/v1/youtube/list", `{"listUrl":"https://www.youtube.com/playlist?list=x"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp service.PlaylistList
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Title != "mix" || len(resp.Entries) != 1 || resp.Entries[0].ID != "a" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListRequiresListURL(t *testing.T) {
	h := newInfoHandler(t, &stubExtractor{})

	if rec := postJSON(t, h.List, "/api/v1/youtube/list", `{"listUrl":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDownloadMetaEndpoint(t *testing.T) {
	ex := &stubExtractor{info: &extractor.MediaInfo{
		Title:    "clip",
		Duration: 33,
		Formats: []domain.FormatDescriptor{
			{FormatID: "18", Filesize: 1024, SourceURL: "https://cdn/18", VCodec: "avc1", ACodec: "aac"},
		},
	}}
	h := newInfoHandler(t, ex)

	rec := postJSON(t, h.DownloadMeta, "/api/v1/youtube/download-meta", `{"url":"https://youtu.be/abc","itag":"313+140"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp service.DownloadMeta
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Filename != "clip.mp4" || resp.Size != 1024 || resp.Mime != "video/mp4" {
		t.Errorf("resp = %+v", resp)
	}
}
