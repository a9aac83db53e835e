package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vidrelay/vidrelay/internal/domain"
	"github.com/vidrelay/vidrelay/internal/service"
)

func seedEvents(t *testing.T) *service.EventService {
	t.Helper()
	svc := newTestEventService(t)
	svc.EmitInfo(domain.EventCategoryDownload, "resolver", "download started", nil)
	svc.EmitError(domain.EventCategoryFallback, "ladder", "format 313 failed", nil)
	svc.EmitSuccess(domain.EventCategoryDownload, "resolver", "download finished", nil)
	return svc
}

func TestEventList(t *testing.T) {
	h := NewEventHandler(seedEvents(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp EventListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 3 || len(resp.Events) != 3 {
		t.Errorf("resp = total %d, events %d", resp.Total, len(resp.Events))
	}
	// Newest first.
	if resp.Events[0].Message != "download finished" {
		t.Errorf("first event = %q", resp.Events[0].Message)
	}
}

func TestEventListFiltersByCategory(t *testing.T) {
	h := NewEventHandler(seedEvents(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?category=fallback", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	var resp EventListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Events[0].Category != "fallback" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestEventRecentLimit(t *testing.T) {
	h := NewEventHandler(seedEvents(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/recent?limit=2", nil)
	rec := httptest.NewRecorder()
	h.Recent(rec, req)

	var resp RecentEventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 2 {
		t.Errorf("events = %d, want 2", len(resp.Events))
	}
}

func TestEventStats(t *testing.T) {
	h := NewEventHandler(seedEvents(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/stats", nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	var resp EventStatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 3 || resp.BySeverity["error"] != 1 || resp.BySeverity["success"] != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.SQLiteEnabled {
		t.Error("SQLiteEnabled should be false in tests")
	}
}
