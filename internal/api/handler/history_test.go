package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iconidentify/grabbot/internal/domain"
	"github.com/iconidentify/grabbot/internal/history"
)

func TestHistoryHandler_Disabled(t *testing.T) {
	h := NewHistoryHandler(nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHistoryHandler_List(t *testing.T) {
	store := &mockHistory{entries: []history.Entry{
		{ID: "r1", UserID: "42", Kind: domain.RequestKindDirect, URL: "https://a", Class: domain.ClassSuccess, CreatedAt: time.Now()},
	}}
	h := NewHistoryHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history?user_id=42&limit=5", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if store.gotUser != "42" || store.gotLimit != 5 {
		t.Errorf("query = (%q, %d), want (42, 5)", store.gotUser, store.gotLimit)
	}

	var resp HistoryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || resp.Entries[0].ID != "r1" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHistoryHandler_DefaultLimit(t *testing.T) {
	store := &mockHistory{}
	h := NewHistoryHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if store.gotLimit != history.DefaultLimit {
		t.Errorf("limit = %d, want %d", store.gotLimit, history.DefaultLimit)
	}
}

func TestHistoryHandler_BadLimit(t *testing.T) {
	h := NewHistoryHandler(&mockHistory{}, testLogger())

	for _, q := range []string{"abc", "0", "-3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/history?limit="+q, nil)
		w := httptest.NewRecorder()
		h.List(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want %d", q, w.Code, http.StatusBadRequest)
		}
	}
}

func TestHistoryHandler_StoreError(t *testing.T) {
	h := NewHistoryHandler(&mockHistory{err: errors.New("disk full")}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
