package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iconidentify/grabbot/internal/domain"
	"github.com/iconidentify/grabbot/internal/history"
)

// HistoryReader lists recorded outcomes.
type HistoryReader interface {
	Recent(ctx context.Context, userID domain.UserID, limit int) ([]history.Entry, error)
}

// HistoryHandler serves the request history.
type HistoryHandler struct {
	store  HistoryReader
	logger *slog.Logger
}

// NewHistoryHandler creates a history handler. A nil store disables the
// endpoint.
func NewHistoryHandler(store HistoryReader, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		store:  store,
		logger: logger,
	}
}

// HistoryResponse is the JSON response for history queries.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// List handles GET /api/v1/history.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, domain.ErrHistoryDisabled.Error())
		return
	}

	limit := history.DefaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	userID := domain.UserID(r.URL.Query().Get("user_id"))

	entries, err := h.store.Recent(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to read history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Entries: entries,
		Count:   len(entries),
	})
}
