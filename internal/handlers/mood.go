package handlers

import (
	"net/http"

	"github.com/calmspace/apiserver/internal/services"
	"github.com/calmspace/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const msgInvalidEntryID = "Invalid mood entry id"

// MoodHandler serves the caller's mood journal.
type MoodHandler struct {
	moods *services.MoodService
}

func NewMoodHandler(moods *services.MoodService) *MoodHandler {
	return &MoodHandler{moods: moods}
}

// MoodRouter registers mood routes. Every route requires authMiddleware.
func MoodRouter(r chi.Router, moods *services.MoodService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewMoodHandler(moods)

	r.Use(authMiddleware)
	r.Post("/entry", handler.AddEntry)
	r.Get("/history", handler.History)
	r.Get("/stats", handler.Stats)
	r.Route("/entry/{entryID}", func(r chi.Router) {
		r.Put("/", handler.UpdateEntry)
		r.Delete("/", handler.DeleteEntry)
	})
}

type MoodEntryResponse struct {
	Message string          `json:"message"`
	Entry   types.MoodEntry `json:"entry"`
}

type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

type MoodHistoryResponse struct {
	Entries    []types.MoodEntry `json:"entries"`
	Pagination Pagination        `json:"pagination"`
}

func (h *MoodHandler) AddEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req services.MoodInput
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.moods.AddEntry(r.Context(), id.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MoodEntryResponse{Message: "Mood entry saved successfully", Entry: entry})
}

func (h *MoodHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	page, err := h.moods.ListEntries(r.Context(), id.UserID, services.MoodListParams{
		Limit:     query.Get("limit"),
		Offset:    query.Get("offset"),
		StartDate: query.Get("startDate"),
		EndDate:   query.Get("endDate"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MoodHistoryResponse{
		Entries: page.Entries,
		Pagination: Pagination{
			Total:   page.Total,
			Limit:   page.Limit,
			Offset:  page.Offset,
			HasMore: page.HasMore,
		},
	})
}

func (h *MoodHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	stats, err := h.moods.Stats(r.Context(), id.UserID, r.URL.Query().Get("period"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *MoodHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	entryID, ok := parseID(r, "entryID")
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidEntryID)
		return
	}
	var req services.MoodUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.moods.UpdateEntry(r.Context(), id.UserID, entryID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MoodEntryResponse{Message: "Mood entry updated successfully", Entry: entry})
}

func (h *MoodHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	entryID, ok := parseID(r, "entryID")
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidEntryID)
		return
	}
	if err := h.moods.DeleteEntry(r.Context(), id.UserID, entryID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Mood entry deleted successfully")
}
