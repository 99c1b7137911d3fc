package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/conorfennell/retain/internal/domain"
	"github.com/conorfennell/retain/internal/review"
)

type reviewBody struct {
	LessonID string               `json:"lesson_id"`
	Grade    domain.Grade         `json:"grade"`
	Context  domain.ReviewContext `json:"context,omitempty"`
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetCard handles GET /cards/{cardID}.
func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	status, err := s.reviews.Status(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handlePreview handles GET /cards/{cardID}/preview.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.reviews.Preview(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handleHistory handles GET /cards/{cardID}/reviews.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.reviews.History(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []domain.ReviewEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// handlePostReview handles POST /cards/{cardID}/reviews.
func (s *Server) handlePostReview(w http.ResponseWriter, r *http.Request) {
	var body reviewBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.reviews.RecordReview(r.Context(), review.Request{
		CardID:   chi.URLParam(r, "cardID"),
		LessonID: body.LessonID,
		Grade:    body.Grade,
		Context:  body.Context,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// handleDue handles GET /due?limit=N.
func (s *Server) handleDue(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	states, err := s.reviews.Due(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if states == nil {
		states = []domain.MemoryState{}
	}
	writeJSON(w, http.StatusOK, states)
}
