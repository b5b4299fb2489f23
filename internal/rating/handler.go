package rating

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/lectoria/backend/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func getUserID(r *http.Request) (int64, bool) {
	uid, ok := r.Context().Value("user_id").(int64)
	return uid, ok
}

// FinishSession handles POST /api/v1/sessions/{id}/finish.
func (h *Handler) FinishSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	sessionID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid session ID"})
		return
	}

	var body struct {
		LearnerID int64 `json:"learner_id"`
		models.FinishSessionRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.LearnerID <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "learner_id is required"})
		return
	}

	resp, err := h.service.FinishSession(r.Context(), userID, body.LearnerID, sessionID, &body.FinishSessionRequest)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ratings handles GET /api/v1/learners/{learnerId}/ratings.
func (h *Handler) Ratings(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	learnerID, err := strconv.ParseInt(mux.Vars(r)["learnerId"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid learner ID"})
		return
	}

	rating, err := h.service.Ratings(userID, learnerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

// History handles GET /api/v1/learners/{learnerId}/ratings/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	learnerID, err := strconv.ParseInt(mux.Vars(r)["learnerId"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid learner ID"})
		return
	}

	limit := 30
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			limit = v
		}
	}

	snaps, err := h.service.History(userID, learnerID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if snaps == nil {
		snaps = []models.RatingSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLearnerNotFound), errors.Is(err, ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrSessionCompleted):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrBadAnswerCount):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	default:
		log.Printf("[rating] handler error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Something went wrong"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
