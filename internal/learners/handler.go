package learners

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/lectoria/backend/internal/models"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func getUserID(r *http.Request) (int64, bool) {
	uid, ok := r.Context().Value("user_id").(int64)
	return uid, ok
}

func validateRequest(req *models.CreateLearnerRequest) string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "Name is required"
	}
	if req.AgeYears < 3 || req.AgeYears > 14 {
		return "age_years must be between 3 and 14"
	}
	if req.Tone != nil && !req.Tone.Valid() {
		return "tone must be between 1 and 4"
	}
	return ""
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.CreateLearnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if msg := validateRequest(&req); msg != "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: msg})
		return
	}

	tone := models.ToneBalanced
	if req.Tone != nil {
		tone = *req.Tone
	}

	learner, err := h.store.Create(userID, &req, tone)
	if err != nil {
		log.Printf("[learners] create error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to create learner"})
		return
	}
	writeJSON(w, http.StatusCreated, learner)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	list, err := h.store.List(userID)
	if err != nil {
		log.Printf("[learners] list error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list learners"})
		return
	}
	if list == nil {
		list = []models.Learner{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	learnerID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid learner ID"})
		return
	}

	learner, err := h.store.Get(learnerID, userID)
	if err != nil {
		log.Printf("[learners] get error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load learner"})
		return
	}
	if learner == nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Learner not found"})
		return
	}
	writeJSON(w, http.StatusOK, learner)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	learnerID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid learner ID"})
		return
	}

	var req models.CreateLearnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if msg := validateRequest(&req); msg != "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: msg})
		return
	}

	tone := models.ToneBalanced
	if req.Tone != nil {
		tone = *req.Tone
	}

	learner, err := h.store.Update(learnerID, userID, &req, tone)
	if err != nil {
		log.Printf("[learners] update error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to update learner"})
		return
	}
	if learner == nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Learner not found"})
		return
	}
	writeJSON(w, http.StatusOK, learner)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	learnerID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid learner ID"})
		return
	}

	deleted, err := h.store.Delete(learnerID, userID)
	if err != nil {
		log.Printf("[learners] delete error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to delete learner"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Learner not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
