package stories

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
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

// getUserID extracts the authenticated user ID from the request context.
func getUserID(r *http.Request) (int64, bool) {
	uid, ok := r.Context().Value("user_id").(int64)
	return uid, ok
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.GenerateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.LearnerID <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "learner_id is required"})
		return
	}
	if req.Tone != nil && !req.Tone.Valid() {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "tone must be between 1 and 4"})
		return
	}

	resp, err := h.service.Generate(r.Context(), userID, req)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetTrace(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	traceID := mux.Vars(r)["id"]
	learnerID := int64QueryParam(r.URL.Query(), "learner_id")
	if learnerID <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "learner_id is required"})
		return
	}
	tr, err := h.service.GetTrace(userID, traceID, learnerID)
	if err != nil {
		log.Printf("[stories] GetTrace error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load trace"})
		return
	}
	if tr == nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Trace not found"})
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (h *Handler) GetStory(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	storyID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid story ID"})
		return
	}
	learnerID := int64QueryParam(r.URL.Query(), "learner_id")
	if learnerID <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "learner_id is required"})
		return
	}

	story, questions, err := h.service.GetStory(userID, storyID, learnerID)
	if err != nil {
		log.Printf("[stories] GetStory error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load story"})
		return
	}
	if story == nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Story not found"})
		return
	}
	writeJSON(w, http.StatusOK, models.GenerateStoryResponse{Story: story, Questions: questions})
}

func (h *Handler) ListStories(w http.ResponseWriter, r *http.Request) {
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
	limit := intQueryParam(r.URL.Query(), "limit", 20)
	offset := intQueryParam(r.URL.Query(), "offset", 0)

	stories, err := h.service.ListStories(userID, learnerID, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Learner not found"})
		return
	}
	if stories == nil {
		stories = []models.Story{}
	}
	writeJSON(w, http.StatusOK, stories)
}

func (h *Handler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	storyID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid story ID"})
		return
	}

	var req struct {
		LearnerID int64 `json:"learner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LearnerID <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "learner_id is required"})
		return
	}

	questions, err := h.service.GenerateQuestions(r.Context(), userID, req.LearnerID, storyID)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) Rewrite(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	storyID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid story ID"})
		return
	}

	var req struct {
		LearnerID int64  `json:"learner_id"`
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LearnerID <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "learner_id is required"})
		return
	}
	if req.Direction != "simplify" && req.Direction != "elevate" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "direction must be 'simplify' or 'elevate'"})
		return
	}

	resp, err := h.service.Rewrite(r.Context(), userID, req.LearnerID, storyID, req.Direction)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// writePipelineError maps typed pipeline failures to HTTP statuses;
// everything else is a plain 500.
func writePipelineError(w http.ResponseWriter, err error) {
	pe, ok := err.(*models.PipelineError)
	if !ok {
		log.Printf("[stories] handler error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch pe.Code {
	case models.CodeNoAPIKey:
		status = http.StatusServiceUnavailable
	case models.CodeRateLimit:
		status = http.StatusTooManyRequests
	case models.CodeQARejected:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, models.ErrorResponse{Error: pe.Message, Code: pe.Code})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func intQueryParam(query url.Values, key string, defaultVal int) int {
	s := query.Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}

func int64QueryParam(query url.Values, key string) int64 {
	v, err := strconv.ParseInt(query.Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
