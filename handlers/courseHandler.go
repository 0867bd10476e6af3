package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"courserag/services"

	"github.com/gorilla/mux"
)

type CourseHandler struct {
	service *services.RAGService
}

func NewCourseHandler(service *services.RAGService) *CourseHandler {
	return &CourseHandler{service: service}
}

func (h *CourseHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/courses", h.GetCourseStats).Methods("GET")
}

func (h *CourseHandler) GetCourseStats(w http.ResponseWriter, r *http.Request) {
	log.Printf("[INFO] Received course stats request")

	stats, err := h.service.GetCourseAnalytics()
	if err != nil {
		log.Printf("[ERROR] Failed to get course analytics: %v", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	if stats.CourseTitles == nil {
		stats.CourseTitles = []string{}
	}

	h.writeJSONResponse(w, http.StatusOK, stats)
}

func (h *CourseHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *CourseHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
