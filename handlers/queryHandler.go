package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"courserag/models"
	"courserag/services"

	"github.com/gorilla/mux"
)

type QueryHandler struct {
	service *services.RAGService
}

func NewQueryHandler(service *services.RAGService) *QueryHandler {
	return &QueryHandler{service: service}
}

func (h *QueryHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/query", h.ProcessQuery).Methods("POST")
}

func (h *QueryHandler) ProcessQuery(w http.ResponseWriter, r *http.Request) {
	log.Printf("[INFO] Received query request")

	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode query request JSON: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if req.Query == "" {
		log.Printf("[ERROR] No query provided in request")
		h.writeErrorResponse(w, http.StatusBadRequest, "Query is required")
		return
	}

	answer, sources, sessionID, err := h.service.ProcessQuery(r.Context(), req.Query, req.SessionID)
	if err != nil {
		log.Printf("[ERROR] Query processing failed: %v", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	if sources == nil {
		sources = []models.Source{}
	}

	log.Printf("[INFO] Query processed successfully")
	h.writeJSONResponse(w, http.StatusOK, models.QueryResponse{
		Answer:    answer,
		Sources:   sources,
		SessionID: sessionID,
	})
}

func (h *QueryHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *QueryHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
