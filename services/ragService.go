package services

import (
	"context"
	"fmt"
	"log"

	"courserag/models"
	"courserag/services/generator"
	"courserag/services/search"
)

// RAGService ties sessions, tools, and the generator together for one
// user-facing query operation.
type RAGService struct {
	content   *ContentService
	sessions  *SessionService
	generator *generator.Service
	maxRounds int
}

func NewRAGService(content *ContentService, sessions *SessionService, gen *generator.Service, maxRounds int) *RAGService {
	return &RAGService{
		content:   content,
		sessions:  sessions,
		generator: gen,
		maxRounds: maxRounds,
	}
}

// ProcessQuery answers a query within a session and returns the answer,
// the attribution sources from this query's tool executions, and the
// session ID (created when the caller did not supply one).
//
// The registry is built fresh per query: the source trail is call-scoped
// state and must not be shared between in-flight queries.
func (s *RAGService) ProcessQuery(ctx context.Context, query, sessionID string) (string, []models.Source, string, error) {
	log.Printf("[INFO] Processing query for session %q", sessionID)

	if sessionID == "" {
		created, err := s.sessions.CreateSession()
		if err != nil {
			return "", nil, "", err
		}
		sessionID = created
	}

	history, err := s.sessions.GetHistory(sessionID)
	if err != nil {
		return "", nil, "", err
	}

	registry := search.NewRegistry()
	if err := registry.Register(search.NewCourseSearchTool(s.content)); err != nil {
		return "", nil, "", fmt.Errorf("failed to register search tool: %w", err)
	}
	if err := registry.Register(search.NewCourseOutlineTool(s.content)); err != nil {
		return "", nil, "", fmt.Errorf("failed to register outline tool: %w", err)
	}

	answer, err := s.generator.GenerateResponse(ctx, query, history, registry, s.maxRounds)
	if err != nil {
		return "", nil, "", fmt.Errorf("failed to generate response: %w", err)
	}

	sources := registry.Sources()
	registry.ClearSources()

	if err := s.sessions.AddExchange(sessionID, query, answer); err != nil {
		// History is best effort; the answer is already in hand.
		log.Printf("[WARN] Failed to record exchange for session %s: %v", sessionID, err)
	}

	log.Printf("[INFO] Query processed successfully (%d sources)", len(sources))
	return answer, sources, sessionID, nil
}

// GetCourseAnalytics exposes catalog statistics for the stats endpoint.
func (s *RAGService) GetCourseAnalytics() (*models.CourseStats, error) {
	return s.content.GetCourseAnalytics()
}
