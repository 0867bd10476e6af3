package services

import (
	"fmt"
	"log"
	"strings"

	"courserag/db"

	"github.com/google/uuid"
)

// SessionService tracks per-session conversation history so follow-up
// questions keep their context. History handed to the generator is capped
// at the most recent maxHistory exchanges.
type SessionService struct {
	repo       db.SessionRepository
	maxHistory int
}

func NewSessionService(repo db.SessionRepository, maxHistory int) *SessionService {
	return &SessionService{repo: repo, maxHistory: maxHistory}
}

func (s *SessionService) CreateSession() (string, error) {
	sessionID := uuid.NewString()

	if err := s.repo.CreateSession(sessionID); err != nil {
		log.Printf("[ERROR] Failed to create session: %v", err)
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("[INFO] Created session %s", sessionID)
	return sessionID, nil
}

func (s *SessionService) AddExchange(sessionID, query, answer string) error {
	if err := s.repo.AddMessage(sessionID, "user", query); err != nil {
		return fmt.Errorf("failed to record user message: %w", err)
	}
	if err := s.repo.AddMessage(sessionID, "assistant", answer); err != nil {
		return fmt.Errorf("failed to record assistant message: %w", err)
	}
	return nil
}

// GetHistory returns the recent conversation as a plain transcript, or
// an empty string for a new session.
func (s *SessionService) GetHistory(sessionID string) (string, error) {
	messages, err := s.repo.GetMessages(sessionID, s.maxHistory*2)
	if err != nil {
		log.Printf("[ERROR] Failed to get history for session %s: %v", sessionID, err)
		return "", fmt.Errorf("failed to get session history: %w", err)
	}

	if len(messages) == 0 {
		return "", nil
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			lines = append(lines, "User: "+msg.Content)
		case "assistant":
			lines = append(lines, "Assistant: "+msg.Content)
		}
	}

	return strings.Join(lines, "\n"), nil
}
