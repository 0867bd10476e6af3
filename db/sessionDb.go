package db

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
)

type SessionMessage struct {
	Role    string
	Content string
}

type SessionRepository interface {
	CreateSession(sessionID string) error
	AddMessage(sessionID, role, content string) error
	GetMessages(sessionID string, limit int) ([]SessionMessage, error)
	Close() error
}

type PostgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(databaseURL string) (*PostgresSessionRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresSessionRepository{db: db}, nil
}

func (r *PostgresSessionRepository) CreateSession(sessionID string) error {
	query := `
		INSERT INTO courserag.sessions (id)
		VALUES ($1)
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.Exec(query, sessionID); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) AddMessage(sessionID, role, content string) error {
	query := `
		INSERT INTO courserag.session_messages (session_id, role, content)
		VALUES ($1, $2, $3)`

	if _, err := r.db.Exec(query, sessionID, role, content); err != nil {
		return fmt.Errorf("failed to add session message: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) GetMessages(sessionID string, limit int) ([]SessionMessage, error) {
	query := `
		SELECT role, content FROM (
			SELECT id, role, content
			FROM courserag.session_messages
			WHERE session_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC`

	rows, err := r.db.Query(query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get session messages: %w", err)
	}
	defer rows.Close()

	var messages []SessionMessage
	for rows.Next() {
		var msg SessionMessage
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("failed to scan session message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session messages: %w", err)
	}

	return messages, nil
}

func (r *PostgresSessionRepository) Close() error {
	return r.db.Close()
}

// InMemorySessionRepository backs sessions when no DB_URL is configured.
// Safe for concurrent queries.
type InMemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string][]SessionMessage
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[string][]SessionMessage),
	}
}

func (r *InMemorySessionRepository) CreateSession(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; !ok {
		r.sessions[sessionID] = []SessionMessage{}
	}
	return nil
}

func (r *InMemorySessionRepository) AddMessage(sessionID, role, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sessionID] = append(r.sessions[sessionID], SessionMessage{Role: role, Content: content})
	return nil
}

func (r *InMemorySessionRepository) GetMessages(sessionID string, limit int) ([]SessionMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	messages := r.sessions[sessionID]
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	out := make([]SessionMessage, len(messages))
	copy(out, messages)
	return out, nil
}

func (r *InMemorySessionRepository) Close() error {
	return nil
}
