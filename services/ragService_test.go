package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"courserag/db"
	"courserag/models"
	"courserag/services/generator"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// scriptedAPITransport serves one canned completion response per call and
// captures every request body.
type scriptedAPITransport struct {
	responses []string
	calls     int
	bodies    [][]byte
}

func (f *scriptedAPITransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	f.bodies = append(f.bodies, body)

	if f.calls >= len(f.responses) {
		return nil, fmt.Errorf("unexpected API call %d, only %d scripted", f.calls+1, len(f.responses))
	}

	resp := &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewReader([]byte(f.responses[f.calls]))),
		Header:     make(http.Header),
	}
	resp.Header.Set("Content-Type", "application/json")
	f.calls++
	return resp, nil
}

func apiTextResponse(text string) string {
	return fmt.Sprintf(`{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-sonnet-4-20250514", "stop_reason": "end_turn",
		"content": [{"type": "text", "text": %q}]
	}`, text)
}

func apiToolUseResponse() string {
	return `{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-sonnet-4-20250514", "stop_reason": "tool_use",
		"content": [{"type": "tool_use", "id": "tu_1", "name": "search_course_content", "input": {"query": "prompt caching"}}]
	}`
}

// newTestRAGService wires the full facade on in-memory repos, a fake
// vector index, and a transport-scripted generator.
func newTestRAGService(t *testing.T, responses ...string) (*RAGService, *scriptedAPITransport) {
	t.Helper()

	transport := &scriptedAPITransport{responses: responses}
	gen := generator.NewService("test-key", "claude-sonnet-4-20250514",
		option.WithHTTPClient(&http.Client{Transport: transport}))

	index := &fakeIndex{results: &models.SearchResults{
		Documents: []string{"Prompt caching stores reusable context."},
		Metadata: []models.ChunkMetadata{
			{CourseTitle: "Building Towards Computer Use with Anthropic", LessonNumber: intPtr(0)},
		},
		Distances: []float64{0.1},
	}}
	content := NewContentService(index, seedCatalog(t), 5)
	sessions := NewSessionService(db.NewInMemorySessionRepository(), 2)

	return NewRAGService(content, sessions, gen, 2), transport
}

func TestProcessQuery_CreatesSessionAndReturnsSources(t *testing.T) {
	svc, transport := newTestRAGService(t,
		apiToolUseResponse(),
		apiTextResponse("Prompt caching reuses context between calls."),
	)

	answer, sources, sessionID, err := svc.ProcessQuery(context.Background(), "What is prompt caching?", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if answer != "Prompt caching reuses context between calls." {
		t.Errorf("unexpected answer: %q", answer)
	}
	if sessionID == "" {
		t.Error("empty session ID must be replaced with a created one")
	}
	if transport.calls != 2 {
		t.Errorf("expected 2 API calls, got %d", transport.calls)
	}

	if len(sources) != 1 {
		t.Fatalf("expected 1 source from the tool round, got %d", len(sources))
	}
	if sources[0].Text != "Building Towards Computer Use with Anthropic - Lesson 0" {
		t.Errorf("unexpected source text %q", sources[0].Text)
	}
	if sources[0].CourseLink == nil || *sources[0].CourseLink != "https://example.com/computer-use" {
		t.Errorf("source course link = %v", sources[0].CourseLink)
	}
}

func TestProcessQuery_RecordsExchangeInSession(t *testing.T) {
	svc, _ := newTestRAGService(t, apiTextResponse("Direct answer."))

	_, _, sessionID, err := svc.ProcessQuery(context.Background(), "What is MCP?", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := svc.sessions.GetHistory(sessionID)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	want := "User: What is MCP?\nAssistant: Direct answer."
	if history != want {
		t.Errorf("history = %q, want %q", history, want)
	}
}

func TestProcessQuery_SourceTrailScopedPerQuery(t *testing.T) {
	svc, _ := newTestRAGService(t,
		apiToolUseResponse(),
		apiTextResponse("answer with sources"),
		apiTextResponse("answer without tools"),
	)

	_, first, _, err := svc.ProcessQuery(context.Background(), "question one", "")
	if err != nil {
		t.Fatalf("first query: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first query must return its tool sources, got %d", len(first))
	}

	// The second query never invokes a tool; sources from the first query
	// must not bleed into it.
	_, second, _, err := svc.ProcessQuery(context.Background(), "question two", "")
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second query must have no sources, got %d: %+v", len(second), second)
	}
}

func TestProcessQuery_HistoryHandedToGenerator(t *testing.T) {
	svc, transport := newTestRAGService(t,
		apiTextResponse("first answer"),
		apiTextResponse("second answer"),
	)

	_, _, sessionID, err := svc.ProcessQuery(context.Background(), "first question", "")
	if err != nil {
		t.Fatalf("first query: %v", err)
	}

	if _, _, _, err := svc.ProcessQuery(context.Background(), "second question", sessionID); err != nil {
		t.Fatalf("second query: %v", err)
	}

	var req struct {
		System []struct {
			Text string `json:"text"`
		} `json:"system"`
	}
	if err := json.Unmarshal(transport.bodies[1], &req); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	if len(req.System) != 1 {
		t.Fatalf("expected one system block, got %d", len(req.System))
	}
	if !strings.Contains(req.System[0].Text, "Previous conversation:") ||
		!strings.Contains(req.System[0].Text, "User: first question") ||
		!strings.Contains(req.System[0].Text, "Assistant: first answer") {
		t.Errorf("second request must carry the prior exchange in system content, got %q", req.System[0].Text)
	}
}

func TestProcessQuery_GeneratorErrorPropagates(t *testing.T) {
	gen := generator.NewService("test-key", "claude-sonnet-4-20250514",
		option.WithHTTPClient(&http.Client{Transport: failingTransport{}}),
		option.WithMaxRetries(0))

	content := NewContentService(&fakeIndex{}, seedCatalog(t), 5)
	sessions := NewSessionService(db.NewInMemorySessionRepository(), 2)
	svc := NewRAGService(content, sessions, gen, 2)

	_, _, _, err := svc.ProcessQuery(context.Background(), "q", "")
	if err == nil {
		t.Fatal("expected upstream failure to propagate")
	}
}

// failingTransport always answers 429.
type failingTransport struct{}

func (failingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	_ = req.Body.Close()
	resp := &http.Response{
		StatusCode: 429,
		Body:       io.NopCloser(strings.NewReader(`{"error": {"type": "rate_limit_error", "message": "slow down"}}`)),
		Header:     make(http.Header),
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}
