package generator_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"courserag/models"
	"courserag/services/generator"
	"courserag/services/search"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// scriptedTransport serves one canned API response per call, in order,
// and captures every request body.
type scriptedTransport struct {
	responses []string
	calls     int
	bodies    [][]byte
}

func (f *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
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

func newTestService(t *testing.T, responses ...string) (*generator.Service, *scriptedTransport) {
	t.Helper()
	transport := &scriptedTransport{responses: responses}
	svc := generator.NewService("test-key", "claude-sonnet-4-20250514",
		option.WithHTTPClient(&http.Client{Transport: transport}))
	return svc, transport
}

func textResponse(text string) string {
	return fmt.Sprintf(`{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-sonnet-4-20250514", "stop_reason": "end_turn",
		"content": [{"type": "text", "text": %q}]
	}`, text)
}

func toolUseResponse(invocations ...[2]string) string {
	blocks := make([]string, 0, len(invocations))
	for _, inv := range invocations {
		blocks = append(blocks, fmt.Sprintf(
			`{"type": "tool_use", "id": %q, "name": %q, "input": {"query": "prompt caching"}}`,
			inv[0], inv[1]))
	}
	return fmt.Sprintf(`{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-sonnet-4-20250514", "stop_reason": "tool_use",
		"content": [%s]
	}`, strings.Join(blocks, ","))
}

// echoTool records executions and answers with a fixed result.
type echoTool struct {
	name     string
	executed []string
	result   string
	fail     bool
}

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "test tool" }
func (e *echoTool) InputSchema() anthropic.ToolInputSchemaParam {
	return anthropic.ToolInputSchemaParam{}
}
func (e *echoTool) Execute(ctx context.Context, input json.RawMessage) (string, []models.Source, error) {
	e.executed = append(e.executed, string(input))
	if e.fail {
		return "", nil, fmt.Errorf("store unavailable")
	}
	return e.result, nil, nil
}

func newTestRegistry(t *testing.T, tools ...search.Tool) *search.Registry {
	t.Helper()
	registry := search.NewRegistry()
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			t.Fatalf("failed to register tool: %v", err)
		}
	}
	return registry
}

type capturedRequest struct {
	System []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type      string `json:"type"`
			Text      string `json:"text,omitempty"`
			ToolUseID string `json:"tool_use_id,omitempty"`
		} `json:"content"`
	} `json:"messages"`
	Tools []struct {
		Name string `json:"name"`
	} `json:"tools"`
	ToolChoice *struct {
		Type string `json:"type"`
	} `json:"tool_choice"`
}

func decodeRequest(t *testing.T, body []byte) capturedRequest {
	t.Helper()
	var req capturedRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("failed to decode request body: %v\nbody=%s", err, body)
	}
	return req
}

func TestGenerateResponse_DirectAnswer(t *testing.T) {
	svc, transport := newTestService(t, textResponse("Prompt caching stores reusable context."))

	tool := &echoTool{name: "search_course_content", result: "chunk"}
	registry := newTestRegistry(t, tool)

	answer, err := svc.GenerateResponse(context.Background(), "What is prompt caching?", "", registry, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if answer != "Prompt caching stores reusable context." {
		t.Errorf("unexpected answer: %q", answer)
	}
	if transport.calls != 1 {
		t.Errorf("expected exactly 1 API call, got %d", transport.calls)
	}
	if len(tool.executed) != 0 {
		t.Errorf("no tool should execute on a terminal first round, got %d executions", len(tool.executed))
	}
}

func TestGenerateResponse_SingleToolRound(t *testing.T) {
	svc, transport := newTestService(t,
		toolUseResponse([2]string{"tu_1", "search_course_content"}),
		textResponse("Here is the answer."),
	)

	tool := &echoTool{name: "search_course_content", result: "[Course A - Lesson 1]\nchunk text"}
	registry := newTestRegistry(t, tool)

	answer, err := svc.GenerateResponse(context.Background(), "What is covered?", "", registry, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if answer != "Here is the answer." {
		t.Errorf("unexpected answer: %q", answer)
	}
	if transport.calls != 2 {
		t.Fatalf("expected 2 API calls, got %d", transport.calls)
	}
	if len(tool.executed) != 1 {
		t.Fatalf("expected 1 tool execution, got %d", len(tool.executed))
	}

	// Second request: assistant tool_use turn followed by a synthesized
	// user turn carrying the tool result.
	req := decodeRequest(t, transport.bodies[1])
	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 messages in round 2, got %d", len(req.Messages))
	}
	if req.Messages[1].Role != "assistant" {
		t.Errorf("expected assistant turn at index 1, got %q", req.Messages[1].Role)
	}
	last := req.Messages[2]
	if last.Role != "user" {
		t.Errorf("expected synthesized user turn, got %q", last.Role)
	}
	if len(last.Content) != 1 || last.Content[0].Type != "tool_result" || last.Content[0].ToolUseID != "tu_1" {
		t.Errorf("unexpected tool result turn: %+v", last.Content)
	}
}

func TestGenerateResponse_ToolResultOrderAndCardinality(t *testing.T) {
	svc, transport := newTestService(t,
		toolUseResponse(
			[2]string{"tu_1", "search_course_content"},
			[2]string{"tu_2", "get_course_outline"},
			[2]string{"tu_3", "search_course_content"},
		),
		textResponse("done"),
	)

	searchTool := &echoTool{name: "search_course_content", result: "search result"}
	outlineTool := &echoTool{name: "get_course_outline", result: "outline result"}
	registry := newTestRegistry(t, searchTool, outlineTool)

	if _, err := svc.GenerateResponse(context.Background(), "compare", "", registry, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := decodeRequest(t, transport.bodies[1])
	last := req.Messages[len(req.Messages)-1]

	if len(last.Content) != 3 {
		t.Fatalf("expected one result per request (3), got %d", len(last.Content))
	}
	wantOrder := []string{"tu_1", "tu_2", "tu_3"}
	for i, want := range wantOrder {
		if last.Content[i].Type != "tool_result" || last.Content[i].ToolUseID != want {
			t.Errorf("result %d: want tool_result for %s, got %+v", i, want, last.Content[i])
		}
	}
}

func TestGenerateResponse_RoundBudgetExhausted(t *testing.T) {
	svc, transport := newTestService(t,
		toolUseResponse([2]string{"tu_1", "search_course_content"}),
		toolUseResponse([2]string{"tu_2", "search_course_content"}),
		textResponse("Synthesized from tool results."),
	)

	tool := &echoTool{name: "search_course_content", result: "chunk"}
	registry := newTestRegistry(t, tool)

	answer, err := svc.GenerateResponse(context.Background(), "multi-part question", "", registry, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if answer != "Synthesized from tool results." {
		t.Errorf("unexpected answer: %q", answer)
	}
	if transport.calls != 3 {
		t.Fatalf("expected R+1=3 API calls, got %d", transport.calls)
	}
	if len(tool.executed) != 2 {
		t.Errorf("expected 2 tool executions, got %d", len(tool.executed))
	}

	// Tool-bearing rounds advertise tools with auto tool choice.
	for i := 0; i < 2; i++ {
		req := decodeRequest(t, transport.bodies[i])
		if len(req.Tools) == 0 {
			t.Errorf("round %d: expected tools in request", i+1)
		}
		if req.ToolChoice == nil || req.ToolChoice.Type != "auto" {
			t.Errorf("round %d: expected auto tool choice, got %+v", i+1, req.ToolChoice)
		}
	}

	// The forced synthesis call must not carry tools.
	synthesis := decodeRequest(t, transport.bodies[2])
	if len(synthesis.Tools) != 0 {
		t.Errorf("synthesis call must not advertise tools, got %d", len(synthesis.Tools))
	}
	if synthesis.ToolChoice != nil {
		t.Errorf("synthesis call must not set tool choice, got %+v", synthesis.ToolChoice)
	}
}

func TestGenerateResponse_SingleRoundBudget(t *testing.T) {
	svc, transport := newTestService(t,
		toolUseResponse([2]string{"tu_1", "search_course_content"}),
		textResponse("one round then synthesis"),
	)

	tool := &echoTool{name: "search_course_content", result: "chunk"}
	registry := newTestRegistry(t, tool)

	answer, err := svc.GenerateResponse(context.Background(), "q", "", registry, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if answer != "one round then synthesis" {
		t.Errorf("unexpected answer: %q", answer)
	}
	if transport.calls != 2 {
		t.Errorf("R=1 must make at most 2 API calls, got %d", transport.calls)
	}
}

func TestGenerateResponse_FallbackWhenSynthesisHasNoText(t *testing.T) {
	svc, transport := newTestService(t,
		toolUseResponse([2]string{"tu_1", "search_course_content"}),
		toolUseResponse([2]string{"tu_2", "search_course_content"}),
		// Synthesis still wants tools it no longer has: no text blocks.
		`{"id": "msg_1", "type": "message", "role": "assistant",
		  "model": "claude-sonnet-4-20250514", "stop_reason": "end_turn", "content": []}`,
	)

	tool := &echoTool{name: "search_course_content", result: "chunk"}
	registry := newTestRegistry(t, tool)

	answer, err := svc.GenerateResponse(context.Background(), "q", "", registry, 2)
	if err != nil {
		t.Fatalf("fallback must not surface an error, got: %v", err)
	}

	if answer != generator.FallbackMessage {
		t.Errorf("expected fallback message, got %q", answer)
	}
	if transport.calls != 3 {
		t.Errorf("expected 3 API calls, got %d", transport.calls)
	}
}

func TestGenerateResponse_FailingToolDoesNotAbortLoop(t *testing.T) {
	svc, transport := newTestService(t,
		toolUseResponse([2]string{"tu_1", "search_course_content"}),
		textResponse("recovered"),
	)

	tool := &echoTool{name: "search_course_content", fail: true}
	registry := newTestRegistry(t, tool)

	answer, err := svc.GenerateResponse(context.Background(), "q", "", registry, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "recovered" {
		t.Errorf("unexpected answer: %q", answer)
	}

	// The failure travels to the model as result text.
	req := decodeRequest(t, transport.bodies[1])
	last := req.Messages[len(req.Messages)-1]
	if len(last.Content) != 1 || last.Content[0].Type != "tool_result" {
		t.Fatalf("expected a tool result turn, got %+v", last.Content)
	}
}

func TestGenerateResponse_HistoryInSystemContent(t *testing.T) {
	svc, transport := newTestService(t, textResponse("ok"))

	_, err := svc.GenerateResponse(context.Background(), "q", "User: hi\nAssistant: hello", nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := decodeRequest(t, transport.bodies[0])
	if len(req.System) != 1 {
		t.Fatalf("expected one system block, got %d", len(req.System))
	}
	if !strings.Contains(req.System[0].Text, "Previous conversation:") ||
		!strings.Contains(req.System[0].Text, "User: hi") {
		t.Errorf("system content missing conversation history")
	}
}

func TestGenerateResponse_NilRegistryDisablesTools(t *testing.T) {
	svc, transport := newTestService(t, textResponse("no tools"))

	answer, err := svc.GenerateResponse(context.Background(), "q", "", nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "no tools" {
		t.Errorf("unexpected answer: %q", answer)
	}

	req := decodeRequest(t, transport.bodies[0])
	if len(req.Tools) != 0 {
		t.Errorf("no tools should be advertised without a registry")
	}
}

func TestGenerateResponse_InvalidRoundBudget(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.GenerateResponse(context.Background(), "q", "", nil, 0); err == nil {
		t.Error("expected error for round budget 0")
	}
}

func TestGenerateResponse_APIErrorPropagates(t *testing.T) {
	transport := &scriptedTransport{responses: []string{`{"error": {"type": "rate_limit_error", "message": "slow down"}}`}}
	// Force a failing status through a transport that always errors.
	svc := generator.NewService("test-key", "claude-sonnet-4-20250514",
		option.WithHTTPClient(&http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			_ = req.Body.Close()
			transport.bodies = append(transport.bodies, body)
			resp := &http.Response{
				StatusCode: 429,
				Body:       io.NopCloser(strings.NewReader(transport.responses[0])),
				Header:     make(http.Header),
			}
			resp.Header.Set("Content-Type", "application/json")
			return resp, nil
		})}),
		option.WithMaxRetries(0))

	if _, err := svc.GenerateResponse(context.Background(), "q", "", nil, 2); err == nil {
		t.Error("expected upstream service failure to propagate")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
