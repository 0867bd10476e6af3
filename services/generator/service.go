package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"courserag/services/search"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const maxOutputTokens = 1200

// FallbackMessage is returned when the round budget is exhausted and the
// final synthesis call still produced no extractable text.
const FallbackMessage = "I've searched through the course materials but need more tool calls " +
	"to fully answer your question. Please try asking a more specific question, " +
	"or break your question into smaller parts."

// Service drives a conversation with the Anthropic API through a bounded
// number of tool-use rounds.
type Service struct {
	client *anthropic.Client
	model  anthropic.Model
}

func NewService(apiKey, model string, opts ...option.RequestOption) *Service {
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := anthropic.NewClient(clientOpts...)

	return &Service{
		client: &client,
		model:  anthropic.Model(model),
	}
}

// GenerateResponse answers a query, letting the model invoke registered
// tools for up to maxRounds rounds. A nil registry disables tool use
// entirely. The round budget caps the loop at maxRounds+1 API calls: the
// tool rounds plus, when the budget runs out mid-chain, one forced
// tools-disabled synthesis call.
func (s *Service) GenerateResponse(ctx context.Context, query, conversationHistory string, registry *search.Registry, maxRounds int) (string, error) {
	if maxRounds < 1 {
		return "", fmt.Errorf("invalid round budget: %d", maxRounds)
	}

	log.Printf("[INFO] Generating response (max rounds: %d)", maxRounds)

	system := buildSystemContent(conversationHistory)

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(query)),
	}

	var toolDefs []anthropic.ToolUnionParam
	if registry != nil {
		toolDefs = registry.Definitions()
	}

	for round := 1; round <= maxRounds; round++ {
		params := anthropic.MessageNewParams{
			Model:       s.model,
			MaxTokens:   maxOutputTokens,
			Temperature: anthropic.Float(0),
			System:      []anthropic.TextBlockParam{{Text: system}},
			Messages:    messages,
		}
		if len(toolDefs) > 0 {
			params.Tools = toolDefs
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfAuto: &anthropic.ToolChoiceAutoParam{},
			}
		}

		response, err := s.client.Messages.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("completion request failed: %w", err)
		}

		if response.StopReason == anthropic.StopReasonToolUse && registry != nil {
			log.Printf("[INFO] Round %d: model requested tools", round)

			messages = append(messages, response.ToParam())

			toolResults := s.executeTools(ctx, response, registry)
			if len(toolResults) > 0 {
				messages = append(messages, anthropic.NewUserMessage(toolResults...))
			}
			continue
		}

		// Terminal stop reason: early exit, rounds may go unused.
		log.Printf("[INFO] Round %d: final answer", round)
		return extractText(response)
	}

	log.Printf("[INFO] Round budget exhausted, forcing final synthesis")
	return s.finalSynthesis(ctx, messages, system)
}

func buildSystemContent(conversationHistory string) string {
	if conversationHistory != "" {
		return fmt.Sprintf("%s\n\nPrevious conversation:\n%s", SystemPrompt, conversationHistory)
	}
	return SystemPrompt
}

// executeTools runs every tool invocation in the response, in the order
// given, and returns one result block per invocation. The registry
// converts failures into result text, so a failing tool never breaks the
// round.
func (s *Service) executeTools(ctx context.Context, response *anthropic.Message, registry *search.Registry) []anthropic.ContentBlockParamUnion {
	var toolResults []anthropic.ContentBlockParamUnion

	for _, block := range response.Content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}

		inputJSON, err := json.Marshal(toolUse.Input)
		if err != nil {
			inputJSON = []byte("{}")
		}

		log.Printf("[INFO] Executing tool %s (id: %s)", toolUse.Name, toolUse.ID)
		result := registry.Execute(ctx, toolUse.Name, inputJSON)

		toolResults = append(toolResults, anthropic.ContentBlockParamUnion{
			OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: toolUse.ID,
				Content: []anthropic.ToolResultBlockParamContentUnion{
					{OfText: &anthropic.TextBlockParam{Text: result}},
				},
			},
		})
	}

	return toolResults
}

// finalSynthesis makes one tools-disabled call so the model has to commit
// to text. If it still produces none, the fixed fallback message is the
// answer; the user never sees an internal extraction error here.
func (s *Service) finalSynthesis(ctx context.Context, messages []anthropic.MessageParam, system string) (string, error) {
	response, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       s.model,
		MaxTokens:   maxOutputTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    messages,
	})
	if err != nil {
		return "", fmt.Errorf("final synthesis request failed: %w", err)
	}

	text, err := extractText(response)
	if err != nil {
		log.Printf("[WARN] Final synthesis returned no text: %v", err)
		return FallbackMessage, nil
	}
	return text, nil
}

// extractText returns the first plain-text block of a response. The error
// carries the stop reason and block kinds so midway failures stay
// diagnosable.
func extractText(response *anthropic.Message) (string, error) {
	for _, block := range response.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			return text.Text, nil
		}
	}

	kinds := make([]string, 0, len(response.Content))
	for _, block := range response.Content {
		kinds = append(kinds, string(block.Type))
	}
	return "", fmt.Errorf("no text content found in response (stop reason: %s, content blocks: %v)", response.StopReason, kinds)
}
