package llm

import (
	"context"
	"fmt"

	"github.com/planpilot/planpilot/internal/interfaces"
	"github.com/planpilot/planpilot/pkg/models"
)

// IntentExtractor splits a free-text request into sub-intent
// candidates with any slot values it can pull from the text.
type IntentExtractor struct {
	client *Client
}

var _ interfaces.SubIntentExtractor = (*IntentExtractor)(nil)

// NewIntentExtractor creates an extractor over the given client.
func NewIntentExtractor(client *Client) *IntentExtractor {
	return &IntentExtractor{client: client}
}

const extractorSystemPrompt = `You split a user request into distinct sub-intentions.
For each sub-intention return:
- name: a short label
- description: the sub-intention restated in the user's own words, not abstracted
- slots: key-value pairs for every concrete value mentioned (names, places, times, quantities)
Keep descriptions close to the original wording. Do not invent sub-intentions.
Return ONLY a JSON object: {"candidates": [{"name": "...", "description": "...", "slots": {...}}]}`

type extractResponse struct {
	Candidates []models.IntentCandidate `json:"candidates"`
}

// Extract returns ordered sub-intent candidates for the text.
func (e *IntentExtractor) Extract(ctx context.Context, text string) ([]models.IntentCandidate, error) {
	messages := []Message{
		{Role: "system", Content: extractorSystemPrompt},
		{Role: "user", Content: text},
	}

	var result extractResponse
	if err := e.client.JSON(ctx, messages, &result); err != nil {
		return nil, fmt.Errorf("sub-intent extraction failed: %w", err)
	}
	return result.Candidates, nil
}
