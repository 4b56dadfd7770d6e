package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/planpilot/planpilot/internal/interfaces"
	"github.com/planpilot/planpilot/pkg/models"
)

// ScopeGate asks the reasoning service whether an intent can be
// completed using only the available actions. It sees capability
// name/description pairs and nothing else, so it cannot rewrite the
// intent into something the catalog happens to cover.
type ScopeGate struct {
	client *Client
}

var _ interfaces.ScopeChecker = (*ScopeGate)(nil)

// NewScopeGate creates a scope checker over the given client.
func NewScopeGate(client *Client) *ScopeGate {
	return &ScopeGate{client: client}
}

const scopeSystemPrompt = `You are a capability checker.
Decide whether the user's intent can be completed using ONLY the available actions.
Do not rewrite the intent. Do not propose alternative tasks.
Return a single JSON object with fields: can_execute (boolean), reason (string).`

// Check returns the service's verdict. Callers decide whether a call
// failure rejects or passes; the gate itself just reports the error.
func (g *ScopeGate) Check(ctx context.Context, intent string, actions []models.ActionBrief) (models.ScopeDecision, error) {
	tools, err := json.Marshal(actions)
	if err != nil {
		return models.ScopeDecision{}, fmt.Errorf("failed to encode actions: %w", err)
	}

	messages := []Message{
		{Role: "system", Content: scopeSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("User intent:\n%s\n\nAvailable actions:\n%s\n\nReturn JSON:", intent, tools)},
	}

	var decision models.ScopeDecision
	if err := g.client.JSON(ctx, messages, &decision); err != nil {
		return models.ScopeDecision{}, fmt.Errorf("scope check failed: %w", err)
	}

	if strings.TrimSpace(decision.Reason) == "" {
		decision.Reason = "No reason provided."
	}
	return decision, nil
}
