package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/planpilot/planpilot/internal/interfaces"
	"github.com/planpilot/planpilot/pkg/models"
)

// HTNDecomposer breaks an intent into one level of sub-intents using
// the reasoning service, constrained to the allowed action signatures.
type HTNDecomposer struct {
	client *Client
}

var _ interfaces.Decomposer = (*HTNDecomposer)(nil)

// NewHTNDecomposer creates a decomposer over the given client.
func NewHTNDecomposer(client *Client) *HTNDecomposer {
	return &HTNDecomposer{client: client}
}

const decomposerSystemPrompt = "You are a specialized agent for Time-Aware HTN planning. Return ONLY valid JSON."

// Decompose asks the reasoning service for one level of sub-intents.
func (d *HTNDecomposer) Decompose(ctx context.Context, intent string, allowedActions map[string]string) (*models.Decomposition, error) {
	messages := []Message{
		{Role: "system", Content: decomposerSystemPrompt},
		{Role: "user", Content: buildDecompositionPrompt(intent, allowedActions)},
	}

	var result models.Decomposition
	if err := d.client.JSON(ctx, messages, &result); err != nil {
		return nil, fmt.Errorf("decomposition failed: %w", err)
	}
	return &result, nil
}

// buildDecompositionPrompt renders the one-level decomposition request.
// Actions are listed in sorted order so prompts are deterministic.
func buildDecompositionPrompt(intent string, allowedActions map[string]string) string {
	signatures := make([]string, 0, len(allowedActions))
	for sig := range allowedActions {
		signatures = append(signatures, sig)
	}
	sort.Strings(signatures)

	var tools strings.Builder
	for _, sig := range signatures {
		fmt.Fprintf(&tools, "- %s: %s\n", sig, allowedActions[sig])
	}

	return fmt.Sprintf(`Break down the User Intent into immediate sub-intents (one level deep only).

### Available Atomic Intents
%s
### Context
- **Current Intent**: %q

### Rules
1. **One Level Only**: Produce only one level of sub-intents (no deeper nesting).
2. **Atomic Selection**: If a sub-intent matches one of the Available Atomic Intents, set is_atomic=true and atomic_source="pre_defined".
   If no atomic intent matches, set is_atomic=false and atomic_source=null (or "new_generated" only if you truly define a new atomic intent).
3. **Action Field**: If is_atomic=true, action MUST be a function-like call using the atomic intent name and extracted arguments when applicable. If is_atomic=false, set action to an empty string "".
4. **Intent Field**: intent MUST be the natural-language sub-intention text derived from the current intent.
5. **Time Awareness**: Only assign scheduled_start if a specific, absolute time is mentioned or logically required (e.g., "14:00").
6. **No Relative Time**: Do NOT use relative markers like "T-15m", "ASAP", "tomorrow morning".
7. **Empty Value**: If a sub-intent does not have a confirmed absolute start time, set scheduled_start to "".

### Output Format
Return ONLY valid JSON. No markdown, no explanation.

{
"parent_intent": "string",
"sub_intents": [
    {
    "id": "string",
    "intent": "string",
    "action": "string",
    "is_atomic": boolean,
    "atomic_source": "pre_defined" | "new_generated" | null,
    "scheduled_start": "string (HH:MM or empty)"
    }
],
"relationships": [
    { "type": "Sequence"|"Parallel", "from_id": "string", "to_id": "string" }
]
}`, tools.String(), intent)
}
