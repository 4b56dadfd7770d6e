package intent

import (
	"context"
	"log"
	"strings"

	"github.com/planpilot/planpilot/internal/interfaces"
	"github.com/planpilot/planpilot/pkg/models"
)

// Selector merges per-sub-intent match lists into the allowed-action
// map handed to the planner: call signature to description.
type Selector struct {
	catalog interfaces.Catalog
}

// NewSelector creates a selector backed by the catalog, which supplies
// the declared parameter order for signatures.
func NewSelector(catalog interfaces.Catalog) *Selector {
	return &Selector{catalog: catalog}
}

// Select keeps the best-scoring occurrence of each action across all
// sub-intent match lists and renders its signature. Actions whose
// parameter lookup fails get a bare signature rather than being
// dropped.
func (s *Selector) Select(ctx context.Context, matchLists [][]models.ActionMatch) (map[string]string, error) {
	best := make(map[string]models.ActionMatch)

	for _, matches := range matchLists {
		for _, m := range matches {
			name := m.Action.Name
			if name == "" {
				continue
			}
			if prev, ok := best[name]; !ok || m.FinalScore > prev.FinalScore {
				best[name] = m
			}
		}
	}

	allowed := make(map[string]string, len(best))
	for name, m := range best {
		keys, err := s.catalog.OrderedParamKeys(ctx, name)
		if err != nil {
			log.Printf("param keys unavailable for %s: %v", name, err)
			keys = nil
		}
		allowed[formatSignature(name, keys)] = m.Action.Description
	}

	return allowed, nil
}

// formatSignature renders "Name(ParamOne, TargetID)" from the action
// name and its ordered parameter keys.
func formatSignature(name string, paramKeys []string) string {
	if len(paramKeys) == 0 {
		return name + "()"
	}
	formatted := make([]string, len(paramKeys))
	for i, key := range paramKeys {
		formatted[i] = formatParamKey(key)
	}
	return name + "(" + strings.Join(formatted, ", ") + ")"
}

// formatParamKey converts snake_case keys to the PascalCase used in
// signatures, spelling "id" segments as "ID".
func formatParamKey(key string) string {
	parts := strings.Split(key, "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if strings.EqualFold(part, "id") {
			parts[i] = "ID"
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, "")
}
