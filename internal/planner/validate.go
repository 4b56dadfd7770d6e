package planner

import (
	"strings"

	"github.com/planpilot/planpilot/pkg/models"
)

// Validate walks a finished plan and returns every atomic node whose
// action call is not in the allowed set. A non-empty result means the
// reasoning service invented capabilities the catalog does not have.
func Validate(plan *models.PlanNode, allowedActions map[string]string) []models.IllegalAtomicNode {
	allowedNames := make(map[string]bool, len(allowedActions))
	for sig := range allowedActions {
		allowedNames[extractActionName(sig)] = true
	}

	var illegal []models.IllegalAtomicNode
	plan.Walk(func(n *models.PlanNode) {
		if n.Kind != models.KindAtomic && !n.IsAtomic {
			return
		}
		if n.Action == "" {
			return
		}
		if !allowedNames[extractActionName(n.Action)] {
			illegal = append(illegal, models.IllegalAtomicNode{
				ID:         n.ID,
				Action:     n.Action,
				ActionName: extractActionName(n.Action),
			})
		}
	})

	return illegal
}

// extractActionName takes the name part of a call like
// "CreateOrder(TargetID)".
func extractActionName(call string) string {
	if idx := strings.Index(call, "("); idx >= 0 {
		call = call[:idx]
	}
	return strings.TrimSpace(call)
}
