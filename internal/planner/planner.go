package planner

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/planpilot/planpilot/internal/interfaces"
	"github.com/planpilot/planpilot/pkg/models"
)

// Unscheduled nodes carry this placeholder instead of a start time.
const noSchedule = "N/A"

// Planner builds a depth-bounded plan tree by repeatedly asking the
// decomposer to break composite intents one level at a time.
type Planner struct {
	decomposer interfaces.Decomposer
	maxDepth   int
	pacing     time.Duration
}

// New creates a planner. pacing is the delay inserted before each
// recursive decomposition call to avoid hammering the reasoning
// service.
func New(decomposer interfaces.Decomposer, maxDepth int, pacing time.Duration) *Planner {
	return &Planner{
		decomposer: decomposer,
		maxDepth:   maxDepth,
		pacing:     pacing,
	}
}

// Plan builds the tree for an intent, constrained to allowedActions
// (signature -> description).
func (p *Planner) Plan(ctx context.Context, intent string, allowedActions map[string]string) *models.PlanNode {
	return p.plan(ctx, intent, allowedActions, 0, noSchedule, "root")
}

func (p *Planner) plan(ctx context.Context, intent string, allowedActions map[string]string, depth int, scheduledStart, nodeID string) *models.PlanNode {
	node := &models.PlanNode{
		ID:             nodeID,
		Intent:         intent,
		Depth:          depth,
		ScheduledStart: scheduledStart,
		Kind:           models.KindComposite,
		Children:       []*models.PlanNode{},
		ExecutionLogic: []models.OrderingEdge{},
	}

	// At the depth ceiling the intent becomes a forced leaf without
	// another decomposition call.
	if depth >= p.maxDepth {
		node.Kind = models.KindLeafForcedAtomic
		node.IsAtomic = true
		node.AtomicSource = models.SourceNewGenerated
		return node
	}

	result, err := p.decomposer.Decompose(ctx, intent, allowedActions)
	if err != nil {
		log.Printf("decomposition failed for %q: %v", intent, err)
		node.Error = "Decomposition failed"
		return node
	}

	node.ExecutionLogic = result.Relationships
	if node.ExecutionLogic == nil {
		node.ExecutionLogic = []models.OrderingEdge{}
	}

	if len(result.SubIntents) == 0 {
		node.Kind = models.KindLeafNoChildren
		node.IsAtomic = true
		return node
	}

	for _, sub := range result.SubIntents {
		subID := sub.ID
		if subID == "" {
			subID = uuid.NewString()
		}

		if sub.IsAtomic {
			node.Children = append(node.Children, &models.PlanNode{
				ID:             subID,
				Intent:         sub.Intent,
				Action:         sub.Action,
				Depth:          depth + 1,
				ScheduledStart: sub.ScheduledStart,
				Kind:           models.KindAtomic,
				IsAtomic:       true,
				AtomicSource:   sub.AtomicSource,
				Children:       []*models.PlanNode{},
			})
			continue
		}

		if p.pacing > 0 {
			select {
			case <-ctx.Done():
				node.Error = ctx.Err().Error()
				return node
			case <-time.After(p.pacing):
			}
		}

		child := p.plan(ctx, sub.Intent, allowedActions, depth+1, sub.ScheduledStart, subID)
		if child != nil {
			node.Children = append(node.Children, child)
		}
	}

	return node
}
