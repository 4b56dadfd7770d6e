package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/planpilot/planpilot/pkg/models"
)

// Walker renders a finished plan tree for review. It walks children in
// declared order and annotates each node with its schedule, kind, and
// whether the action is catalog-backed or newly generated. Actual
// execution is up to the caller; the walker only reports what would
// run.
type Walker struct {
	out io.Writer
}

// NewWalker creates a walker writing to out.
func NewWalker(out io.Writer) *Walker {
	return &Walker{out: out}
}

// Describe prints the tree. Unresolved plans are refused: there is
// nothing runnable to describe.
func (w *Walker) Describe(plan *models.PlanNode) error {
	if plan == nil {
		return fmt.Errorf("no plan to describe")
	}
	if plan.Unresolved() {
		return fmt.Errorf("plan unresolved: %s", plan.Reason)
	}

	w.describeNode(plan, 0)
	return nil
}

func (w *Walker) describeNode(n *models.PlanNode, depth int) {
	indent := strings.Repeat("    ", depth)

	prefix := "└── "
	if depth == 0 {
		prefix = "[ROOT] "
	}

	sched := n.ScheduledStart
	if sched == "" {
		sched = "N/A"
	}

	switch {
	case n.Kind == models.KindAtomic, n.Kind == models.KindLeafForcedAtomic:
		marker := "[NEW]"
		if n.AtomicSource == models.SourcePreDefined {
			marker = "[EXEC]"
		}
		label := n.Action
		if label == "" {
			label = n.Intent
		}
		fmt.Fprintf(w.out, "%s[%s] %s %s\n", indent, sched, marker, label)
	case n.Error != "":
		fmt.Fprintf(w.out, "%s%s%s (error: %s)\n", indent, prefix, n.Intent, n.Error)
	default:
		fmt.Fprintf(w.out, "%s%s%s\n", indent, prefix, n.Intent)
	}

	for _, group := range orderChildren(n) {
		for _, child := range group {
			w.describeNode(child, depth+1)
		}
	}
}

// orderChildren arranges direct children into sequential groups using
// the node's ordering edges: children linked by Sequence edges run one
// after another, Parallel partners share a group. Children without
// edges keep declaration order, each in its own group.
func orderChildren(n *models.PlanNode) [][]*models.PlanNode {
	if len(n.Children) == 0 {
		return nil
	}

	byID := make(map[string]*models.PlanNode, len(n.Children))
	for _, c := range n.Children {
		byID[c.ID] = c
	}

	// Union children connected by Parallel edges into shared groups.
	groupOf := make(map[string]int)
	var groups [][]*models.PlanNode

	addToGroup := func(id string, g int) {
		if c, ok := byID[id]; ok {
			groups[g] = append(groups[g], c)
			groupOf[id] = g
		}
	}

	for _, edge := range n.ExecutionLogic {
		if edge.Type != models.EdgeParallel {
			continue
		}
		gFrom, okFrom := groupOf[edge.FromID]
		_, okTo := groupOf[edge.ToID]
		switch {
		case okFrom && !okTo:
			addToGroup(edge.ToID, gFrom)
		case !okFrom && okTo:
			addToGroup(edge.FromID, groupOf[edge.ToID])
		case !okFrom && !okTo:
			groups = append(groups, nil)
			g := len(groups) - 1
			addToGroup(edge.FromID, g)
			addToGroup(edge.ToID, g)
		}
	}

	// Remaining children get singleton groups in declaration order.
	for _, c := range n.Children {
		if _, ok := groupOf[c.ID]; !ok {
			groups = append(groups, []*models.PlanNode{c})
			groupOf[c.ID] = len(groups) - 1
		}
	}

	return groups
}

// CountAtomic returns how many executable steps the plan contains and
// how many of those are catalog-backed.
func CountAtomic(plan *models.PlanNode) (total, preDefined int) {
	plan.Walk(func(n *models.PlanNode) {
		if !n.IsAtomic && n.Kind != models.KindAtomic {
			return
		}
		total++
		if n.AtomicSource == models.SourcePreDefined {
			preDefined++
		}
	})
	return total, preDefined
}
