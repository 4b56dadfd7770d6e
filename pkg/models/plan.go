package models

// NodeKind classifies a node of the plan tree.
type NodeKind string

const (
	KindComposite        NodeKind = "composite"
	KindAtomic           NodeKind = "atomic"
	KindLeafForcedAtomic NodeKind = "leaf_forced_atomic"
	KindLeafNoChildren   NodeKind = "leaf_no_children"
	KindLeafUnresolved   NodeKind = "leaf_unresolved"
)

// Atomic node provenance.
const (
	SourcePreDefined   = "pre_defined"
	SourceNewGenerated = "new_generated"
)

// Ordering edge types between sibling nodes.
const (
	EdgeSequence = "Sequence"
	EdgeParallel = "Parallel"
)

// OrderingEdge declares an ordering constraint between two direct children
// of the node that carries it.
type OrderingEdge struct {
	Type   string `json:"type"`
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
}

// IllegalAtomicNode identifies an atomic node whose action is outside the
// allowed set.
type IllegalAtomicNode struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	ActionName string `json:"action_name"`
}

// PlanDebug carries session diagnostics attached to a root node.
type PlanDebug struct {
	SubIntentions  []string `json:"sub_intentions,omitempty"`
	AllowedActions []string `json:"allowed_actions,omitempty"`
	ScopeReason    string   `json:"scope_reason,omitempty"`
}

// PlanNode is one node of the hierarchical plan tree. The orchestrator owns
// the tree for the duration of a planning call; nodes are never shared or
// mutated after being attached to a parent.
type PlanNode struct {
	ID             string         `json:"id"`
	Intent         string         `json:"intent"`
	Depth          int            `json:"depth"`
	ScheduledStart string         `json:"scheduled_start"`
	Kind           NodeKind       `json:"type"`
	IsAtomic       bool           `json:"is_atomic"`
	AtomicSource   string         `json:"atomic_source,omitempty"`
	Action         string         `json:"action,omitempty"`
	Children       []*PlanNode    `json:"sub_plans"`
	ExecutionLogic []OrderingEdge `json:"execution_logic"`
	Error          string         `json:"error,omitempty"`

	// Populated only on leaf_unresolved results.
	Reason                 string              `json:"reason,omitempty"`
	UnmatchedSubIntentions []string            `json:"unmatched_sub_intentions,omitempty"`
	MatchedSubIntentions   []string            `json:"matched_sub_intentions,omitempty"`
	IllegalAtomicNodes     []IllegalAtomicNode `json:"illegal_atomic_nodes,omitempty"`

	Debug *PlanDebug `json:"debug,omitempty"`
}

// Walk visits n and every descendant in pre-order.
func (n *PlanNode) Walk(fn func(*PlanNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Unresolved reports whether the node is an explicit rejection verdict.
func (n *PlanNode) Unresolved() bool {
	return n != nil && n.Kind == KindLeafUnresolved
}

// DecomposedIntent is one sub-intent returned by the decomposition
// collaborator during recursive planning.
type DecomposedIntent struct {
	ID             string `json:"id"`
	Intent         string `json:"intent"`
	Action         string `json:"action"`
	IsAtomic       bool   `json:"is_atomic"`
	AtomicSource   string `json:"atomic_source"`
	ScheduledStart string `json:"scheduled_start"`
}

// Decomposition is the structured result of one decomposition call:
// a single level of sub-intents plus ordering relationships between them.
type Decomposition struct {
	ParentIntent  string             `json:"parent_intent"`
	SubIntents    []DecomposedIntent `json:"sub_intents"`
	Relationships []OrderingEdge     `json:"relationships"`
}
