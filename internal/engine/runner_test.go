package engine

import (
	"strings"
	"testing"

	"github.com/planpilot/planpilot/pkg/models"
)

func samplePlan() *models.PlanNode {
	return &models.PlanNode{
		ID:     "root",
		Intent: "run the fair",
		Kind:   models.KindComposite,
		Children: []*models.PlanNode{
			{ID: "s1", Intent: "book the stand", Action: "BookStand(Venue)", Kind: models.KindAtomic, IsAtomic: true, AtomicSource: models.SourcePreDefined, ScheduledStart: "09:00"},
			{ID: "s2", Intent: "hang the banner", Action: "HangBanner()", Kind: models.KindAtomic, IsAtomic: true, AtomicSource: models.SourceNewGenerated},
		},
		ExecutionLogic: []models.OrderingEdge{
			{Type: models.EdgeSequence, FromID: "s1", ToID: "s2"},
		},
	}
}

func TestDescribe(t *testing.T) {
	var out strings.Builder
	w := NewWalker(&out)

	if err := w.Describe(samplePlan()); err != nil {
		t.Fatalf("describe failed: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "[ROOT] run the fair") {
		t.Errorf("missing root line:\n%s", text)
	}
	if !strings.Contains(text, "[09:00] [EXEC] BookStand(Venue)") {
		t.Errorf("missing catalog-backed step:\n%s", text)
	}
	if !strings.Contains(text, "[N/A] [NEW] HangBanner()") {
		t.Errorf("missing generated step:\n%s", text)
	}

	// Sequence edge: booking before banner.
	if strings.Index(text, "BookStand") > strings.Index(text, "HangBanner") {
		t.Errorf("sequence order not honored:\n%s", text)
	}
}

func TestDescribeRefusesUnresolved(t *testing.T) {
	var out strings.Builder
	w := NewWalker(&out)

	plan := &models.PlanNode{
		Kind:   models.KindLeafUnresolved,
		Reason: "Some sub-intents have no matched actions.",
	}
	err := w.Describe(plan)
	if err == nil {
		t.Fatal("expected error for unresolved plan")
	}
	if !strings.Contains(err.Error(), "no matched actions") {
		t.Errorf("error = %v", err)
	}
}

func TestDescribeNil(t *testing.T) {
	w := NewWalker(&strings.Builder{})
	if err := w.Describe(nil); err == nil {
		t.Fatal("expected error for nil plan")
	}
}

func TestOrderChildrenParallelGrouping(t *testing.T) {
	n := &models.PlanNode{
		Children: []*models.PlanNode{
			{ID: "a"}, {ID: "b"}, {ID: "c"},
		},
		ExecutionLogic: []models.OrderingEdge{
			{Type: models.EdgeParallel, FromID: "a", ToID: "b"},
		},
	}

	groups := orderChildren(n)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(groups[0]) != 2 {
		t.Errorf("parallel partners should share a group: %v", groups[0])
	}
	if len(groups[1]) != 1 || groups[1][0].ID != "c" {
		t.Errorf("unlinked child should trail in declaration order")
	}
}

func TestCountAtomic(t *testing.T) {
	total, preDefined := CountAtomic(samplePlan())
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if preDefined != 1 {
		t.Errorf("preDefined = %d, want 1", preDefined)
	}
}
