package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/planpilot/planpilot/pkg/models"
)

func TestDecompose(t *testing.T) {
	var prompt string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []Message `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Messages[len(req.Messages)-1].Content

		w.Write([]byte(chatReply(`{
			"parent_intent": "run the fair",
			"sub_intents": [
				{"id": "s1", "intent": "book the stand", "action": "BookStand(Venue)", "is_atomic": true, "atomic_source": "pre_defined", "scheduled_start": "09:00"}
			],
			"relationships": [
				{"type": "Sequence", "from_id": "s1", "to_id": "s2"}
			]
		}`)))
	})

	d := NewHTNDecomposer(c)
	allowed := map[string]string{
		"BookStand(Venue)": "Book a stand",
		"SendMail(To)":     "Send an email",
	}

	result, err := d.Decompose(context.Background(), "run the fair", allowed)
	if err != nil {
		t.Fatalf("decompose failed: %v", err)
	}

	if result.ParentIntent != "run the fair" {
		t.Errorf("parent = %q", result.ParentIntent)
	}
	if len(result.SubIntents) != 1 {
		t.Fatalf("sub intents = %v", result.SubIntents)
	}
	sub := result.SubIntents[0]
	if sub.Action != "BookStand(Venue)" || !sub.IsAtomic || sub.AtomicSource != models.SourcePreDefined {
		t.Errorf("sub = %+v", sub)
	}
	if sub.ScheduledStart != "09:00" {
		t.Errorf("scheduled start = %q", sub.ScheduledStart)
	}
	if len(result.Relationships) != 1 || result.Relationships[0].Type != models.EdgeSequence {
		t.Errorf("relationships = %v", result.Relationships)
	}

	// The prompt must list every allowed signature and the intent.
	for _, sig := range []string{"BookStand(Venue)", "SendMail(To)"} {
		if !strings.Contains(prompt, sig) {
			t.Errorf("prompt missing %q", sig)
		}
	}
	if !strings.Contains(prompt, "run the fair") {
		t.Error("prompt missing the intent")
	}
	if !strings.Contains(prompt, "one level") {
		t.Error("prompt missing the one-level constraint")
	}
}

func TestExtract(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply(`{
			"candidates": [
				{"name": "booking", "description": "book a stand at the fair", "slots": {"venue": "fair"}},
				{"name": "mail", "description": "email the organizer"}
			]
		}`)))
	})

	e := NewIntentExtractor(c)
	candidates, err := e.Extract(context.Background(), "book a stand and email the organizer")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %v", candidates)
	}
	if candidates[0].Slots["venue"] != "fair" {
		t.Errorf("slots = %v", candidates[0].Slots)
	}
}

func TestScopeGateCheck(t *testing.T) {
	var userMsg string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []Message `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		userMsg = req.Messages[len(req.Messages)-1].Content
		w.Write([]byte(chatReply(`{"can_execute": false, "reason": "No action covers weather control."}`)))
	})

	g := NewScopeGate(c)
	decision, err := g.Check(context.Background(), "make it sunny", []models.ActionBrief{
		{Name: "BookStand", Description: "Book a stand"},
	})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if decision.CanExecute {
		t.Error("expected rejection")
	}
	if decision.Reason != "No action covers weather control." {
		t.Errorf("reason = %q", decision.Reason)
	}
	if !strings.Contains(userMsg, "BookStand") || !strings.Contains(userMsg, "make it sunny") {
		t.Errorf("prompt missing context: %q", userMsg)
	}
}

func TestScopeGateDefaultReason(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply(`{"can_execute": true, "reason": "  "}`)))
	})

	g := NewScopeGate(c)
	decision, err := g.Check(context.Background(), "book a stand", nil)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if decision.Reason != "No reason provided." {
		t.Errorf("reason = %q", decision.Reason)
	}
}
