package planner

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/planpilot/planpilot/internal/intent"
	"github.com/planpilot/planpilot/internal/interfaces"
	"github.com/planpilot/planpilot/internal/journey"
	"github.com/planpilot/planpilot/pkg/models"
)

// Orchestrator runs the full pipeline from free text to a validated
// plan tree: extract sub-intents, match each against the catalog,
// select the allowed actions, gate on capability scope, plan, and
// validate the result against the allowed set.
//
// The pipeline is conservative: any sub-intent without a matched
// action, an empty allowed set, a scope rejection, or a plan that uses
// actions outside the allowed set all produce an unresolved root
// instead of a runnable plan.
type Orchestrator struct {
	profile   *intent.Profile
	extractor interfaces.SubIntentExtractor
	matcher   *intent.Matcher
	selector  *intent.Selector
	scope     interfaces.ScopeChecker // nil disables the gate
	planner   *Planner
	trace     *journey.Logger

	scopeStrict  bool
	matchWorkers int
}

// NewOrchestrator wires the pipeline. Passing a nil scope checker
// disables the capability gate entirely.
func NewOrchestrator(
	profile *intent.Profile,
	extractor interfaces.SubIntentExtractor,
	matcher *intent.Matcher,
	selector *intent.Selector,
	scope interfaces.ScopeChecker,
	planner *Planner,
	scopeStrict bool,
	matchWorkers int,
) *Orchestrator {
	if matchWorkers < 1 {
		matchWorkers = 1
	}
	return &Orchestrator{
		profile:      profile,
		extractor:    extractor,
		matcher:      matcher,
		selector:     selector,
		scope:        scope,
		planner:      planner,
		trace:        journey.GetLogger(),
		scopeStrict:  scopeStrict,
		matchWorkers: matchWorkers,
	}
}

// PlanIntention turns a natural-language request into a plan tree. The
// returned root is never nil; rejected requests come back as an
// unresolved leaf carrying the rejection reason and diagnostics.
func (o *Orchestrator) PlanIntention(ctx context.Context, intention string) *models.PlanNode {
	norm := o.profile.Normalize(intention)

	o.trace.StartNewTrace(norm)
	defer o.trace.Flush()

	subs := o.breakDownIntention(ctx, norm)

	// Match every sub-intent concurrently, results kept in input order.
	results := make([][]models.ActionMatch, len(subs))
	errs := make([]error, len(subs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, o.matchWorkers)
	start := time.Now()
	for i, sub := range subs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sub models.SubIntent) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i], errs[i] = o.matcher.Match(ctx, sub.Intent, sub.Slots)
		}(i, sub)
	}
	wg.Wait()

	var unmatched, matched []string
	var matchLists [][]models.ActionMatch
	topScore := 0.0
	for i, sub := range subs {
		if errs[i] != nil {
			log.Printf("match failed for %q: %v", sub.Intent, errs[i])
			unmatched = append(unmatched, sub.Intent)
			continue
		}
		if len(results[i]) == 0 {
			unmatched = append(unmatched, sub.Intent)
			continue
		}
		matched = append(matched, sub.Intent)
		matchLists = append(matchLists, results[i])
		if s := results[i][0].FinalScore; s > topScore {
			topScore = s
		}
	}
	o.trace.AddStage("match", len(matched), topScore, time.Since(start), "")

	if len(unmatched) > 0 {
		o.trace.SetVerdict("leaf_unresolved: unmatched sub-intents")
		return unresolvedRoot(norm, "Some sub-intents have no matched actions.", subs, &models.PlanNode{
			UnmatchedSubIntentions: unmatched,
			MatchedSubIntentions:   matched,
		})
	}

	// Merge per-sub-intent matches into the allowed-action map.
	allowed, err := o.selector.Select(ctx, matchLists)
	if err != nil {
		o.trace.SetVerdict("leaf_unresolved: selection failed")
		return unresolvedRoot(norm, fmt.Sprintf("Action selection failed: %v", err), subs, &models.PlanNode{
			MatchedSubIntentions: matched,
		})
	}

	allowedNames := allowedActionNames(allowed)
	if len(allowedNames) == 0 {
		o.trace.SetVerdict("leaf_unresolved: empty allowed set")
		return unresolvedRoot(norm, "No allowed actions selected.", subs, &models.PlanNode{
			MatchedSubIntentions: matched,
		})
	}
	o.trace.AddStage("select", len(allowedNames), 0, 0, strings.Join(allowedNames, ","))

	// Capability gate: the planner only sees intents the allowed set
	// can plausibly cover, so pre_defined markers cannot smuggle in
	// unmatched work.
	if o.scope != nil {
		if reject := o.checkScope(ctx, norm, subs, allowed, allowedNames); reject != nil {
			return reject
		}
	}

	start = time.Now()
	plan := o.planner.Plan(ctx, norm, allowed)
	o.trace.AddStage("plan", len(plan.Children), 0, time.Since(start), "")

	if illegal := Validate(plan, allowed); len(illegal) > 0 {
		o.trace.SetVerdict("leaf_unresolved: illegal atomic nodes")
		return unresolvedRoot(norm, "Planner produced actions outside allowed set.", subs, &models.PlanNode{
			MatchedSubIntentions: subIntentTexts(subs),
			IllegalAtomicNodes:   illegal,
			Debug: &models.PlanDebug{
				AllowedActions: allowedNames,
			},
		})
	}

	if plan.Debug == nil {
		plan.Debug = &models.PlanDebug{}
	}
	plan.Debug.SubIntentions = subIntentTexts(subs)
	plan.Debug.AllowedActions = allowedNames

	o.trace.SetVerdict(string(plan.Kind))
	return plan
}

// breakDownIntention splits the normalized request into sub-intents.
// The reasoning service's output is guarded against over-abstraction:
// a candidate with no effective slots whose text barely overlaps the
// original falls back to the original wording, so the downstream match
// cannot be steered toward a different goal than the user stated.
func (o *Orchestrator) breakDownIntention(ctx context.Context, norm string) []models.SubIntent {
	start := time.Now()

	candidates, err := o.extractor.Extract(ctx, norm)
	if err != nil {
		log.Printf("sub-intent extraction failed, falling back to normalized text: %v", err)
		o.trace.AddStage("extract", 1, 0, time.Since(start), "fallback")
		return []models.SubIntent{fallbackSubIntent(norm)}
	}

	subs := make([]models.SubIntent, 0, len(candidates))
	for _, c := range candidates {
		slots := reserveSlots(c.Slots, norm)

		canon := strings.TrimSpace(c.Description)
		if canon == "" {
			canon = strings.TrimSpace(c.Name)
		}
		if canon == "" {
			canon = norm
		}
		canon = o.profile.Normalize(canon)

		sub := models.SubIntent{Intent: canon, Slots: slots}
		if len(sub.EffectiveSlots()) == 0 && charOverlap(norm, canon) < 0.25 {
			sub.Intent = norm
			sub.Raw = map[string]any{
				"fallback_reason": "over_abstract_without_slots",
				"candidate_name":  c.Name,
				"candidate_text":  c.Description,
			}
		} else {
			sub.Raw = map[string]any{
				"name":        c.Name,
				"description": c.Description,
			}
		}
		subs = append(subs, sub)
	}

	if len(subs) == 0 {
		subs = []models.SubIntent{fallbackSubIntent(norm)}
	}

	o.trace.AddStage("extract", len(subs), 0, time.Since(start), "")
	return subs
}

// checkScope runs the capability gate. A rejection or, in strict mode,
// a gate failure returns the unresolved root; otherwise nil.
func (o *Orchestrator) checkScope(ctx context.Context, norm string, subs []models.SubIntent, allowed map[string]string, allowedNames []string) *models.PlanNode {
	briefs := make([]models.ActionBrief, 0, len(allowed))
	for sig, desc := range allowed {
		briefs = append(briefs, models.ActionBrief{
			Name:        extractActionName(sig),
			Description: desc,
		})
	}
	sort.Slice(briefs, func(i, j int) bool { return briefs[i].Name < briefs[j].Name })

	start := time.Now()
	decision, err := o.scope.Check(ctx, norm, briefs)
	o.trace.AddStage("scope", len(briefs), 0, time.Since(start), decision.Reason)

	if err != nil {
		log.Printf("scope gate error: %v", err)
		if !o.scopeStrict {
			return nil
		}
		o.trace.SetVerdict("leaf_unresolved: scope gate failed")
		return unresolvedRoot(norm, fmt.Sprintf("Scope gate failed: %v", err), subs, &models.PlanNode{
			MatchedSubIntentions: subIntentTexts(subs),
			Debug: &models.PlanDebug{
				AllowedActions: allowedNames,
			},
		})
	}

	if !decision.CanExecute {
		reason := decision.Reason
		if reason == "" {
			reason = "Scope gate rejected."
		}
		o.trace.SetVerdict("leaf_unresolved: out of scope")
		return unresolvedRoot(norm, reason, subs, &models.PlanNode{
			MatchedSubIntentions: subIntentTexts(subs),
			Debug: &models.PlanDebug{
				AllowedActions: allowedNames,
				ScopeReason:    decision.Reason,
			},
		})
	}

	return nil
}

// unresolvedRoot builds the rejection node every abort path returns.
// extra carries path-specific fields (unmatched lists, illegal nodes,
// debug payload) to merge into the standard shape.
func unresolvedRoot(intent, reason string, subs []models.SubIntent, extra *models.PlanNode) *models.PlanNode {
	node := &models.PlanNode{
		ID:             "root",
		Intent:         intent,
		Depth:          0,
		ScheduledStart: noSchedule,
		Kind:           models.KindLeafUnresolved,
		Reason:         reason,
		Children:       []*models.PlanNode{},
		ExecutionLogic: []models.OrderingEdge{},
		Debug:          &models.PlanDebug{SubIntentions: subIntentTexts(subs)},
	}
	if extra != nil {
		node.UnmatchedSubIntentions = extra.UnmatchedSubIntentions
		node.MatchedSubIntentions = extra.MatchedSubIntentions
		node.IllegalAtomicNodes = extra.IllegalAtomicNodes
		if extra.Debug != nil {
			extra.Debug.SubIntentions = node.Debug.SubIntentions
			node.Debug = extra.Debug
		}
	}
	return node
}

func fallbackSubIntent(norm string) models.SubIntent {
	return models.SubIntent{
		Intent: norm,
		Slots: map[string]any{
			models.SlotSourceText:     norm,
			models.SlotNormalizedText: norm,
		},
		Raw: map[string]any{"fallback": true},
	}
}

// reserveSlots copies candidate slots and stamps the provenance keys.
func reserveSlots(slots map[string]any, norm string) map[string]any {
	out := make(map[string]any, len(slots)+2)
	for k, v := range slots {
		out[k] = v
	}
	if _, ok := out[models.SlotSourceText]; !ok {
		out[models.SlotSourceText] = norm
	}
	if _, ok := out[models.SlotNormalizedText]; !ok {
		out[models.SlotNormalizedText] = norm
	}
	return out
}

// charOverlap is a cheap character-set Jaccard ratio used to detect
// when the extractor has abstracted a sub-intent away from the
// original text.
func charOverlap(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0.0
	}

	setA := make(map[rune]bool)
	for _, r := range a {
		setA[r] = true
	}
	setB := make(map[rune]bool)
	for _, r := range b {
		setB[r] = true
	}

	inter := 0
	for r := range setA {
		if setB[r] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union < 1 {
		union = 1
	}
	return float64(inter) / float64(union)
}

func allowedActionNames(allowed map[string]string) []string {
	seen := make(map[string]bool)
	var names []string
	for sig := range allowed {
		name := extractActionName(sig)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func subIntentTexts(subs []models.SubIntent) []string {
	texts := make([]string, len(subs))
	for i, s := range subs {
		texts[i] = s.Intent
	}
	return texts
}
