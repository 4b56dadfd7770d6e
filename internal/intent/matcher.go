package intent

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/planpilot/planpilot/internal/config"
	"github.com/planpilot/planpilot/internal/interfaces"
	"github.com/planpilot/planpilot/pkg/models"
)

// Matcher scores catalog actions against a single sub-intention by
// blending vector similarity, alias hits, and parameter fillability.
type Matcher struct {
	catalog  interfaces.Catalog
	embedder interfaces.Embedder
	profile  *Profile
	opts     config.MatchingConfig
}

// NewMatcher creates a matcher over the given catalog and embedder.
func NewMatcher(catalog interfaces.Catalog, embedder interfaces.Embedder, profile *Profile, opts config.MatchingConfig) *Matcher {
	return &Matcher{
		catalog:  catalog,
		embedder: embedder,
		profile:  profile,
		opts:     opts,
	}
}

// Match returns scored candidates for the intention, sorted by final
// score descending. Candidates that fail the parameter gate or score
// thresholds are excluded, with the rejection recorded in their place
// only via the trace evidence of survivors.
//
// Embedding and catalog search failures abort the match; a parameter
// schema lookup failure only disables the gate for that candidate.
func (m *Matcher) Match(ctx context.Context, intention string, slots map[string]any) ([]models.ActionMatch, error) {
	normalized := m.profile.Normalize(intention)

	vector, err := m.embedder.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to embed intention: %w", err)
	}

	hits, err := m.catalog.SimilaritySearch(ctx, vector, m.opts.TopK, m.opts.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	// Nothing above the floor: optionally widen the net so alias and
	// parameter evidence can still surface a usable action.
	if len(hits) == 0 && m.opts.AllowFallback {
		hits, err = m.catalog.SimilaritySearch(ctx, vector, m.opts.TopK, 0)
		if err != nil {
			return nil, fmt.Errorf("fallback search failed: %w", err)
		}
	}

	effective := effectiveSlots(slots)
	slotsUsed := len(effective) > 0

	matches := make([]models.ActionMatch, 0, len(hits))

	for _, hit := range hits {
		aliasScore := AliasScore(m.profile.AliasesFor(hit.Name), normalized)
		baseScore := (1.0-m.opts.AliasWeight)*hit.Score + m.opts.AliasWeight*aliasScore

		fillable := true
		bindings := map[string]any{}
		paramScore := 0.0
		schemaAvailable := false
		var paramEvidence []models.ParamEvidence

		// Parameter scoring only applies when the caller supplied
		// structured slots; bare-text matching stays schema-free.
		if slotsUsed {
			specs, specErr := m.catalog.ParameterSpecs(ctx, hit.Name)
			schemaAvailable = specErr == nil && len(specs) > 0
			if specErr != nil {
				log.Printf("parameter schema unavailable for %s: %v", hit.Name, specErr)
			}
			if schemaAvailable {
				fillable, bindings, paramScore, paramEvidence = ScoreParams(effective, specs, m.profile, m.opts.EnumMismatchScore)
			} else {
				paramEvidence = []models.ParamEvidence{{Reason: "params_schema_unavailable"}}
			}
		}

		gateActive := slotsUsed && schemaAvailable && m.opts.EnableParamGate

		match := models.ActionMatch{
			Action: models.ActionDefinition{
				Name:        hit.Name,
				Description: hit.Description,
			},
			BaseScore:  baseScore,
			ParamScore: paramScore,
			Fillable:   fillable,
			Bindings:   bindings,
			Thresholds: models.Thresholds{
				MinParamScore: m.opts.MinParamScore,
				MinFinalScore: m.opts.MinFinalScore,
			},
			Evidence: models.MatchEvidence{
				MatchedText:       intention,
				NormalizedIntent:  normalized,
				VectorScore:       hit.Score,
				AliasScore:        aliasScore,
				AliasWeight:       m.opts.AliasWeight,
				SlotsUsed:         slotsUsed,
				EffectiveSlotKeys: sortedKeys(effective),
				ParamEvidence:     paramEvidence,
				ParamGateActive:   gateActive,
				SchemaAvailable:   schemaAvailable,
			},
		}

		match.FinalScore = m.opts.BaseWeight*baseScore + m.opts.ParamWeight*paramScore

		// Without effective slots, a schema, and gating enabled the
		// candidate is accepted on its base ranking alone.
		if gateActive {
			if !fillable {
				match.RejectReason = "required_params_missing"
			} else if paramScore < m.opts.MinParamScore {
				match.RejectReason = "param_score_below_threshold"
			} else if match.FinalScore < m.opts.MinFinalScore {
				match.RejectReason = "final_score_below_threshold"
			}
		}

		if match.RejectReason != "" {
			continue
		}

		matches = append(matches, match)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].FinalScore > matches[j].FinalScore
	})

	return matches, nil
}

// effectiveSlots drops provenance keys so they never influence scoring.
func effectiveSlots(slots map[string]any) map[string]any {
	sub := models.SubIntent{Slots: slots}
	return sub.EffectiveSlots()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
