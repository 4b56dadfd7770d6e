package intent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/planpilot/planpilot/pkg/models"
)

// Per-hit contribution of an alias phrase found in the normalized text.
const aliasHitWeight = 0.25

// Evidence weights: required parameters count double toward the
// aggregate parameter score.
const (
	requiredParamWeight = 2.0
	optionalParamWeight = 1.0
)

// Flat scores per parameter type once a value is present.
const (
	enumMatchScore   = 1.0
	stringScore      = 0.8
	numberScore      = 0.7
	unknownTypeScore = 0.5
)

// AliasScore counts alias phrases present in the normalized text and
// converts the hit count to a capped score.
func AliasScore(aliases []string, normalizedText string) float64 {
	hits := 0
	for _, alias := range aliases {
		a := strings.ToLower(strings.TrimSpace(alias))
		if a == "" {
			continue
		}
		if strings.Contains(normalizedText, a) {
			hits++
		}
	}
	score := float64(hits) * aliasHitWeight
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// ScoreParams evaluates extracted slots against an action's parameter
// schema. The result is a weighted fillability score in [0,1] plus
// per-parameter evidence and the bindings that would be passed to the
// action.
//
// A missing or blank required parameter short-circuits: the action is
// not fillable and scores 0 regardless of the other parameters.
func ScoreParams(slots map[string]any, specs []models.ParameterSpec, profile *Profile, enumMismatchScore float64) (bool, map[string]any, float64, []models.ParamEvidence) {
	evidence := make([]models.ParamEvidence, 0, len(specs))
	bindings := make(map[string]any)

	// Required gate first: every required parameter must resolve to a
	// non-blank value before any scoring happens.
	for _, spec := range specs {
		if !spec.Required {
			continue
		}
		v, ok := profile.SlotValue(slots, spec.Key)
		if !ok || isBlank(v) {
			evidence = append(evidence, models.ParamEvidence{
				Param:    spec.Key,
				Type:     spec.Type,
				Required: true,
				Filled:   false,
				Score:    0.0,
				Reason:   "required_missing",
			})
			return false, map[string]any{}, 0.0, evidence
		}
	}

	var weightedSum, totalWeight float64

	for _, spec := range specs {
		weight := optionalParamWeight
		if spec.Required {
			weight = requiredParamWeight
		}

		v, ok := profile.SlotValue(slots, spec.Key)
		if !ok || isBlank(v) {
			// Required params were already gated; only optionals reach
			// here unresolved.
			evidence = append(evidence, models.ParamEvidence{
				Param:    spec.Key,
				Type:     spec.Type,
				Required: spec.Required,
				Filled:   false,
				Score:    0.0,
				Reason:   "optional_missing",
			})
			continue
		}

		score, binding, reason := scoreValue(v, spec, profile, enumMismatchScore)
		bindings[spec.Key] = binding
		evidence = append(evidence, models.ParamEvidence{
			Param:    spec.Key,
			Type:     spec.Type,
			Required: spec.Required,
			Filled:   true,
			Value:    binding,
			Score:    score,
			Reason:   reason,
		})

		weightedSum += weight * score
		totalWeight += weight
	}

	paramScore := 0.0
	if totalWeight > 0 {
		paramScore = weightedSum / totalWeight
	}

	return true, bindings, paramScore, evidence
}

// scoreValue rates a single resolved slot value against its spec.
func scoreValue(v any, spec models.ParameterSpec, profile *Profile, enumMismatchScore float64) (float64, any, string) {
	switch spec.Type {
	case models.ParamTypeEnum:
		norm := strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
		mapped := profile.MapEnumAlias(spec.Key, norm)
		for _, allowed := range spec.EnumValues {
			if strings.EqualFold(mapped, allowed) {
				return enumMatchScore, mapped, "enum_match"
			}
		}
		return enumMismatchScore, v, "enum_mismatch"

	case models.ParamTypeString:
		s := fmt.Sprint(v)
		if strings.TrimSpace(s) == "" {
			return 0.0, v, "string_empty"
		}
		return stringScore, v, "string_present"

	case models.ParamTypeInteger, "int", models.ParamTypeNumber, "float":
		if _, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(v)), 64); err != nil {
			return 0.0, v, "number_parse_fail"
		}
		return numberScore, v, "number_parse_ok"

	default:
		return unknownTypeScore, v, "unknown_type:" + spec.Type
	}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
