package models

import "strings"

// ActionDefinition is the immutable identity of a catalog action.
// Instances are created from catalog search hits and never mutated.
type ActionDefinition struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Parameter types understood by the scoring model. Any other value is
// treated as "unknown" and scored conservatively.
const (
	ParamTypeEnum    = "enum"
	ParamTypeString  = "string"
	ParamTypeInteger = "integer"
	ParamTypeNumber  = "number"
	ParamTypeUnknown = "unknown"
)

// ParameterSpec describes one declared parameter of an action.
type ParameterSpec struct {
	Key        string   `yaml:"key" json:"key"`
	Type       string   `yaml:"type" json:"type"`
	Required   bool     `yaml:"required" json:"required"`
	EnumValues []string `yaml:"enum,omitempty" json:"enum,omitempty"`
	Example    string   `yaml:"example,omitempty" json:"example,omitempty"`
}

// ActionHit is a single row from a catalog similarity search.
type ActionHit struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ID          string  `json:"id,omitempty"`
	Score       float64 `json:"score"`
}

// ParamEvidence records one parameter scoring decision for debugging.
type ParamEvidence struct {
	Param    string  `json:"param"`
	Type     string  `json:"type,omitempty"`
	Required bool    `json:"required"`
	Filled   bool    `json:"filled"`
	Value    any     `json:"value,omitempty"`
	Score    float64 `json:"score"`
	Reason   string  `json:"reason"`
}

// Thresholds are the gate values a match was accepted or rejected under.
type Thresholds struct {
	MinParamScore float64 `json:"min_param_score"`
	MinFinalScore float64 `json:"min_final_score"`
}

// MatchEvidence is the full diagnostic payload attached to a match.
type MatchEvidence struct {
	MatchedText       string          `json:"matched_text"`
	NormalizedIntent  string          `json:"normalized_intent"`
	VectorScore       float64         `json:"vector_score"`
	AliasScore        float64         `json:"alias_score"`
	AliasWeight       float64         `json:"alias_weight"`
	SlotsUsed         bool            `json:"slots_used"`
	EffectiveSlotKeys []string        `json:"effective_slot_keys,omitempty"`
	ParamEvidence     []ParamEvidence `json:"param_evidence,omitempty"`
	ParamGateActive   bool            `json:"param_gate_active"`
	SchemaAvailable   bool            `json:"schema_available"`
}

// ActionMatch is a scored candidate for one (sub-intent, action) pair.
// FinalScore is the canonical score field: exactly
// wBase*BaseScore + wParam*ParamScore for the weights the matcher ran with.
type ActionMatch struct {
	Action       ActionDefinition `json:"action"`
	BaseScore    float64          `json:"base_score"`
	ParamScore   float64          `json:"param_score"`
	FinalScore   float64          `json:"final_score"`
	Fillable     bool             `json:"fillable"`
	Bindings     map[string]any   `json:"bindings,omitempty"`
	Thresholds   Thresholds       `json:"thresholds"`
	RejectReason string           `json:"reject_reason,omitempty"`
	Evidence     MatchEvidence    `json:"evidence"`
}

// slot keys starting with this marker carry provenance, not matchable data
const internalSlotPrefix = "_"

// Reserved slot keys injected during sub-intent extraction.
const (
	SlotSourceText     = "_source_text"
	SlotNormalizedText = "_normalized_text"
)

// SubIntent is one decomposition unit of a user request.
type SubIntent struct {
	Intent string         `json:"intent"`
	Slots  map[string]any `json:"slots,omitempty"`
	Raw    map[string]any `json:"raw,omitempty"`
}

// EffectiveSlots returns the slots usable for parameter matching, i.e.
// every slot whose key does not start with the internal marker prefix.
func (s SubIntent) EffectiveSlots() map[string]any {
	out := make(map[string]any, len(s.Slots))
	for k, v := range s.Slots {
		if k == "" || strings.HasPrefix(k, internalSlotPrefix) {
			continue
		}
		out[k] = v
	}
	return out
}

// IntentCandidate is one sub-intent candidate from the extraction collaborator.
type IntentCandidate struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Slots       map[string]any `json:"slots,omitempty"`
}

// ActionBrief is the name/description pair handed to the scope checker.
type ActionBrief struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ScopeDecision is the scope checker's verdict.
type ScopeDecision struct {
	CanExecute bool   `json:"can_execute"`
	Reason     string `json:"reason"`
}
