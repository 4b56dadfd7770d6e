package intent

import (
	"regexp"
	"strings"
)

// SynonymRule rewrites phrasing variants to a canonical form before
// matching. Patterns are compiled case-insensitive.
type SynonymRule struct {
	Pattern string
	Replace string

	re *regexp.Regexp
}

// Profile carries the domain vocabulary used during normalization and
// scoring: phrase rewrites, per-action alias lists, alternate slot keys
// for parameters, and enum value aliases.
type Profile struct {
	Name          string
	SynonymRules  []SynonymRule
	ActionAliases map[string][]string
	SlotAliases   map[string][]string
	EnumAliases   map[string]map[string]string
}

// NewProfile creates an empty profile.
func NewProfile(name string) *Profile {
	return &Profile{
		Name:          name,
		ActionAliases: make(map[string][]string),
		SlotAliases:   make(map[string][]string),
		EnumAliases:   make(map[string]map[string]string),
	}
}

// AddSynonymRule compiles and registers a rewrite rule. Invalid patterns
// are skipped so a bad seed entry cannot take down the pipeline.
func (p *Profile) AddSynonymRule(pattern, replace string) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return
	}
	p.SynonymRules = append(p.SynonymRules, SynonymRule{
		Pattern: pattern,
		Replace: replace,
		re:      re,
	})
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize lowercases input, collapses whitespace, and applies the
// profile's synonym rewrites in registration order.
func (p *Profile) Normalize(input string) string {
	text := strings.ToLower(strings.TrimSpace(input))
	text = whitespaceRe.ReplaceAllString(text, " ")

	for _, rule := range p.SynonymRules {
		text = rule.re.ReplaceAllString(text, rule.Replace)
	}

	return strings.TrimSpace(text)
}

// AliasesFor returns the alias phrases registered for an action.
func (p *Profile) AliasesFor(action string) []string {
	return p.ActionAliases[action]
}

// SlotValue resolves a parameter key against the extracted slots,
// checking the direct key first and then any registered alternates.
func (p *Profile) SlotValue(slots map[string]any, paramKey string) (any, bool) {
	if v, ok := slots[paramKey]; ok {
		return v, true
	}
	for _, alt := range p.SlotAliases[paramKey] {
		if v, ok := slots[alt]; ok {
			return v, true
		}
	}
	return nil, false
}

// MapEnumAlias translates a normalized slot value to its canonical enum
// spelling, if the profile knows one. Returns the input unchanged
// otherwise.
func (p *Profile) MapEnumAlias(paramKey, normValue string) string {
	if aliases, ok := p.EnumAliases[paramKey]; ok {
		if canonical, ok := aliases[normValue]; ok {
			return canonical
		}
	}
	return normValue
}
