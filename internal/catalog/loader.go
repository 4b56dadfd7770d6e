package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/planpilot/planpilot/internal/intent"
	"github.com/planpilot/planpilot/pkg/models"
)

// SeedFile is the YAML document that populates a catalog: the domain
// profile plus the action definitions with their parameter schemas.
type SeedFile struct {
	Profile ProfileSeed  `yaml:"profile"`
	Actions []ActionSeed `yaml:"actions"`
}

// ProfileSeed is the serialized form of a domain profile.
type ProfileSeed struct {
	Name     string `yaml:"name"`
	Synonyms []struct {
		Pattern string `yaml:"pattern"`
		Replace string `yaml:"replace"`
	} `yaml:"synonyms,omitempty"`
	SlotAliases map[string][]string          `yaml:"slot_aliases,omitempty"`
	EnumAliases map[string]map[string]string `yaml:"enum_aliases,omitempty"`
}

// ActionSeed is one action entry in a seed file.
type ActionSeed struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Aliases     []string               `yaml:"aliases,omitempty"`
	Params      []models.ParameterSpec `yaml:"params,omitempty"`
}

// LoadSeedFile parses a YAML seed file from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i, a := range seed.Actions {
		if a.Name == "" {
			return nil, fmt.Errorf("seed action %d has no name", i)
		}
	}

	return &seed, nil
}

// BuildProfile materializes the seed's profile, including the per-action
// alias lists carried on the action entries.
func (f *SeedFile) BuildProfile() *intent.Profile {
	p := intent.NewProfile(f.Profile.Name)
	for _, s := range f.Profile.Synonyms {
		p.AddSynonymRule(s.Pattern, s.Replace)
	}
	for key, alts := range f.Profile.SlotAliases {
		p.SlotAliases[key] = alts
	}
	for key, aliases := range f.Profile.EnumAliases {
		p.EnumAliases[key] = aliases
	}
	for _, a := range f.Actions {
		if len(a.Aliases) > 0 {
			p.ActionAliases[a.Name] = a.Aliases
		}
	}
	return p
}

// ImportSeed loads every action in the seed file into the store.
func (s *Store) ImportSeed(ctx context.Context, seed *SeedFile) (int, error) {
	imported := 0
	for _, a := range seed.Actions {
		def := models.ActionDefinition{
			Name:        a.Name,
			Description: a.Description,
		}
		if err := s.ImportAction(ctx, def, a.Params); err != nil {
			return imported, fmt.Errorf("failed to import %s: %w", a.Name, err)
		}
		imported++
	}
	return imported, nil
}
