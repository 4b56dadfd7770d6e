// Package mocks provides hand-rolled test doubles for the pipeline's
// external collaborators.
package mocks

import (
	"context"
	"fmt"

	"github.com/planpilot/planpilot/internal/interfaces"
	"github.com/planpilot/planpilot/pkg/models"
)

// MockEmbedder implements interfaces.Embedder.
type MockEmbedder struct {
	EmbedFunc      func(ctx context.Context, text string) ([]float32, error)
	DimensionsFunc func() int
	Calls          []string
}

var _ interfaces.Embedder = (*MockEmbedder)(nil)

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.Calls = append(m.Calls, text)
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{1, 0, 0}, nil
}

func (m *MockEmbedder) Dimensions() int {
	if m.DimensionsFunc != nil {
		return m.DimensionsFunc()
	}
	return 3
}

// MockCatalog implements interfaces.Catalog.
type MockCatalog struct {
	SimilaritySearchFunc func(ctx context.Context, vector []float32, topK int, minScore float64) ([]models.ActionHit, error)
	ParameterSpecsFunc   func(ctx context.Context, actionName string) ([]models.ParameterSpec, error)
	OrderedParamKeysFunc func(ctx context.Context, actionName string) ([]string, error)
	SearchCalls          []float64 // minScore of each search, records fallback re-searches
}

var _ interfaces.Catalog = (*MockCatalog)(nil)

func (m *MockCatalog) SimilaritySearch(ctx context.Context, vector []float32, topK int, minScore float64) ([]models.ActionHit, error) {
	m.SearchCalls = append(m.SearchCalls, minScore)
	if m.SimilaritySearchFunc != nil {
		return m.SimilaritySearchFunc(ctx, vector, topK, minScore)
	}
	return nil, nil
}

func (m *MockCatalog) ParameterSpecs(ctx context.Context, actionName string) ([]models.ParameterSpec, error) {
	if m.ParameterSpecsFunc != nil {
		return m.ParameterSpecsFunc(ctx, actionName)
	}
	return nil, nil
}

func (m *MockCatalog) OrderedParamKeys(ctx context.Context, actionName string) ([]string, error) {
	if m.OrderedParamKeysFunc != nil {
		return m.OrderedParamKeysFunc(ctx, actionName)
	}
	specs, err := m.ParameterSpecs(ctx, actionName)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(specs))
	for i, s := range specs {
		keys[i] = s.Key
	}
	return keys, nil
}

// MockExtractor implements interfaces.SubIntentExtractor.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, text string) ([]models.IntentCandidate, error)
}

var _ interfaces.SubIntentExtractor = (*MockExtractor)(nil)

func (m *MockExtractor) Extract(ctx context.Context, text string) ([]models.IntentCandidate, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, text)
	}
	return []models.IntentCandidate{{Name: "all", Description: text}}, nil
}

// MockDecomposer implements interfaces.Decomposer.
type MockDecomposer struct {
	DecomposeFunc func(ctx context.Context, intent string, allowedActions map[string]string) (*models.Decomposition, error)
	CallCount     int
}

var _ interfaces.Decomposer = (*MockDecomposer)(nil)

func (m *MockDecomposer) Decompose(ctx context.Context, intent string, allowedActions map[string]string) (*models.Decomposition, error) {
	m.CallCount++
	if m.DecomposeFunc != nil {
		return m.DecomposeFunc(ctx, intent, allowedActions)
	}
	return &models.Decomposition{ParentIntent: intent}, nil
}

// MockScopeChecker implements interfaces.ScopeChecker.
type MockScopeChecker struct {
	CheckFunc func(ctx context.Context, intent string, actions []models.ActionBrief) (models.ScopeDecision, error)
}

var _ interfaces.ScopeChecker = (*MockScopeChecker)(nil)

func (m *MockScopeChecker) Check(ctx context.Context, intent string, actions []models.ActionBrief) (models.ScopeDecision, error) {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, intent, actions)
	}
	return models.ScopeDecision{CanExecute: true, Reason: "ok"}, nil
}

// StaticEmbedder returns a fixed vector per known text and errors on
// anything else. Useful for catalog tests with deterministic
// similarity.
func StaticEmbedder(vectors map[string][]float32) *MockEmbedder {
	dims := 0
	for _, v := range vectors {
		dims = len(v)
		break
	}
	return &MockEmbedder{
		EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
			if v, ok := vectors[text]; ok {
				return v, nil
			}
			return nil, fmt.Errorf("no vector for %q", text)
		},
		DimensionsFunc: func() int { return dims },
	}
}
