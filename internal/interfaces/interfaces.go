package interfaces

import (
	"context"

	"github.com/planpilot/planpilot/pkg/models"
)

// Embedder generates embedding vectors for text. Dimensionality must be
// stable for the lifetime of a catalog instance.
type Embedder interface {
	// Embed generates an embedding vector for the given text
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the dimensionality of produced vectors
	Dimensions() int
}

// Catalog is the read path of the action catalog.
type Catalog interface {
	// SimilaritySearch returns the actions most similar to the query vector,
	// limited to topK and filtered at minScore
	SimilaritySearch(ctx context.Context, vector []float32, topK int, minScore float64) ([]models.ActionHit, error)
	// ParameterSpecs returns the declared parameters of an action
	ParameterSpecs(ctx context.Context, actionName string) ([]models.ParameterSpec, error)
	// OrderedParamKeys returns parameter keys in declaration order,
	// used to render action signatures
	OrderedParamKeys(ctx context.Context, actionName string) ([]string, error)
}

// SubIntentExtractor splits free text into one level of sub-intent candidates
type SubIntentExtractor interface {
	// Extract returns ordered sub-intent candidates for the normalized text
	Extract(ctx context.Context, text string) ([]models.IntentCandidate, error)
}

// Decomposer breaks an intent into one level of sub-intents using only the
// supplied allowed actions (signature -> description)
type Decomposer interface {
	Decompose(ctx context.Context, intent string, allowedActions map[string]string) (*models.Decomposition, error)
}

// ScopeChecker judges whether an intent is coverable by the allowed actions
type ScopeChecker interface {
	Check(ctx context.Context, intent string, actions []models.ActionBrief) (models.ScopeDecision, error)
}
