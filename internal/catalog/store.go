package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/planpilot/planpilot/internal/db"
	"github.com/planpilot/planpilot/internal/interfaces"
	"github.com/planpilot/planpilot/internal/ml"
	"github.com/planpilot/planpilot/pkg/models"
)

// ErrDimensionMismatch is returned when a query vector's dimensionality
// differs from the stored embeddings. The fix is a reindex with the
// current embedding model.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch: reindex the catalog")

// Store is the sqlite-backed action catalog. Embeddings are persisted
// as JSON float32 blobs and cached in memory for similarity search.
type Store struct {
	db       *db.DB
	embedder interfaces.Embedder

	mu     sync.RWMutex
	embeds map[string][]float32
	dims   int
	loaded bool
}

var _ interfaces.Catalog = (*Store)(nil)

// NewStore creates a catalog store over the given database.
func NewStore(database *db.DB, embedder interfaces.Embedder) *Store {
	return &Store{
		db:       database,
		embedder: embedder,
		embeds:   make(map[string][]float32),
	}
}

// Load reads all persisted embeddings into the in-memory cache.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT action_name, embedding, dimensions FROM action_embeddings`)
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	embeds := make(map[string][]float32)
	dims := 0

	for rows.Next() {
		var name string
		var blob []byte
		var d int
		if err := rows.Scan(&name, &blob, &d); err != nil {
			return fmt.Errorf("failed to scan embedding row: %w", err)
		}

		var vec []float32
		if err := json.Unmarshal(blob, &vec); err != nil {
			return fmt.Errorf("corrupt embedding for %s: %w", name, err)
		}

		embeds[name] = vec
		if dims == 0 {
			dims = d
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.embeds = embeds
	s.dims = dims
	s.loaded = true
	return nil
}

// SimilaritySearch ranks cached actions by cosine similarity to the
// query vector, filtered at minScore and limited to topK.
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, topK int, minScore float64) ([]models.ActionHit, error) {
	s.mu.RLock()
	if !s.loaded {
		s.mu.RUnlock()
		return nil, fmt.Errorf("catalog not loaded")
	}
	if s.dims != 0 && len(vector) != s.dims {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(vector), s.dims)
	}

	type scored struct {
		name  string
		score float64
	}
	candidates := make([]scored, 0, len(s.embeds))
	for name, emb := range s.embeds {
		score := ml.Cosine(vector, emb)
		if score >= minScore {
			candidates = append(candidates, scored{name: name, score: score})
		}
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	hits := make([]models.ActionHit, 0, len(candidates))
	for _, c := range candidates {
		var description string
		err := s.db.Conn().QueryRowContext(ctx,
			`SELECT description FROM actions WHERE name = ?`, c.name).Scan(&description)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to read action %s: %w", c.name, err)
		}
		hits = append(hits, models.ActionHit{
			Name:        c.name,
			Description: description,
			Score:       c.score,
		})
	}

	return hits, nil
}

// ParameterSpecs returns the declared parameters of an action in
// declaration order.
func (s *Store) ParameterSpecs(ctx context.Context, actionName string) ([]models.ParameterSpec, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT key, type, required, enum_values, example
		 FROM action_params WHERE action_name = ? ORDER BY ord`, actionName)
	if err != nil {
		return nil, fmt.Errorf("failed to query params for %s: %w", actionName, err)
	}
	defer rows.Close()

	var specs []models.ParameterSpec
	for rows.Next() {
		var spec models.ParameterSpec
		var required int
		var enumValues, example sql.NullString
		if err := rows.Scan(&spec.Key, &spec.Type, &required, &enumValues, &example); err != nil {
			return nil, fmt.Errorf("failed to scan param row: %w", err)
		}
		spec.Required = required != 0
		if enumValues.Valid && enumValues.String != "" {
			for _, v := range strings.Split(enumValues.String, ",") {
				if v = strings.TrimSpace(v); v != "" {
					spec.EnumValues = append(spec.EnumValues, v)
				}
			}
		}
		spec.Example = example.String
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// OrderedParamKeys returns parameter keys in declaration order.
func (s *Store) OrderedParamKeys(ctx context.Context, actionName string) ([]string, error) {
	specs, err := s.ParameterSpecs(ctx, actionName)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(specs))
	for i, spec := range specs {
		keys[i] = spec.Key
	}
	return keys, nil
}

// ImportAction upserts an action definition and its parameters, and
// refreshes its embedding from name plus description.
func (s *Store) ImportAction(ctx context.Context, action models.ActionDefinition, params []models.ParameterSpec) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO actions (name, description, source, created_at, updated_at)
		VALUES (?, ?, 'seed', ?, ?)
		ON CONFLICT(name) DO UPDATE SET description = excluded.description, updated_at = excluded.updated_at
	`, action.Name, action.Description, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert action %s: %w", action.Name, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM action_params WHERE action_name = ?`, action.Name); err != nil {
		return fmt.Errorf("failed to clear params for %s: %w", action.Name, err)
	}
	for i, p := range params {
		required := 0
		if p.Required {
			required = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO action_params (action_name, key, type, required, enum_values, example, ord)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, action.Name, p.Key, p.Type, required, strings.Join(p.EnumValues, ","), p.Example, i)
		if err != nil {
			return fmt.Errorf("failed to insert param %s.%s: %w", action.Name, p.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit action %s: %w", action.Name, err)
	}

	return s.indexAction(ctx, action)
}

// indexAction computes and persists the embedding for one action, then
// updates the in-memory cache.
func (s *Store) indexAction(ctx context.Context, action models.ActionDefinition) error {
	text := action.Name
	if action.Description != "" {
		text += ": " + action.Description
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed action %s: %w", action.Name, err)
	}

	blob, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.Conn().ExecContext(ctx, `
		INSERT INTO action_embeddings (action_name, embedding, dimensions, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(action_name) DO UPDATE SET embedding = excluded.embedding, dimensions = excluded.dimensions, updated_at = excluded.updated_at
	`, action.Name, blob, len(vec), now)
	if err != nil {
		return fmt.Errorf("failed to store embedding for %s: %w", action.Name, err)
	}

	s.mu.Lock()
	s.embeds[action.Name] = vec
	s.dims = len(vec)
	s.loaded = true
	s.mu.Unlock()

	return nil
}

// ReindexEmbeddings recomputes every action's embedding with the
// current model. Run after a model change or on dimension mismatch.
// Idempotent: re-running with the same model rewrites identical rows.
func (s *Store) ReindexEmbeddings(ctx context.Context) error {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT name, description FROM actions`)
	if err != nil {
		return fmt.Errorf("failed to list actions: %w", err)
	}

	var actions []models.ActionDefinition
	for rows.Next() {
		var a models.ActionDefinition
		if err := rows.Scan(&a.Name, &a.Description); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, a := range actions {
		if err := s.indexAction(ctx, a); err != nil {
			return err
		}
	}

	return nil
}

// ActionCount returns the number of cataloged actions.
func (s *Store) ActionCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM actions`).Scan(&n)
	return n, err
}
