package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/planpilot/planpilot/internal/db"
	"github.com/planpilot/planpilot/internal/mocks"
	"github.com/planpilot/planpilot/pkg/models"
)

func testStore(t *testing.T, embedder *mocks.MockEmbedder) *Store {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return NewStore(database, embedder)
}

func seedActions(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	err := s.ImportAction(ctx,
		models.ActionDefinition{Name: "BookStand", Description: "Book a stand at a venue"},
		[]models.ParameterSpec{
			{Key: "venue", Type: models.ParamTypeString, Required: true},
			{Key: "stand_id", Type: models.ParamTypeString, Required: true},
			{Key: "size", Type: models.ParamTypeEnum, EnumValues: []string{"small", "large"}},
		})
	if err != nil {
		t.Fatalf("import BookStand: %v", err)
	}

	err = s.ImportAction(ctx,
		models.ActionDefinition{Name: "SendMail", Description: "Send an email"},
		[]models.ParameterSpec{
			{Key: "to", Type: models.ParamTypeString, Required: true},
		})
	if err != nil {
		t.Fatalf("import SendMail: %v", err)
	}
}

func fixtureEmbedder() *mocks.MockEmbedder {
	return mocks.StaticEmbedder(map[string][]float32{
		"BookStand: Book a stand at a venue": {1, 0, 0},
		"SendMail: Send an email":            {0, 1, 0},
		"book a stand":                       {0.95, 0.05, 0},
		"send mail":                          {0.05, 0.95, 0},
	})
}

func TestSimilaritySearch(t *testing.T) {
	s := testStore(t, fixtureEmbedder())
	seedActions(t, s)

	ctx := context.Background()
	query, _ := s.embedder.Embed(ctx, "book a stand")

	hits, err := s.SimilaritySearch(ctx, query, 10, 0.5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit above 0.5, got %d: %v", len(hits), hits)
	}
	if hits[0].Name != "BookStand" {
		t.Errorf("hit = %q", hits[0].Name)
	}
	if hits[0].Description != "Book a stand at a venue" {
		t.Errorf("description = %q", hits[0].Description)
	}
	if hits[0].Score <= 0.9 {
		t.Errorf("score = %v, expected near 1", hits[0].Score)
	}
}

func TestSimilaritySearchTopK(t *testing.T) {
	s := testStore(t, fixtureEmbedder())
	seedActions(t, s)

	hits, err := s.SimilaritySearch(context.Background(), []float32{1, 1, 0}, 1, 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("topK=1 should cap results, got %d", len(hits))
	}
}

func TestSimilaritySearchDimensionMismatch(t *testing.T) {
	s := testStore(t, fixtureEmbedder())
	seedActions(t, s)

	_, err := s.SimilaritySearch(context.Background(), []float32{1, 0, 0, 0, 0}, 10, 0)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearchRequiresLoad(t *testing.T) {
	s := testStore(t, fixtureEmbedder())
	if _, err := s.SimilaritySearch(context.Background(), []float32{1, 0, 0}, 10, 0); err == nil {
		t.Fatal("expected error before Load")
	}
}

func TestLoadReadsPersistedEmbeddings(t *testing.T) {
	emb := fixtureEmbedder()
	database, err := db.New(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	first := NewStore(database, emb)
	seedActions(t, first)

	// A fresh store over the same database sees the embeddings without
	// re-computing them.
	second := NewStore(database, emb)
	if err := second.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	query, _ := emb.Embed(context.Background(), "send mail")
	hits, err := second.SimilaritySearch(context.Background(), query, 10, 0.5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Name != "SendMail" {
		t.Errorf("hits = %v", hits)
	}
}

func TestParameterSpecsOrderAndEnums(t *testing.T) {
	s := testStore(t, fixtureEmbedder())
	seedActions(t, s)

	specs, err := s.ParameterSpecs(context.Background(), "BookStand")
	if err != nil {
		t.Fatalf("params failed: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("expected 3 params, got %d", len(specs))
	}
	if specs[0].Key != "venue" || specs[1].Key != "stand_id" || specs[2].Key != "size" {
		t.Errorf("declaration order not preserved: %v", specs)
	}
	if !specs[0].Required || specs[2].Required {
		t.Errorf("required flags wrong: %v", specs)
	}
	if len(specs[2].EnumValues) != 2 || specs[2].EnumValues[0] != "small" {
		t.Errorf("enum values = %v", specs[2].EnumValues)
	}
}

func TestOrderedParamKeys(t *testing.T) {
	s := testStore(t, fixtureEmbedder())
	seedActions(t, s)

	keys, err := s.OrderedParamKeys(context.Background(), "BookStand")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	want := []string{"venue", "stand_id", "size"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestImportActionUpsert(t *testing.T) {
	s := testStore(t, fixtureEmbedder())
	seedActions(t, s)
	ctx := context.Background()

	// Re-import with a changed schema replaces, not duplicates.
	err := s.ImportAction(ctx,
		models.ActionDefinition{Name: "SendMail", Description: "Send an email"},
		[]models.ParameterSpec{
			{Key: "to", Type: models.ParamTypeString, Required: true},
			{Key: "subject", Type: models.ParamTypeString},
		})
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}

	n, err := s.ActionCount(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("action count = %d, want 2", n)
	}

	specs, _ := s.ParameterSpecs(ctx, "SendMail")
	if len(specs) != 2 {
		t.Errorf("expected replaced schema with 2 params, got %v", specs)
	}
}

func TestReindexEmbeddings(t *testing.T) {
	s := testStore(t, fixtureEmbedder())
	seedActions(t, s)
	ctx := context.Background()

	embedCallsBefore := len(s.embedder.(*mocks.MockEmbedder).Calls)
	if err := s.ReindexEmbeddings(ctx); err != nil {
		t.Fatalf("reindex failed: %v", err)
	}
	embedCallsAfter := len(s.embedder.(*mocks.MockEmbedder).Calls)
	if embedCallsAfter-embedCallsBefore != 2 {
		t.Errorf("expected one embed per action, got %d", embedCallsAfter-embedCallsBefore)
	}

	// Search still works after reindex.
	query, _ := s.embedder.Embed(ctx, "book a stand")
	hits, err := s.SimilaritySearch(ctx, query, 10, 0.5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Name != "BookStand" {
		t.Errorf("hits = %v", hits)
	}
}
