package ml

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineScaleInvariant(t *testing.T) {
	a := []float32{0.3, 0.4, 0.5}
	b := []float32{0.6, 0.8, 1.0}
	got := Cosine(a, b)
	if math.Abs(got-1.0) > 1e-6 {
		t.Errorf("scaled copies should have similarity 1, got %v", got)
	}
}

func TestNormalizeL2(t *testing.T) {
	vec := normalizeL2([]float32{3, 4})
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("normalized = %v", vec)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("magnitude = %v, want 1", math.Sqrt(norm))
	}
}

func TestNormalizeL2ZeroVector(t *testing.T) {
	vec := normalizeL2([]float32{0, 0, 0})
	for _, v := range vec {
		if v != 0 {
			t.Errorf("zero vector should pass through: %v", vec)
		}
	}
}

func writeVocab(t *testing.T, tokens []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte(strings.Join(tokens, "\n")), 0644); err != nil {
		t.Fatalf("failed to write vocab: %v", err)
	}
	return path
}

func testVocab() []string {
	return []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "book", "a", "stand", "##ing", "plan"}
}

func TestLoadWordPieceTokenizer(t *testing.T) {
	tok, err := LoadWordPieceTokenizer(writeVocab(t, testVocab()), 16)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if tok.clsTokenID != 2 || tok.sepTokenID != 3 {
		t.Errorf("special token ids: cls=%d sep=%d", tok.clsTokenID, tok.sepTokenID)
	}
}

func TestLoadWordPieceTokenizerMissingSpecials(t *testing.T) {
	if _, err := LoadWordPieceTokenizer(writeVocab(t, []string{"just", "words"}), 16); err == nil {
		t.Fatal("expected error for vocab without special tokens")
	}
}

func TestEncode(t *testing.T) {
	tok, err := LoadWordPieceTokenizer(writeVocab(t, testVocab()), 16)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	inputIDs, attentionMask, tokenTypeIDs := tok.Encode("book a stand")

	if len(inputIDs) != 16 || len(attentionMask) != 16 || len(tokenTypeIDs) != 16 {
		t.Fatalf("lengths = %d %d %d", len(inputIDs), len(attentionMask), len(tokenTypeIDs))
	}

	// [CLS] book a stand [SEP] padding...
	want := []int32{2, 4, 5, 6, 3}
	for i, id := range want {
		if inputIDs[i] != id {
			t.Errorf("inputIDs[%d] = %d, want %d", i, inputIDs[i], id)
		}
		if attentionMask[i] != 1 {
			t.Errorf("attentionMask[%d] = %d, want 1", i, attentionMask[i])
		}
	}
	if attentionMask[5] != 0 {
		t.Error("padding should not be attended")
	}
}

func TestEncodeWordPieceSubwords(t *testing.T) {
	tok, err := LoadWordPieceTokenizer(writeVocab(t, testVocab()), 16)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	tokens := tok.tokenize("standing")
	if len(tokens) != 2 || tokens[0] != "stand" || tokens[1] != "##ing" {
		t.Errorf("tokens = %v", tokens)
	}
}

func TestEncodeUnknownToken(t *testing.T) {
	tok, err := LoadWordPieceTokenizer(writeVocab(t, testVocab()), 16)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	inputIDs, _, _ := tok.Encode("xyzzy")
	foundUnk := false
	for _, id := range inputIDs {
		if id == tok.unkTokenID {
			foundUnk = true
		}
	}
	if !foundUnk {
		t.Errorf("unknown word should map to [UNK]: %v", inputIDs[:6])
	}
}

func TestEncodeTruncates(t *testing.T) {
	tok, err := LoadWordPieceTokenizer(writeVocab(t, testVocab()), 6)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	inputIDs, attentionMask, _ := tok.Encode("book a stand book a stand book a stand")
	if len(inputIDs) != 6 {
		t.Fatalf("length = %d", len(inputIDs))
	}
	if inputIDs[0] != tok.clsTokenID || inputIDs[5] != tok.sepTokenID {
		t.Errorf("truncated sequence must keep [CLS]/[SEP]: %v", inputIDs)
	}
	for i := range attentionMask {
		if attentionMask[i] != 1 {
			t.Errorf("fully-packed sequence should attend everywhere: %v", attentionMask)
		}
	}
}
