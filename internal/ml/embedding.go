package ml

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/planpilot/planpilot/internal/interfaces"
)

// EmbeddingEngine produces semantic embeddings with ONNX Runtime using the
// all-MiniLM-L6-v2 model (INT8 quantized, ~23MB). Output vectors are
// L2-normalized, so the dot product of two embeddings is their cosine
// similarity.
type EmbeddingEngine struct {
	session       *ort.AdvancedSession
	tokenizer     *WordPieceTokenizer
	modelPath     string
	tokenizerPath string
	maxSeqLen     int
	embeddingDim  int
	loaded        bool
	mu            sync.RWMutex
}

var _ interfaces.Embedder = (*EmbeddingEngine)(nil)

// NewEmbeddingEngine creates an engine for the model files in modelDir.
func NewEmbeddingEngine(modelDir string) *EmbeddingEngine {
	return &EmbeddingEngine{
		modelPath:     filepath.Join(modelDir, "model_quantized.onnx"),
		tokenizerPath: filepath.Join(modelDir, "vocab.txt"),
		maxSeqLen:     128,
		embeddingDim:  384, // all-MiniLM-L6-v2 dimension
	}
}

// Load initializes the ONNX Runtime session and tokenizer.
func (e *EmbeddingEngine) Load() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded {
		return nil
	}

	if _, err := os.Stat(e.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model not found at %s - run 'planpilot model download' first", e.modelPath)
	}

	tokenizer, err := LoadWordPieceTokenizer(e.tokenizerPath, e.maxSeqLen)
	if err != nil {
		return fmt.Errorf("failed to load tokenizer: %w", err)
	}
	e.tokenizer = tokenizer

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() { _ = options.Destroy() }()

	if err := options.SetIntraOpNumThreads(2); err != nil {
		return fmt.Errorf("failed to set threads: %w", err)
	}

	// all-MiniLM-L6-v2 inputs: input_ids, attention_mask, token_type_ids
	inputIDs, err := ort.NewTensor(ort.NewShape(1, int64(e.maxSeqLen)), make([]int64, e.maxSeqLen))
	if err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	attentionMask, err := ort.NewTensor(ort.NewShape(1, int64(e.maxSeqLen)), make([]int64, e.maxSeqLen))
	if err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	tokenTypeIDs, err := ort.NewTensor(ort.NewShape(1, int64(e.maxSeqLen)), make([]int64, e.maxSeqLen))
	if err != nil {
		return fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}

	output, err := ort.NewTensor(ort.NewShape(1, int64(e.embeddingDim)), make([]float32, e.embeddingDim))
	if err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		e.modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"sentence_embedding"},
		[]ort.ArbitraryTensor{inputIDs, attentionMask, tokenTypeIDs},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	e.session = session
	e.loaded = true

	return nil
}

// Embed generates an L2-normalized embedding vector for the given text.
func (e *EmbeddingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	if !e.loaded {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedding engine not loaded")
	}
	e.mu.RUnlock()

	inputIDsData, attentionMaskData, tokenTypeIDsData := e.tokenizer.Encode(text)

	inputIDsTensor, err := ort.NewTensor(ort.NewShape(1, int64(e.maxSeqLen)), int64Slice(inputIDsData))
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	attentionMaskTensor, err := ort.NewTensor(ort.NewShape(1, int64(e.maxSeqLen)), int64Slice(attentionMaskData))
	if err != nil {
		_ = inputIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	tokenTypeIDsTensor, err := ort.NewTensor(ort.NewShape(1, int64(e.maxSeqLen)), int64Slice(tokenTypeIDsData))
	if err != nil {
		_ = inputIDsTensor.Destroy()
		_ = attentionMaskTensor.Destroy()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}

	outputData := make([]float32, e.embeddingDim)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(e.embeddingDim)), outputData)
	if err != nil {
		_ = inputIDsTensor.Destroy()
		_ = attentionMaskTensor.Destroy()
		_ = tokenTypeIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	err = e.session.Run()
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	_ = inputIDsTensor.Destroy()
	_ = attentionMaskTensor.Destroy()
	_ = tokenTypeIDsTensor.Destroy()

	normalized := normalizeL2(outputTensor.GetData())
	_ = outputTensor.Destroy()

	return normalized, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *EmbeddingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *EmbeddingEngine) Dimensions() int {
	return e.embeddingDim
}

// IsLoaded returns whether the model is loaded.
func (e *EmbeddingEngine) IsLoaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

// Close releases ONNX Runtime resources.
func (e *EmbeddingEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		_ = e.session.Destroy()
		e.session = nil
	}
	e.loaded = false

	_ = ort.DestroyEnvironment()
	return nil
}

// Cosine computes the cosine similarity of two vectors. Returns 0 for
// mismatched lengths or zero-magnitude inputs.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// WordPieceTokenizer implements tokenization for BERT-style models
type WordPieceTokenizer struct {
	vocab      map[string]int32
	idToToken  map[int32]string
	unkTokenID int32
	padTokenID int32
	clsTokenID int32
	sepTokenID int32
	maxSeqLen  int
}

// LoadWordPieceTokenizer loads vocabulary from vocab.txt
func LoadWordPieceTokenizer(vocabPath string, maxSeqLen int) (*WordPieceTokenizer, error) {
	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab file: %w", err)
	}

	vocab := make(map[string]int32)
	idToToken := make(map[int32]string)

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		token := strings.TrimSpace(line)
		if token == "" {
			continue
		}
		vocab[token] = int32(i)
		idToToken[int32(i)] = token
	}

	unkID, ok := vocab["[UNK]"]
	if !ok {
		return nil, fmt.Errorf("vocab missing [UNK] token")
	}
	padID, ok := vocab["[PAD]"]
	if !ok {
		return nil, fmt.Errorf("vocab missing [PAD] token")
	}
	clsID, ok := vocab["[CLS]"]
	if !ok {
		return nil, fmt.Errorf("vocab missing [CLS] token")
	}
	sepID, ok := vocab["[SEP]"]
	if !ok {
		return nil, fmt.Errorf("vocab missing [SEP] token")
	}

	return &WordPieceTokenizer{
		vocab:      vocab,
		idToToken:  idToToken,
		unkTokenID: unkID,
		padTokenID: padID,
		clsTokenID: clsID,
		sepTokenID: sepID,
		maxSeqLen:  maxSeqLen,
	}, nil
}

// Encode tokenizes text and returns input_ids, attention_mask, token_type_ids
func (t *WordPieceTokenizer) Encode(text string) ([]int32, []int32, []int32) {
	tokens := t.tokenize(text)

	// Reserve space for [CLS] and [SEP]
	maxTokens := t.maxSeqLen - 2
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}

	inputIDs := make([]int32, t.maxSeqLen)
	attentionMask := make([]int32, t.maxSeqLen)
	tokenTypeIDs := make([]int32, t.maxSeqLen)

	inputIDs[0] = t.clsTokenID
	attentionMask[0] = 1

	for i, token := range tokens {
		id, ok := t.vocab[token]
		if !ok {
			id = t.unkTokenID
		}
		inputIDs[i+1] = id
		attentionMask[i+1] = 1
	}

	inputIDs[len(tokens)+1] = t.sepTokenID
	attentionMask[len(tokens)+1] = 1

	// Remaining positions are already 0 (PAD)
	return inputIDs, attentionMask, tokenTypeIDs
}

// tokenize performs WordPiece tokenization
func (t *WordPieceTokenizer) tokenize(text string) []string {
	text = strings.ToLower(text)

	var tokens []string
	wordRe := regexp.MustCompile(`[\w]+|[^\s\w]`)
	words := wordRe.FindAllString(text, -1)

	for _, word := range words {
		subTokens := t.wordpiece(word)
		tokens = append(tokens, subTokens...)
	}

	return tokens
}

// wordpiece splits a word into WordPiece tokens
func (t *WordPieceTokenizer) wordpiece(word string) []string {
	if len(word) == 0 {
		return nil
	}

	if _, ok := t.vocab[word]; ok {
		return []string{word}
	}

	var tokens []string
	start := 0

	for start < len(word) {
		end := len(word)
		var curToken string
		found := false

		for end > start {
			substr := word[start:end]
			if start > 0 {
				substr = "##" + substr
			}

			if _, ok := t.vocab[substr]; ok {
				curToken = substr
				found = true
				break
			}
			end--
		}

		if !found {
			// Single character not in vocab
			if start > 0 {
				tokens = append(tokens, "##"+string(word[start]))
			} else {
				tokens = append(tokens, string(word[start]))
			}
			start++
		} else {
			tokens = append(tokens, curToken)
			start = end
		}
	}

	return tokens
}

func normalizeL2(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		return vec
	}
	result := make([]float32, len(vec))
	for i, v := range vec {
		result[i] = v / norm
	}
	return result
}

func int64Slice(input []int32) []int64 {
	result := make([]int64, len(input))
	for i, v := range input {
		result[i] = int64(v)
	}
	return result
}
