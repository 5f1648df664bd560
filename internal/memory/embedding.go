package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	chromem "github.com/philippgille/chromem-go"
)

const (
	localDims = 384

	geminiEmbeddingBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
)

// EmbeddingConfig selects the function that turns memory text into vectors.
type EmbeddingConfig struct {
	Provider string // local, openai, ollama, gemini
	Model    string
	APIKey   string
	BaseURL  string
}

// NewEmbeddingFunc resolves cfg into a chromem embedding function.
func NewEmbeddingFunc(cfg EmbeddingConfig) (chromem.EmbeddingFunc, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "local":
		return LocalEmbedding(localDims), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embeddings need OPENAI_API_KEY")
		}
		model := cfg.Model
		if model == "" {
			model = string(chromem.EmbeddingModelOpenAI3Small)
		}
		return chromem.NewEmbeddingFuncOpenAI(cfg.APIKey, chromem.EmbeddingModelOpenAI(model)), nil
	case "ollama":
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return chromem.NewEmbeddingFuncOllama(model, ollamaEmbeddingURL(cfg.BaseURL)), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini embeddings need GEMINI_API_KEY")
		}
		model := cfg.Model
		if model == "" {
			model = "text-embedding-004"
		}
		base := cfg.BaseURL
		if base == "" {
			base = geminiEmbeddingBaseURL
		}
		return chromem.NewEmbeddingFuncOpenAICompat(base, cfg.APIKey, model, nil), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// ollamaEmbeddingURL maps the OpenAI-compatible chat base (…/v1) onto the
// native API base chromem expects (…/api).
func ollamaEmbeddingURL(base string) string {
	if base == "" {
		return ""
	}
	base = strings.TrimSuffix(base, "/")
	base = strings.TrimSuffix(base, "/v1")
	return base + "/api"
}

var (
	wordPattern     = regexp.MustCompile(`[a-z0-9]+`)
	compoundPattern = regexp.MustCompile(`[a-z0-9]+(?:[_\-][a-z0-9]+)+`)
	joiners         = strings.NewReplacer("_", "", "-", "")
)

// LocalEmbedding returns an offline embedder built from hashed character
// trigrams plus whole words. Good enough to rank a few hundred short facts
// per user without a network call.
//
// Keys like user_name are split into their words so a question about the
// "user name" lands on the same buckets; the joined form is kept as a
// weaker extra feature. Trigrams are taken per word so punctuation and
// spacing do not add noise.
func LocalEmbedding(dims int) chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dims)
		normalized := strings.ToLower(strings.TrimSpace(text))
		for _, word := range wordPattern.FindAllString(normalized, -1) {
			window := "#" + word + "#"
			for i := 0; i+3 <= len(window); i++ {
				vec[bucket(window[i:i+3], dims)] += 1
			}
			vec[bucket("tok:"+word, dims)] += 2.5
		}
		for _, compound := range compoundPattern.FindAllString(normalized, -1) {
			vec[bucket("tok:"+joiners.Replace(compound), dims)] += 1.25
		}
		normalize(vec)
		return vec, nil
	}
}

func bucket(s string, dims int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(dims))
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum == 0 {
		vec[0] = 1
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}
