package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/philippgille/chromem-go"
	"google.golang.org/api/option"
)

const geminiEmbeddingModel = "text-embedding-004"

// NewEmbedder builds the embedding function for the configured provider and
// returns a cleanup func. Provider "none" uses a local deterministic
// embedding: useless for semantic quality, but it keeps the whole pipeline
// runnable offline and in tests without API keys.
func NewEmbedder(ctx context.Context, provider, geminiAPIKey, openaiAPIKey string) (chromem.EmbeddingFunc, func(), error) {
	switch provider {
	case "gemini":
		return newGeminiEmbedder(ctx, geminiAPIKey)
	case "openai":
		return chromem.NewEmbeddingFuncOpenAI(openaiAPIKey, chromem.EmbeddingModelOpenAI3Small), func() {}, nil
	case "", "none":
		return localEmbedding, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

func newGeminiEmbedder(ctx context.Context, apiKey string) (chromem.EmbeddingFunc, func(), error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, nil, fmt.Errorf("create gemini client: %w", err)
	}
	em := client.EmbeddingModel(geminiEmbeddingModel)

	fn := func(ctx context.Context, text string) ([]float32, error) {
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, fmt.Errorf("gemini embed: %w", err)
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return nil, fmt.Errorf("gemini embed: empty embedding")
		}
		return res.Embedding.Values, nil
	}
	cleanup := func() { client.Close() }
	return fn, cleanup, nil
}

const localEmbeddingDim = 256

// localEmbedding hashes word features into a fixed-size normalized vector.
// Deterministic, key-free, and cheap; similarity is lexical overlap only.
func localEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, localEmbeddingDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%localEmbeddingDim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}
