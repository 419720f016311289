// Package embed provides pluggable text-embedding providers. Every memory
// record's content is embedded once at write time; search queries are
// embedded with the same provider so distances are comparable.
package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dims reports the vector dimensionality, needed to size the vector
	// collection before the first write.
	Dims() int
}

// New constructs the provider named by cfg. Supported providers are
// "local" (deterministic, no external service), "ollama", and "openai".
func New(cfg Config) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "local":
		return NewLocal(), nil
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.Model), nil
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("embed: unknown provider %q", cfg.Provider)
	}
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

const localDims = 256

// Local is a deterministic offline embedder: a normalized bag-of-words
// vector over hashed tokens. It has no semantic knowledge, but related
// texts still score higher than unrelated ones, which is enough for
// development and tests without an embedding service.
type Local struct{}

// NewLocal creates the offline embedder.
func NewLocal() Local { return Local{} }

func (Local) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, localDims)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%localDims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (Local) Dims() int { return localDims }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
