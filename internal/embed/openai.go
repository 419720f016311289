package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI embeds through the OpenAI embeddings API.
type OpenAI struct {
	client *openai.Client
	model  string
	dims   int
}

// openaiDims maps known embedding models to their dimensionality.
var openaiDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// NewOpenAI creates an OpenAI-backed embedder. The default model is
// text-embedding-3-small.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = "text-embedding-3-small"
	}
	dims, ok := openaiDims[model]
	if !ok {
		dims = 1536
	}
	return &OpenAI{
		client: openai.NewClient(apiKey),
		model:  model,
		dims:   dims,
	}
}

func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: openai request: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed: openai returned no embedding")
	}
	return resp.Data[0].Embedding, nil
}

func (e *OpenAI) Dims() int { return e.dims }
