package embed

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAI embeds text through the OpenAI embeddings endpoint (or any
// compatible server reachable at BaseURL).
type OpenAI struct {
	client     *openai.Client
	model      string
	dimensions int
}

var _ memory.Embedder = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI embedder. The API key falls back to
// $OPENAI_API_KEY.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" && cfg.BaseURL == "" {
		return nil, errors.New("embed: openai: api_key is required")
	}

	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(oc),
		model:      model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Dimensions implements memory.Embedder.
func (e *OpenAI) Dimensions() int { return e.dimensions }

// Embed implements memory.Embedder.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.model),
		Input:      []string{text},
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, wrap(ProviderOpenAI, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, wrap(ProviderOpenAI, errors.New("empty embedding response"))
	}
	return resp.Data[0].Embedding, nil
}
