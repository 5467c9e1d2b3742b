package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
	ollama "github.com/ollama/ollama/api"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "all-minilm"
)

// Ollama embeds text through a local Ollama server.
type Ollama struct {
	client     *ollama.Client
	model      string
	dimensions int
}

var _ memory.Embedder = (*Ollama)(nil)

// NewOllama creates an Ollama embedder. The host falls back to
// $OLLAMA_HOST, then to the local default.
func NewOllama(cfg Config) (*Ollama, error) {
	host := cfg.BaseURL
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = defaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("embed: ollama: parse host %q: %w", host, err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &Ollama{
		client:     ollama.NewClient(u, &http.Client{Timeout: cfg.Timeout}),
		model:      model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Dimensions implements memory.Embedder.
func (e *Ollama) Dimensions() int { return e.dimensions }

// Embed implements memory.Embedder.
func (e *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.client.Embed(ctx, &ollama.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, wrap(ProviderOllama, err)
	}
	if res == nil || len(res.Embeddings) == 0 || len(res.Embeddings[0]) == 0 {
		return nil, wrap(ProviderOllama, errors.New("empty embedding response"))
	}
	return res.Embeddings[0], nil
}
