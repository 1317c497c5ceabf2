package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/PascheK/PascheK-ChatBox/internal/core"
)

// Requests per provider call and the hard cap on texts per request.
const (
	embedBatchSize   = 100
	embedConcurrency = 4
	embedTimeout     = 30 * time.Second
)

// GeminiEmbedder implements core.Embedder over the Gemini embedding API.
// Callers hand over one logical batch; the embedder splits it into
// provider-sized requests, rate limits them and reassembles the vectors
// in input order.
type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dimension int
	limiter   *rate.Limiter
}

var _ core.Embedder = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dimension int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not set")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", core.ErrConfig, dimension)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{
		client:    cl,
		modelName: modelName,
		dimension: dimension,
		limiter:   rate.NewLimiter(rate.Limit(5), 10),
	}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) Dimension() int {
	return g.dimension
}

// EmbedTexts returns one vector per input text, same order, dimension
// validated against the configured D. Provider failures surface as
// ErrEmbedding; a dimension mismatch is ErrConfig since it means the
// model and the stored vectors disagree.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		eg.Go(func() error {
			vecs, err := g.embedBatch(egCtx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate wait: %w", core.ErrEmbedding, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	em := g.client.EmbeddingModel(g.modelName)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(callCtx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini batch embed: %w", core.ErrEmbedding, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", core.ErrEmbedding, len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, 0, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if len(e.Values) != g.dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", core.ErrConfig, i, len(e.Values), g.dimension)
		}
		vecs = append(vecs, e.Values)
	}
	return vecs, nil
}
