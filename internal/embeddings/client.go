// Package embeddings produces batch dense vectors through an
// OpenAI-compatible endpoint. Failures never propagate past the batch
// helpers: the degrade-open policy substitutes zero vectors of the correct
// dimension so writes survive an embedder outage.
package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/debian777/kairos-mcp/internal/faults"
)

const callTimeout = 5 * time.Second

// Client produces one dense vector per input string.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// OpenAI is the production client. All calls run through a circuit breaker so
// a down embedder fails fast instead of eating the 5 s deadline per request.
type OpenAI struct {
	api       openai.Client
	model     string
	dimension int
	breaker   *gobreaker.CircuitBreaker
	log       zerolog.Logger
}

// NewOpenAI builds a client against baseURL (an OpenAI-compatible /v1 root).
func NewOpenAI(baseURL, apiKey, model string, dimension int, log zerolog.Logger) *OpenAI {
	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAI{
		api:       openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "embeddings",
			Timeout: 30 * time.Second,
		}),
		log: log.With().Str("component", "embeddings").Logger(),
	}
}

func (c *OpenAI) Dimension() int { return c.dimension }

// Embed returns one vector per text, in input order.
func (c *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(c.model),
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(texts), len(resp.Data))
		}
		vectors := make([][]float32, len(resp.Data))
		for _, d := range resp.Data {
			if int(d.Index) >= len(vectors) {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			vec := make([]float32, len(d.Embedding))
			for i, f := range d.Embedding {
				vec[i] = float32(f)
			}
			vectors[d.Index] = vec
		}
		return vectors, nil
	})
	if err != nil {
		return nil, faults.Wrap(err, faults.CodeEmbeddingFailed, "embed %d texts", len(texts))
	}
	return result.([][]float32), nil
}

// Zero returns an all-zero vector of dimension dim.
func Zero(dim int) []float32 { return make([]float32, dim) }

// EmbedOrZero applies the degrade-open policy: on any embedding failure every
// text gets a zero vector and the fallback is logged. The returned bool
// reports whether the fallback fired.
func EmbedOrZero(ctx context.Context, c Client, log zerolog.Logger, texts []string) ([][]float32, bool) {
	vectors, err := c.Embed(ctx, texts)
	if err == nil {
		return vectors, false
	}
	log.Warn().Err(err).Int("texts", len(texts)).
		Msg("embedding failed, storing zero vectors (unreachable by similarity search)")
	vectors = make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = Zero(c.Dimension())
	}
	return vectors, true
}
