// Package search ranks the product catalog against a free-text query using
// embedding similarity. Search is pure and idempotent: it never mutates
// session or lead state.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/leadvoice/leadvoice/pkg/store"
)

// Embedder turns text into a vector. Implementations must be safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder computes embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create embedding")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response is empty")
	}
	return resp.Data[0].Embedding, nil
}

// Service is the product search collaborator.
type Service struct {
	embedder Embedder
	products store.ProductStore
	limit    int
	logger   *slog.Logger
}

func NewService(embedder Embedder, products store.ProductStore, limit int, logger *slog.Logger) *Service {
	if limit <= 0 {
		limit = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embedder: embedder, products: products, limit: limit, logger: logger}
}

// Search returns catalog matches ranked by similarity to query.
func (s *Service) Search(ctx context.Context, query string) ([]store.ProductMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty search query")
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}
	matches, err := s.products.SearchProducts(ctx, vector, s.limit)
	if err != nil {
		return nil, errors.Wrap(err, "search catalog")
	}
	return matches, nil
}

// EnsureProductEmbeddings backfills embeddings for catalog rows that have
// none yet. Run at startup so freshly migrated catalogs are searchable.
func (s *Service) EnsureProductEmbeddings(ctx context.Context) error {
	products, err := s.products.ListProductsWithoutEmbedding(ctx, 0)
	if err != nil {
		return errors.Wrap(err, "list products without embedding")
	}
	for _, p := range products {
		text := embeddingText(p)
		vector, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return errors.Wrapf(err, "embed product %q", p.Name)
		}
		if err := s.products.SetProductEmbedding(ctx, p.ID, vector); err != nil {
			return errors.Wrapf(err, "store embedding for product %q", p.Name)
		}
		s.logger.Debug("product embedding backfilled", "product", p.Name)
	}
	if len(products) > 0 {
		s.logger.Info("product embeddings backfilled", "count", len(products))
	}
	return nil
}

func embeddingText(p store.Product) string {
	return fmt.Sprintf("%s. Category: %s. %s Features: %s.",
		p.Name, p.Category, p.Description, strings.Join(p.Features, ", "))
}
