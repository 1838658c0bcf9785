package search

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadvoice/leadvoice/pkg/store"
)

type fakeEmbedder struct {
	calls []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeProductStore struct {
	matches   []store.ProductMatch
	pending   []store.Product
	embedded  map[int64][]float32
	searchErr error
}

func (f *fakeProductStore) SearchProducts(_ context.Context, _ []float32, _ int) ([]store.ProductMatch, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches, nil
}

func (f *fakeProductStore) ListProductsWithoutEmbedding(_ context.Context, _ int) ([]store.Product, error) {
	return f.pending, nil
}

func (f *fakeProductStore) SetProductEmbedding(_ context.Context, id int64, embedding []float32) error {
	if f.embedded == nil {
		f.embedded = map[int64][]float32{}
	}
	f.embedded[id] = embedding
	return nil
}

func TestSearchRanksViaEmbedding(t *testing.T) {
	products := &fakeProductStore{matches: []store.ProductMatch{
		{Product: store.Product{Name: "Heritage Door"}, Score: 0.92},
		{Product: store.Product{Name: "Classic Oak Entry Door"}, Score: 0.81},
	}}
	embedder := &fakeEmbedder{}
	svc := NewService(embedder, products, 5, nil)

	matches, err := svc.Search(context.Background(), "solid wood front door")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "Heritage Door", matches[0].Name)
	assert.Equal(t, []string{"solid wood front door"}, embedder.calls)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc := NewService(&fakeEmbedder{}, &fakeProductStore{}, 5, nil)
	_, err := svc.Search(context.Background(), "   ")
	require.Error(t, err)
}

func TestSearchIsIdempotent(t *testing.T) {
	products := &fakeProductStore{matches: []store.ProductMatch{
		{Product: store.Product{Name: "Bay Window"}, Score: 0.7},
	}}
	svc := NewService(&fakeEmbedder{}, products, 5, nil)

	first, err := svc.Search(context.Background(), "bay window")
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), "bay window")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEnsureProductEmbeddingsBackfills(t *testing.T) {
	products := &fakeProductStore{pending: []store.Product{
		{ID: 1, Name: "Heritage Door", Category: "entry_door"},
		{ID: 2, Name: "Bay Window", Category: "window"},
	}}
	svc := NewService(&fakeEmbedder{}, products, 5, nil)

	require.NoError(t, svc.EnsureProductEmbeddings(context.Background()))
	assert.Len(t, products.embedded, 2)
}

func TestEnsureProductEmbeddingsStopsOnEmbedError(t *testing.T) {
	products := &fakeProductStore{pending: []store.Product{{ID: 1, Name: "Heritage Door"}}}
	svc := NewService(&fakeEmbedder{err: errors.New("quota")}, products, 5, nil)

	err := svc.EnsureProductEmbeddings(context.Background())
	require.Error(t, err)
	assert.Empty(t, products.embedded)
}
