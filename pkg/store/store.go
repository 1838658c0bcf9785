// Package store is the Postgres document store for leads and the product
// catalog.
package store

import (
	"context"
	"time"
)

// Lead statuses as persisted.
const (
	LeadStatusNew      = "new"
	LeadStatusNotified = "notified"
)

type Lead struct {
	ID                int64
	Name              string
	Email             string
	Phone             string
	SelectedProduct   string
	ProductsDiscussed []string
	Summary           string
	SessionID         string
	Status            string
	CreatedAt         time.Time
}

type Product struct {
	ID          int64
	Name        string
	Category    string
	Description string
	PriceRange  string
	Features    []string
}

// ProductMatch is a catalog row with its similarity score for a query.
type ProductMatch struct {
	Product
	Score float64
}

// LeadStore is the persistence interface consumed by the delivery queue and
// the HTTP surface.
type LeadStore interface {
	InsertLead(ctx context.Context, lead *Lead) (int64, error)
	UpdateLeadStatus(ctx context.Context, id int64, status string) error
	ListLeads(ctx context.Context, limit int) ([]Lead, error)
}

// ProductStore is the catalog interface consumed by the search service.
type ProductStore interface {
	SearchProducts(ctx context.Context, embedding []float32, limit int) ([]ProductMatch, error)
	ListProductsWithoutEmbedding(ctx context.Context, limit int) ([]Product, error)
	SetProductEmbedding(ctx context.Context, id int64, embedding []float32) error
}
