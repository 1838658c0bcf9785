package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/leadvoice/leadvoice/pkg/session"
	"github.com/leadvoice/leadvoice/pkg/store"
)

// Searcher is the product search collaborator consumed by search_products.
type Searcher interface {
	Search(ctx context.Context, query string) ([]store.ProductMatch, error)
}

type searchProducts struct {
	searcher Searcher
}

func NewSearchProducts(searcher Searcher) Executor {
	return &searchProducts{searcher: searcher}
}

func (*searchProducts) Name() string { return "search_products" }

func (*searchProducts) Definition() Definition {
	return Definition{
		Name:        "search_products",
		Description: "Search the doors and windows catalog for products matching the customer's needs.",
		Parameters: objectSchema([]string{"query"}, map[string]any{
			"query": stringSchema("What the customer is looking for, in their own words"),
		}),
	}
}

func (t *searchProducts) Execute(ctx context.Context, _ *session.Session, input map[string]any) Outcome {
	query := stringArg(input, "query")
	if query == "" {
		return errorOutcome("ERROR: Empty search query.")
	}
	matches, err := t.searcher.Search(ctx, query)
	if err != nil {
		return errorOutcome("ERROR: Product search is unavailable right now. Apologize and offer to describe popular options.")
	}
	if len(matches) == 0 {
		return Outcome{Result: "No matching products found. Suggest the customer describe what they need differently."}
	}

	var b strings.Builder
	b.WriteString("Matching products:\n")
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. %s (%s): %s", i+1, m.Name, m.Category, m.Description)
		if m.PriceRange != "" {
			fmt.Fprintf(&b, " Price: %s.", m.PriceRange)
		}
		if len(m.Features) > 0 {
			fmt.Fprintf(&b, " Features: %s.", strings.Join(m.Features, ", "))
		}
		b.WriteString("\n")
	}
	return Outcome{Result: b.String()}
}

type saveProductInterest struct{}

func NewSaveProductInterest() Executor { return saveProductInterest{} }

func (saveProductInterest) Name() string { return "save_product_interest" }

func (saveProductInterest) Definition() Definition {
	return Definition{
		Name:        "save_product_interest",
		Description: "Record a product the customer has shown interest in.",
		Parameters: objectSchema([]string{"product_name"}, map[string]any{
			"product_name": stringSchema("The exact product name"),
		}),
	}
}

func (saveProductInterest) Execute(_ context.Context, sess *session.Session, input map[string]any) Outcome {
	product := stringArg(input, "product_name")
	if product == "" {
		return errorOutcome("ERROR: No product name provided.")
	}
	sess.AddProductInterest(product)
	return Outcome{Result: "Noted interest in: " + product}
}

type finalizeSelection struct{}

func NewFinalizeSelection() Executor { return finalizeSelection{} }

func (finalizeSelection) Name() string { return "finalize_selection" }

func (finalizeSelection) Definition() Definition {
	return Definition{
		Name:        "finalize_selection",
		Description: "Record the product the customer has decided on, with a short summary of the conversation so far. Required before submitting a lead.",
		Parameters: objectSchema([]string{"product_name", "conversation_summary"}, map[string]any{
			"product_name":         stringSchema("The exact product name the customer chose"),
			"conversation_summary": stringSchema("A brief summary of the conversation and the customer's needs"),
		}),
	}
}

func (finalizeSelection) Execute(_ context.Context, sess *session.Session, input map[string]any) Outcome {
	product := stringArg(input, "product_name")
	if product == "" {
		return errorOutcome("ERROR: No product name provided.")
	}
	sess.SetSelectedProduct(product)
	sess.AddProductInterest(product)
	if summary := stringArg(input, "conversation_summary"); summary != "" {
		sess.SetSummary(summary)
	}
	return Outcome{Result: "Selection finalized: " + product}
}
