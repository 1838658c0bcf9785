package tools

import (
	"context"
	"strings"

	"github.com/leadvoice/leadvoice/pkg/agent"
	"github.com/leadvoice/leadvoice/pkg/queue"
	"github.com/leadvoice/leadvoice/pkg/session"
)

// Enqueuer accepts a lead job for background delivery.
type Enqueuer interface {
	Enqueue(job queue.Job) string
}

type submitLead struct {
	deliveries Enqueuer
}

func NewSubmitLead(deliveries Enqueuer) Executor {
	return &submitLead{deliveries: deliveries}
}

func (*submitLead) Name() string { return "submit_lead" }

func (*submitLead) Definition() Definition {
	return Definition{
		Name:        "submit_lead",
		Description: "Submit the finalized lead to the sales team. Requires name, email, phone, and a finalized product selection.",
		Parameters:  objectSchema(nil, map[string]any{}),
	}
}

// Execute validates prerequisites, enqueues exactly one job, and returns
// immediately. It never waits for delivery.
func (t *submitLead) Execute(_ context.Context, sess *session.Session, _ map[string]any) Outcome {
	if missing := sess.MissingContactFields(); len(missing) > 0 {
		return errorOutcome("ERROR: Cannot submit lead. Missing customer information: %s", strings.Join(missing, ", "))
	}
	if sess.SelectedProduct == "" {
		return errorOutcome("ERROR: Cannot submit lead. No product has been finalized. Use finalize_selection first.")
	}

	discussed := make([]string, len(sess.ProductsDiscussed))
	copy(discussed, sess.ProductsDiscussed)

	jobID := t.deliveries.Enqueue(queue.Job{
		Name:              sess.Name,
		Email:             sess.Email,
		Phone:             sess.Phone,
		SelectedProduct:   sess.SelectedProduct,
		ProductsDiscussed: discussed,
		Summary:           sess.Summary,
		SessionID:         sess.ID,
	})

	return Outcome{Result: "Lead submitted successfully! The sales team will contact " + sess.Name + " shortly. (reference " + jobID + ")"}
}

type transferToSales struct{}

func NewTransferToSales() Executor { return transferToSales{} }

func (transferToSales) Name() string { return agent.ToolTransferToSales }

func (transferToSales) Definition() Definition {
	return Definition{
		Name:        agent.ToolTransferToSales,
		Description: "Transfer the customer to the sales specialist once contact details are collected.",
		Parameters:  objectSchema(nil, map[string]any{}),
	}
}

func (transferToSales) Execute(_ context.Context, sess *session.Session, _ map[string]any) Outcome {
	if !agent.CanHandoff(sess.ActiveAgent, agent.Sales) {
		return errorOutcome("ERROR: Transfer to sales is not available right now.")
	}
	if missing := sess.MissingContactFields(); len(missing) > 0 {
		return errorOutcome("ERROR: Cannot transfer yet. Missing customer information: %s", strings.Join(missing, ", "))
	}
	return Outcome{
		Result:    "Transferring to the sales specialist.",
		HandoffTo: agent.Sales,
	}
}

// DefaultRegistry wires the full tool set.
func DefaultRegistry(searcher Searcher, deliveries Enqueuer) *Registry {
	return NewRegistry(
		NewSaveCustomerName(),
		NewSaveCustomerEmail(),
		NewSaveCustomerPhone(),
		NewCheckCustomerInfoComplete(),
		NewSearchProducts(searcher),
		NewSaveProductInterest(),
		NewFinalizeSelection(),
		NewSubmitLead(deliveries),
		NewTransferToSales(),
	)
}
