package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leadvoice/leadvoice/pkg/store"
)

func TestFormatLeadEmail(t *testing.T) {
	lead := &store.Lead{
		ID:                42,
		Name:              "Jane Doe",
		Email:             "jane@x.com",
		Phone:             "555-0100",
		SelectedProduct:   "Heritage Door",
		ProductsDiscussed: []string{"Heritage Door", "Bay Window"},
		Summary:           "Interested in a traditional entry door.",
	}

	subject, body := FormatLeadEmail(lead)
	assert.Equal(t, "New Lead: Jane Doe - Heritage Door", subject)
	assert.Contains(t, body, "- Name: Jane Doe")
	assert.Contains(t, body, "- Email: jane@x.com")
	assert.Contains(t, body, "- Phone: 555-0100")
	assert.Contains(t, body, "Selected Product: Heritage Door")
	assert.Contains(t, body, "Products Discussed: Heritage Door, Bay Window")
	assert.Contains(t, body, "Lead ID: 42")
}

func TestFormatLeadEmailSkipsEmptySummary(t *testing.T) {
	lead := &store.Lead{ID: 7, Name: "Jane Doe", SelectedProduct: "Bay Window"}
	_, body := FormatLeadEmail(lead)
	assert.NotContains(t, body, "Conversation Summary")
}
