// Package agent defines the closed set of conversational agent profiles.
// Profiles are resolved once at startup; agent identity is the key used for
// handoff tracking and voice selection.
package agent

import "fmt"

const (
	Greeting = "GreetingAgent"
	Sales    = "SalesAgent"
)

// ToolTransferToSales is the handoff tool exposed to the greeting agent.
const ToolTransferToSales = "transfer_to_sales"

// Profile is a static per-agent configuration record.
type Profile struct {
	Name         string
	VoiceID      string
	Instructions string
	Tools        []string
	// HandoffTo lists agent names this profile may transfer the
	// conversation to via its handoff tool.
	HandoffTo []string
}

var profiles = map[string]Profile{
	Greeting: {
		Name:    Greeting,
		VoiceID: "coral",
		Instructions: `You are a friendly greeter for Premier Doors & Windows.
Welcome the customer warmly, then collect their contact details one at a time:
first their name, then their email address, then their phone number. Save each
detail with the matching tool as soon as the customer provides it. Use
check_customer_info_complete to confirm nothing is missing. Once name, email,
and phone are all saved, call transfer_to_sales to hand the customer to the
sales specialist. Keep replies short and conversational. Only discuss doors,
windows, and related topics.`,
		Tools: []string{
			"save_customer_name",
			"save_customer_email",
			"save_customer_phone",
			"check_customer_info_complete",
			ToolTransferToSales,
		},
		HandoffTo: []string{Sales},
	},
	Sales: {
		Name:    Sales,
		VoiceID: "ash",
		Instructions: `You are a product specialist for Premier Doors & Windows.
The customer's contact details were already collected. Help them find the
right door or window: use search_products to look up the catalog, describe
matches briefly, and record anything they show interest in with
save_product_interest. When the customer settles on a product, call
finalize_selection with its name, then call submit_lead to hand them to the
sales team, and tell the customer someone will reach out shortly. Keep replies
short and conversational. Only discuss doors, windows, and related topics.`,
		Tools: []string{
			"search_products",
			"save_product_interest",
			"finalize_selection",
			"submit_lead",
		},
	},
}

// Lookup returns the profile for name.
func Lookup(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown agent %q", name)
	}
	return p, nil
}

// Default returns the profile every new session starts with.
func Default() Profile {
	return profiles[Greeting]
}

// CanHandoff reports whether from may transfer the conversation to target.
func CanHandoff(from, target string) bool {
	p, ok := profiles[from]
	if !ok {
		return false
	}
	for _, t := range p.HandoffTo {
		if t == target {
			return true
		}
	}
	return false
}
