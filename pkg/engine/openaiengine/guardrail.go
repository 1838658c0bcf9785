package openaiengine

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// Guard vets a finished response before it reaches the customer. Check
// returns whether the text is acceptable to send as-is.
type Guard interface {
	Check(ctx context.Context, text string) (bool, error)
}

// offTopicReply replaces a response the guard rejects.
const offTopicReply = "I apologize, but I can only help with questions about doors and windows. Is there anything about our door or window products I can help you with?"

const domainGuardInstructions = `You are a domain validation assistant. Decide whether a response belongs to a doors and windows business conversation.

VALID topics include:
- Doors and windows of any kind, their materials, features, and pricing
- Installation, measurements, and ordering
- Company information and policies
- Collecting customer contact details
- General greetings and conversation management

INVALID topics include:
- Politics, religion, or other controversial subjects
- Products unrelated to doors and windows
- Medical, legal, or financial advice
- Completely unrelated queries (cooking, sports, entertainment, etc.)

Reply with a JSON object: {"relevant": true} if the response stays within the valid domain, {"relevant": false} otherwise.`

// DomainGuard asks a small model whether a response stays on the doors and
// windows topic. It uses a plain (non-streamed) completion with a JSON
// object response.
type DomainGuard struct {
	client *openai.Client
	model  string
}

func NewDomainGuard(client *openai.Client, model string) *DomainGuard {
	return &DomainGuard{client: client, model: model}
}

func (g *DomainGuard) Check(ctx context.Context, text string) (bool, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: domainGuardInstructions},
			{Role: openai.ChatMessageRoleUser, Content: "Check if this response is within the doors and windows domain:\n\n" + text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "domain check request")
	}
	if len(resp.Choices) == 0 {
		return false, errors.New("domain check returned no choices")
	}

	var verdict struct {
		Relevant bool `json:"relevant"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil {
		return false, errors.Wrap(err, "domain check verdict")
	}
	return verdict.Relevant, nil
}
