// Package openaiengine runs conversational turns against the OpenAI chat
// completions API, executing tools mid-run and following agent handoffs.
package openaiengine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/leadvoice/leadvoice/pkg/agent"
	"github.com/leadvoice/leadvoice/pkg/engine"
	"github.com/leadvoice/leadvoice/pkg/session"
	"github.com/leadvoice/leadvoice/pkg/tools"
)

// maxToolRounds bounds tool-execution loops within one turn.
const maxToolRounds = 8

const eventBuffer = 64

type Engine struct {
	client *openai.Client
	model  string
	tools  *tools.Registry
	logger *slog.Logger
	guard  Guard
}

type Option func(*Engine)

// WithGuard installs an output guard. Responses the guard rejects are
// replaced before they leave the engine.
func WithGuard(g Guard) Option {
	return func(e *Engine) { e.guard = g }
}

func New(client *openai.Client, model string, registry *tools.Registry, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{client: client, model: model, tools: registry, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one turn. Events arrive on the returned channel in production
// order; the channel closes after KindDone or KindError.
func (e *Engine) Run(ctx context.Context, agentName, input string, sess *session.Session) (<-chan engine.Event, error) {
	profile, err := agent.Lookup(agentName)
	if err != nil {
		return nil, err
	}
	events := make(chan engine.Event, eventBuffer)
	go e.run(ctx, profile, input, sess, events)
	return events, nil
}

func (e *Engine) run(ctx context.Context, profile agent.Profile, input string, sess *session.Session, events chan<- engine.Event) {
	defer close(events)

	emit := func(ev engine.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	emit(engine.Event{Kind: engine.KindAgentStart, Agent: profile.Name})

	msgs := e.buildMessages(profile, input, sess)

	var fullText string
	var media []string

	for round := 0; round < maxToolRounds; round++ {
		text, calls, err := e.streamOnce(ctx, profile, msgs, emit)
		if err != nil {
			emit(engine.Event{Kind: engine.KindError, Agent: profile.Name, Err: err})
			return
		}
		fullText += text

		if len(calls) == 0 {
			break
		}

		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   text,
			ToolCalls: calls,
		})

		handoffTo := ""
		for _, call := range calls {
			callInput := map[string]any{}
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &callInput); err != nil {
					e.logger.Warn("malformed tool arguments",
						"tool", call.Function.Name, "call_id", call.ID, "error", err)
				}
			}

			if !emit(engine.Event{
				Kind:      engine.KindToolCallStart,
				Agent:     profile.Name,
				CallID:    call.ID,
				ToolName:  call.Function.Name,
				ToolInput: callInput,
			}) {
				return
			}

			outcome := e.tools.Execute(ctx, call.Function.Name, sess, callInput)
			media = append(media, outcome.Media...)
			if outcome.HandoffTo != "" {
				handoffTo = outcome.HandoffTo
			}

			if !emit(engine.Event{
				Kind:        engine.KindToolCallEnd,
				Agent:       profile.Name,
				CallID:      call.ID,
				ToolName:    call.Function.Name,
				ToolResult:  outcome.Result,
				ToolIsError: outcome.IsError,
			}) {
				return
			}

			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    outcome.Result,
			})
		}

		if handoffTo != "" {
			next, err := agent.Lookup(handoffTo)
			if err != nil {
				emit(engine.Event{Kind: engine.KindError, Agent: profile.Name, Err: err})
				return
			}
			profile = next
			msgs[0] = openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: profile.Instructions,
			}
		}
	}

	if e.guard != nil && fullText != "" {
		relevant, err := e.guard.Check(ctx, fullText)
		switch {
		case err != nil:
			// The guard failing is not a reason to drop the turn.
			e.logger.Warn("output guard check failed", "agent", profile.Name, "error", err)
		case !relevant:
			e.logger.Info("off-topic response replaced", "agent", profile.Name, "session_id", sess.ID)
			fullText = offTopicReply
			media = nil
		}
	}

	emit(engine.Event{Kind: engine.KindFinalText, Agent: profile.Name, Text: fullText, Media: media})
	emit(engine.Event{Kind: engine.KindDone, Agent: profile.Name})
}

// streamOnce performs one streamed completion request, emitting text deltas
// as they arrive and accumulating any tool calls.
func (e *Engine) streamOnce(ctx context.Context, profile agent.Profile, msgs []openai.ChatCompletionMessage, emit func(engine.Event) bool) (string, []openai.ToolCall, error) {
	req := openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: msgs,
		Tools:    e.toolDefs(profile),
	}

	stream, err := e.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	var text string
	var calls []openai.ToolCall

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			text += delta.Content
			if !emit(engine.Event{Kind: engine.KindTextDelta, Agent: profile.Name, Text: delta.Content}) {
				return "", nil, ctx.Err()
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			for len(calls) <= idx {
				calls = append(calls, openai.ToolCall{Type: openai.ToolTypeFunction})
			}
			if tc.ID != "" {
				calls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				calls[idx].Function.Name = tc.Function.Name
			}
			calls[idx].Function.Arguments += tc.Function.Arguments
		}
	}

	return text, calls, nil
}

func (e *Engine) toolDefs(profile agent.Profile) []openai.Tool {
	defs := e.tools.Definitions(profile.Tools)
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

func (e *Engine) buildMessages(profile agent.Profile, input string, sess *session.Session) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(sess.History)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: profile.Instructions,
	})
	for _, m := range sess.History {
		role := openai.ChatMessageRoleUser
		if m.Role == session.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: input})
	return msgs
}
