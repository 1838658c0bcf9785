// Package engine defines the boundary to the conversational engine. The
// engine's native streaming vocabulary stays behind this package; the rest of
// the system only ever sees the Event types below.
package engine

import (
	"context"

	"github.com/leadvoice/leadvoice/pkg/session"
)

// Kind enumerates the normalized engine event vocabulary.
type Kind string

const (
	// KindAgentStart opens a run and names the agent producing it.
	KindAgentStart Kind = "agent_start"
	// KindTextDelta carries an incremental piece of assistant text.
	KindTextDelta Kind = "text_delta"
	// KindToolCallStart announces a tool invocation with its correlation id.
	KindToolCallStart Kind = "tool_call_start"
	// KindToolCallEnd carries the result for a previously started call id.
	KindToolCallEnd Kind = "tool_call_end"
	// KindFinalText carries the complete assistant text for the turn, plus
	// any media references produced during this turn only.
	KindFinalText Kind = "final_text"
	// KindDone closes a run and names the agent active when it finished.
	// A Done agent differing from the run's starting agent is a handoff.
	KindDone Kind = "done"
	// KindError reports a run failure. It is terminal for the run.
	KindError Kind = "error"
)

// Event is one element of the ordered sequence a Run produces.
type Event struct {
	Kind  Kind
	Agent string

	// Text is the delta for KindTextDelta and the full output for
	// KindFinalText.
	Text string

	// Media holds references (URLs) attached to this run's final output.
	Media []string

	// Tool call fields, set for KindToolCallStart and KindToolCallEnd.
	CallID     string
	ToolName   string
	ToolInput  map[string]any
	ToolResult string
	// ToolIsError marks a tool result that carries a textual failure.
	ToolIsError bool

	Err error
}

// Engine executes one conversational turn. The returned channel yields
// events in production order and is closed after KindDone or KindError.
// Cancelling ctx stops the run; the channel is still closed.
//
// sess is the shared mutable context: tool execution may update collected
// customer fields mid-run. The caller owns sess and must not read it
// concurrently with the run.
type Engine interface {
	Run(ctx context.Context, agentName, input string, sess *session.Session) (<-chan Event, error)
}
