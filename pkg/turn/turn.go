// Package turn executes one customer turn against the conversational engine
// and yields the normalized event sequence the orchestrator relays to the
// client. Two adapters share one translation core: text turns and voice
// turns (transcribe, engine, synthesize).
package turn

import (
	"context"
	"log/slog"

	"github.com/leadvoice/leadvoice/pkg/agent"
	"github.com/leadvoice/leadvoice/pkg/engine"
	"github.com/leadvoice/leadvoice/pkg/session"
	"github.com/leadvoice/leadvoice/pkg/voice/stt"
	"github.com/leadvoice/leadvoice/pkg/voice/tts"
)

type Kind string

const (
	KindUserTranscript    Kind = "user_transcript"
	KindPartialTranscript Kind = "partial_transcript"
	KindToolCallStarted   Kind = "tool_call_started"
	KindToolCallResult    Kind = "tool_call_result"
	KindAudioChunk        Kind = "audio_chunk"
	KindFinalTranscript   Kind = "final_transcript"
	KindHandoff           Kind = "handoff"
	KindAgentSpeaking     Kind = "agent_speaking"
	KindAgentDone         Kind = "agent_done"
	KindError             Kind = "error"
)

// Event is one normalized turn event.
type Event struct {
	Kind  Kind
	Agent string

	Text  string
	Media []string
	Audio []byte

	CallID      string
	Tool        string
	Result      string
	ToolIsError bool

	FromAgent string
	ToAgent   string

	Err error
}

const eventBuffer = 64

// Adapter translates engine runs into normalized turn events. All per-turn
// state lives in each invocation, so one Adapter serves every connection;
// turns against the same session are serialized by the orchestrator.
type Adapter struct {
	engine      engine.Engine
	transcriber stt.Transcriber
	synthesizer tts.Synthesizer
	logger      *slog.Logger
}

func NewAdapter(eng engine.Engine, transcriber stt.Transcriber, synthesizer tts.Synthesizer, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engine: eng, transcriber: transcriber, synthesizer: synthesizer, logger: logger}
}

// RunText executes a text turn. Events are produced in order; the channel
// closes when the turn completes, errors, or ctx is cancelled.
func (a *Adapter) RunText(ctx context.Context, sess *session.Session, input string) <-chan Event {
	out := make(chan Event, eventBuffer)
	go func() {
		defer close(out)
		sink := newSink(ctx, out)
		sink.send(Event{Kind: KindUserTranscript, Text: input})
		a.converse(ctx, sess, input, sink, nil)
	}()
	return out
}

// RunVoice executes a voice turn over the session's accumulated audio
// buffer. The buffer is taken (and cleared) up front; an empty buffer is a
// no-op, not an error.
func (a *Adapter) RunVoice(ctx context.Context, sess *session.Session) <-chan Event {
	out := make(chan Event, eventBuffer)
	pcm := sess.TakeAudio()
	go func() {
		defer close(out)
		if len(pcm) == 0 {
			return
		}
		sink := newSink(ctx, out)

		text, err := a.transcriber.Transcribe(ctx, pcm)
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Error("transcription failed", "session_id", sess.ID, "error", err)
				sink.send(Event{Kind: KindError, Agent: sess.ActiveAgent, Err: err})
				sink.send(Event{Kind: KindAgentDone, Agent: sess.ActiveAgent})
			}
			return
		}
		if text == "" {
			return
		}

		// The user's words render immediately, before any engine output.
		sink.send(Event{Kind: KindUserTranscript, Text: text})
		a.converse(ctx, sess, text, sink, a.speak)
	}()
	return out
}

// speak synthesizes text and forwards audio chunks in production order.
func (a *Adapter) speak(ctx context.Context, sess *session.Session, text, voiceID string, sink *sink) {
	chunks, err := a.synthesizer.Synthesize(ctx, text, voiceID)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Error("synthesis failed", "session_id", sess.ID, "error", err)
			sink.send(Event{Kind: KindError, Agent: sess.ActiveAgent, Err: err})
		}
		return
	}
	for chunk := range chunks {
		if !sink.send(Event{Kind: KindAudioChunk, Agent: sess.ActiveAgent, Audio: chunk}) {
			return
		}
	}
}

type speakFunc func(ctx context.Context, sess *session.Session, text, voiceID string, sink *sink)

// converse drives the engine for one turn and translates its native events.
// speak, when non-nil, runs after the final text is known.
func (a *Adapter) converse(ctx context.Context, sess *session.Session, input string, sink *sink, speak speakFunc) {
	startAgent := sess.ActiveAgent

	events, err := a.engine.Run(ctx, startAgent, input, sess)
	if err != nil {
		a.logger.Error("engine invocation failed", "session_id", sess.ID, "agent", startAgent, "error", err)
		sink.send(Event{Kind: KindError, Agent: startAgent, Err: err})
		sink.send(Event{Kind: KindAgentDone, Agent: startAgent})
		return
	}

	// Tool-call pairing discipline: a result must reference a call id
	// started in this turn, exactly once. Violations are logged and
	// dropped, never fatal.
	open := map[string]string{}

	var finalText string
	var media []string
	finalAgent := startAgent
	failed := false

	for ev := range events {
		switch ev.Kind {
		case engine.KindAgentStart:
			sink.send(Event{Kind: KindAgentSpeaking, Agent: ev.Agent})

		case engine.KindTextDelta:
			sink.send(Event{Kind: KindPartialTranscript, Agent: ev.Agent, Text: ev.Text})

		case engine.KindToolCallStart:
			if _, dup := open[ev.CallID]; dup {
				a.logger.Warn("duplicate tool call id", "session_id", sess.ID, "call_id", ev.CallID, "tool", ev.ToolName)
				continue
			}
			open[ev.CallID] = ev.ToolName
			sink.send(Event{Kind: KindToolCallStarted, Agent: ev.Agent, CallID: ev.CallID, Tool: ev.ToolName})

		case engine.KindToolCallEnd:
			tool, ok := open[ev.CallID]
			if !ok {
				a.logger.Warn("tool result without matching call", "session_id", sess.ID, "call_id", ev.CallID, "tool", ev.ToolName)
				continue
			}
			delete(open, ev.CallID)
			sink.send(Event{
				Kind:        KindToolCallResult,
				Agent:       ev.Agent,
				CallID:      ev.CallID,
				Tool:        tool,
				Result:      ev.ToolResult,
				ToolIsError: ev.ToolIsError,
			})

		case engine.KindFinalText:
			finalText = ev.Text
			media = ev.Media

		case engine.KindDone:
			finalAgent = ev.Agent

		case engine.KindError:
			if ctx.Err() != nil {
				// Interrupted or disconnected; the orchestrator owns the
				// agent_done{interrupted} signal.
				return
			}
			a.logger.Error("engine turn failed", "session_id", sess.ID, "agent", ev.Agent, "error", ev.Err)
			sink.send(Event{Kind: KindError, Agent: ev.Agent, Err: ev.Err})
			failed = true
		}
	}

	if ctx.Err() != nil {
		return
	}
	if failed {
		sink.send(Event{Kind: KindAgentDone, Agent: finalAgent})
		return
	}

	sess.AppendHistory(session.RoleUser, input, startAgent)
	if finalText != "" {
		sess.AppendHistory(session.RoleAssistant, finalText, finalAgent)
	}

	// The final text belongs to the post-handoff agent, so its voice is
	// resolved before any synthesis.
	voiceID := sess.VoiceID
	handedOff := finalAgent != startAgent
	if handedOff {
		if p, err := agent.Lookup(finalAgent); err == nil {
			voiceID = p.VoiceID
		}
		sess.SetActiveAgent(finalAgent, voiceID)
	}

	// Media belongs to this response only; it is never carried to a later
	// turn because it is scoped to this invocation.
	sink.send(Event{Kind: KindFinalTranscript, Agent: finalAgent, Text: finalText, Media: media})

	if speak != nil && finalText != "" {
		speak(ctx, sess, finalText, voiceID, sink)
	}

	if handedOff {
		sink.send(Event{
			Kind:      KindHandoff,
			Agent:     finalAgent,
			FromAgent: startAgent,
			ToAgent:   finalAgent,
			Text:      "Transferring you to " + finalAgent + ".",
		})
	}

	sink.send(Event{Kind: KindAgentDone, Agent: finalAgent})
}

// sink forwards events unless the turn context is cancelled.
type sink struct {
	ctx context.Context
	out chan<- Event
}

func newSink(ctx context.Context, out chan<- Event) *sink {
	return &sink{ctx: ctx, out: out}
}

func (s *sink) send(ev Event) bool {
	select {
	case s.out <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}
