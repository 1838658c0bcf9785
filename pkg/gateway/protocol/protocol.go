// Package protocol defines the JSON wire protocol spoken over the duplex
// channel: `{type, data, timestamp}` envelopes in both directions.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/leadvoice/leadvoice/pkg/session"
)

// Client -> server message kinds.
const (
	ClientAudioInput     = "audio_input"
	ClientTextInput      = "text_input"
	ClientVoiceModeStart = "voice_mode_start"
	ClientVoiceModeEnd   = "voice_mode_end"
	ClientInterrupt      = "interrupt"
	ClientEndSession     = "end_session"
)

// Server -> client message kinds.
const (
	ServerSessionStarted    = "session_started"
	ServerUserTranscript    = "user_transcript"
	ServerPartialTranscript = "partial_transcript"
	ServerTranscript        = "transcript"
	ServerAudioOutput       = "audio_output"
	ServerToolCall          = "tool_call"
	ServerToolResult        = "tool_result"
	ServerHandoff           = "handoff"
	ServerContextUpdate     = "context_update"
	ServerAgentSpeaking     = "agent_speaking"
	ServerAgentDone         = "agent_done"
	ServerError             = "error"
	ServerSessionEnded      = "session_ended"
)

// Tool result statuses.
const (
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"
)

// DecodeError describes a malformed or unsupported client message.
type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func badRequest(format string, args ...any) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: fmt.Sprintf(format, args...)}
}

// ClientMessage is a decoded client envelope. Audio is set for audio_input,
// Text for text_input; control kinds carry no payload.
type ClientMessage struct {
	Type  string
	Audio []byte
	Text  string
}

type clientEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeClientMessage validates and decodes one client envelope.
func DecodeClientMessage(raw []byte) (ClientMessage, *DecodeError) {
	var env clientEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientMessage{}, badRequest("invalid JSON envelope: %v", err)
	}
	kind := strings.TrimSpace(env.Type)
	if kind == "" {
		return ClientMessage{}, badRequest("missing message type")
	}

	switch kind {
	case ClientAudioInput:
		var payload struct {
			Audio string `json:"audio"`
		}
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				return ClientMessage{}, badRequest("invalid audio_input payload: %v", err)
			}
		}
		if payload.Audio == "" {
			return ClientMessage{}, badRequest("audio_input requires base64 audio data")
		}
		pcm, err := base64.StdEncoding.DecodeString(payload.Audio)
		if err != nil {
			return ClientMessage{}, badRequest("audio is not valid base64: %v", err)
		}
		return ClientMessage{Type: kind, Audio: pcm}, nil

	case ClientTextInput:
		var payload struct {
			Text string `json:"text"`
		}
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				return ClientMessage{}, badRequest("invalid text_input payload: %v", err)
			}
		}
		text := strings.TrimSpace(payload.Text)
		if text == "" {
			return ClientMessage{}, badRequest("text_input requires non-empty text")
		}
		return ClientMessage{Type: kind, Text: text}, nil

	case ClientVoiceModeStart, ClientVoiceModeEnd, ClientInterrupt, ClientEndSession:
		return ClientMessage{Type: kind}, nil

	default:
		return ClientMessage{}, &DecodeError{Code: "unsupported", Message: fmt.Sprintf("unsupported message type %q", kind)}
	}
}

// ServerMessage is one server envelope.
type ServerMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

func (m ServerMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func newMessage(kind string, data any) ServerMessage {
	return ServerMessage{
		Type:      kind,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func SessionStarted(sessionID, agentName string) ServerMessage {
	return newMessage(ServerSessionStarted, map[string]any{
		"session_id": sessionID,
		"agent":      agentName,
	})
}

func UserTranscript(text string) ServerMessage {
	return newMessage(ServerUserTranscript, map[string]any{"text": text})
}

func PartialTranscript(text, agentName string) ServerMessage {
	return newMessage(ServerPartialTranscript, map[string]any{
		"text":  text,
		"agent": agentName,
	})
}

// Transcript is the final transcript for a turn. Media references, when
// present, belong to this response only.
func Transcript(text, agentName string, media []string) ServerMessage {
	data := map[string]any{
		"text":  text,
		"agent": agentName,
	}
	if len(media) > 0 {
		data["media"] = media
	}
	return newMessage(ServerTranscript, data)
}

func AudioOutput(pcm []byte) ServerMessage {
	return newMessage(ServerAudioOutput, map[string]any{
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

func ToolCall(tool, callID string) ServerMessage {
	return newMessage(ServerToolCall, map[string]any{
		"tool":    tool,
		"call_id": callID,
	})
}

func ToolResult(tool, callID, result, status string) ServerMessage {
	return newMessage(ServerToolResult, map[string]any{
		"tool":    tool,
		"call_id": callID,
		"result":  result,
		"status":  status,
	})
}

func Handoff(fromAgent, toAgent, message string) ServerMessage {
	return newMessage(ServerHandoff, map[string]any{
		"from_agent": fromAgent,
		"to_agent":   toAgent,
		"message":    message,
	})
}

func ContextUpdate(snap session.Snapshot) ServerMessage {
	return newMessage(ServerContextUpdate, snap)
}

func AgentSpeaking(agentName string) ServerMessage {
	return newMessage(ServerAgentSpeaking, map[string]any{"agent": agentName})
}

func AgentDone(agentName string, interrupted bool) ServerMessage {
	data := map[string]any{"agent": agentName}
	if interrupted {
		data["interrupted"] = true
	}
	return newMessage(ServerAgentDone, data)
}

func ErrorEvent(message string) ServerMessage {
	return newMessage(ServerError, map[string]any{"error": message})
}

func SessionEnded(sessionID string, snap session.Snapshot) ServerMessage {
	return newMessage(ServerSessionEnded, map[string]any{
		"session_id": sessionID,
		"context":    snap,
	})
}
