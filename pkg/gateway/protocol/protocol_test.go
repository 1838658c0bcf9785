package protocol

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/leadvoice/leadvoice/pkg/session"
)

func TestDecodeAudioInput(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03}
	raw := `{"type":"audio_input","data":{"audio":"` + base64.StdEncoding.EncodeToString(pcm) + `"}}`

	msg, derr := DecodeClientMessage([]byte(raw))
	if derr != nil {
		t.Fatalf("decode: %v", derr)
	}
	if msg.Type != ClientAudioInput || string(msg.Audio) != string(pcm) {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestDecodeAudioInputRejectsBadBase64(t *testing.T) {
	_, derr := DecodeClientMessage([]byte(`{"type":"audio_input","data":{"audio":"!!!"}}`))
	if derr == nil || derr.Code != "bad_request" {
		t.Fatalf("derr = %v", derr)
	}
}

func TestDecodeTextInput(t *testing.T) {
	msg, derr := DecodeClientMessage([]byte(`{"type":"text_input","data":{"text":"  hello  "}}`))
	if derr != nil {
		t.Fatalf("decode: %v", derr)
	}
	if msg.Text != "hello" {
		t.Fatalf("Text = %q", msg.Text)
	}
}

func TestDecodeTextInputRequiresText(t *testing.T) {
	_, derr := DecodeClientMessage([]byte(`{"type":"text_input","data":{"text":"   "}}`))
	if derr == nil || derr.Code != "bad_request" {
		t.Fatalf("derr = %v", derr)
	}
}

func TestDecodeControlKinds(t *testing.T) {
	for _, kind := range []string{ClientVoiceModeStart, ClientVoiceModeEnd, ClientInterrupt, ClientEndSession} {
		msg, derr := DecodeClientMessage([]byte(`{"type":"` + kind + `"}`))
		if derr != nil {
			t.Fatalf("%s: %v", kind, derr)
		}
		if msg.Type != kind {
			t.Fatalf("Type = %q, want %q", msg.Type, kind)
		}
	}
}

func TestDecodeUnsupportedKind(t *testing.T) {
	_, derr := DecodeClientMessage([]byte(`{"type":"upload_file"}`))
	if derr == nil || derr.Code != "unsupported" {
		t.Fatalf("derr = %v", derr)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, derr := DecodeClientMessage([]byte(`{`))
	if derr == nil || derr.Code != "bad_request" {
		t.Fatalf("derr = %v", derr)
	}
}

func TestServerEnvelopeShape(t *testing.T) {
	raw, err := ToolResult("submit_lead", "call_1", "ok", ToolStatusSuccess).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env struct {
		Type      string         `json:"type"`
		Data      map[string]any `json:"data"`
		Timestamp string         `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != ServerToolResult {
		t.Fatalf("type = %q", env.Type)
	}
	if env.Data["call_id"] != "call_1" || env.Data["status"] != ToolStatusSuccess {
		t.Fatalf("data = %v", env.Data)
	}
	if _, err := time.Parse(time.RFC3339Nano, env.Timestamp); err != nil {
		t.Fatalf("timestamp %q: %v", env.Timestamp, err)
	}
}

func TestAgentDoneOmitsInterruptedWhenFalse(t *testing.T) {
	raw, _ := AgentDone("SalesAgent", false).Encode()
	var env struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := env.Data["interrupted"]; present {
		t.Fatalf("interrupted present: %v", env.Data)
	}

	raw, _ = AgentDone("SalesAgent", true).Encode()
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Data["interrupted"] != true {
		t.Fatalf("interrupted = %v", env.Data["interrupted"])
	}
}

func TestTranscriptMediaOnlyWhenPresent(t *testing.T) {
	raw, _ := Transcript("hi", "SalesAgent", nil).Encode()
	var env struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := env.Data["media"]; present {
		t.Fatalf("media present on empty: %v", env.Data)
	}
}

func TestContextUpdateCarriesSnapshotFields(t *testing.T) {
	snap := session.Snapshot{
		Name:              "Jane Doe",
		Email:             "jane@x.com",
		Phone:             "555-0100",
		InfoComplete:      true,
		ProductsDiscussed: []string{"Heritage Door"},
		SelectedProduct:   "Heritage Door",
		CurrentAgent:      "SalesAgent",
	}
	raw, _ := ContextUpdate(snap).Encode()
	var env struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"name", "email", "phone", "info_complete", "products_discussed", "selected_product", "current_agent"} {
		if _, ok := env.Data[key]; !ok {
			t.Fatalf("missing %q in %v", key, env.Data)
		}
	}
}
