package live

import (
	"context"
	"testing"
	"time"

	"github.com/leadvoice/leadvoice/pkg/gateway/protocol"
)

func TestWriterFlushesQueuedMessagesOnShutdown(t *testing.T) {
	ws := newFakeWS()
	messages := make(chan protocol.ServerMessage, 8)
	messages <- protocol.SessionStarted("s1", "GreetingAgent")
	messages <- protocol.UserTranscript("hi")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &outboundWriter{ws: ws, ctx: ctx, cfg: Config{WriteTimeout: time.Second, PingInterval: time.Hour}, messages: messages}
	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	types := ws.writtenTypes()
	if len(types) != 2 || types[0] != protocol.ServerSessionStarted || types[1] != protocol.ServerUserTranscript {
		t.Fatalf("written = %v", types)
	}
}

func TestWriterStopsWhenChannelCloses(t *testing.T) {
	ws := newFakeWS()
	messages := make(chan protocol.ServerMessage, 1)
	messages <- protocol.UserTranscript("hi")
	close(messages)

	w := &outboundWriter{ws: ws, ctx: context.Background(), cfg: Config{WriteTimeout: time.Second, PingInterval: time.Hour}, messages: messages}

	done := make(chan error, 1)
	go func() { done <- w.Run() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("writer did not stop")
	}
	if got := ws.writtenTypes(); len(got) != 1 || got[0] != protocol.ServerUserTranscript {
		t.Fatalf("written = %v", got)
	}
}
