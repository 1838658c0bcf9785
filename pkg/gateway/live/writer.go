package live

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leadvoice/leadvoice/pkg/gateway/protocol"
)

// wsConn is the subset of *websocket.Conn the orchestrator needs; tests
// substitute fakes.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundWriter owns all socket writes: queued server messages plus
// keepalive pings, each under a write deadline.
type outboundWriter struct {
	ws       wsConn
	ctx      context.Context
	cfg      Config
	messages <-chan protocol.ServerMessage
}

func (w *outboundWriter) Run() error {
	pingInterval := w.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.flushOnShutdown(writeTimeout)
			deadline := time.Now().Add(writeTimeout)
			_ = w.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return nil

		case <-pingTicker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}

		case msg, ok := <-w.messages:
			if !ok {
				return nil
			}
			if err := w.write(msg, writeTimeout); err != nil {
				return err
			}
		}
	}
}

// flushOnShutdown makes a bounded attempt to deliver already-queued
// messages before the close frame goes out.
func (w *outboundWriter) flushOnShutdown(writeTimeout time.Duration) {
	const maxFlushFrames = 16
	for i := 0; i < maxFlushFrames; i++ {
		select {
		case msg, ok := <-w.messages:
			if !ok {
				return
			}
			if err := w.write(msg, writeTimeout); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (w *outboundWriter) write(msg protocol.ServerMessage, writeTimeout time.Duration) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := w.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, payload)
}
