// Package live is the connection orchestrator: it owns one WebSocket, runs
// the inbound reader and outbound writer tasks, serializes turns, and
// enforces the wire protocol's ordering guarantees.
package live

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leadvoice/leadvoice/pkg/gateway/protocol"
	"github.com/leadvoice/leadvoice/pkg/session"
	"github.com/leadvoice/leadvoice/pkg/turn"
)

// State is the per-connection lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Config struct {
	PingInterval          time.Duration
	WriteTimeout          time.Duration
	ReadLimitBytes        int64
	MaxAudioBufferBytes   int
	ContextUpdateInterval time.Duration
	// TurnTimeout bounds one adapter invocation; 0 disables it.
	TurnTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadLimitBytes <= 0 {
		c.ReadLimitBytes = 1 << 20
	}
	if c.MaxAudioBufferBytes <= 0 {
		c.MaxAudioBufferBytes = 10 << 20
	}
	if c.ContextUpdateInterval <= 0 {
		c.ContextUpdateInterval = time.Second
	}
	return c
}

// turnRunner is the adapter surface the orchestrator drives.
type turnRunner interface {
	RunText(ctx context.Context, sess *session.Session, input string) <-chan turn.Event
	RunVoice(ctx context.Context, sess *session.Session) <-chan turn.Event
}

const (
	outboundBuffer = 64
	inboundBuffer  = 16
)

type readResult struct {
	msg  protocol.ClientMessage
	derr *protocol.DecodeError
	err  error
}

// Conn orchestrates one live connection.
type Conn struct {
	cfg     Config
	ws      wsConn
	sess    *session.Session
	adapter turnRunner
	logger  *slog.Logger

	state      atomic.Int32
	ctx        context.Context
	outbound   chan protocol.ServerMessage
	writerDone chan struct{}

	lastSnapshot time.Time
}

func NewConn(cfg Config, ws wsConn, sess *session.Session, adapter turnRunner, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		cfg:     cfg.withDefaults(),
		ws:      ws,
		sess:    sess,
		adapter: adapter,
		logger:  logger.With("session_id", sess.ID),
	}
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
}

// Run drives the connection to completion. It returns once the connection
// reaches CLOSED; it never panics out of a transport failure.
func (c *Conn) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx

	c.setState(StateConnecting)
	c.ws.SetReadLimit(c.cfg.ReadLimitBytes)

	c.outbound = make(chan protocol.ServerMessage, outboundBuffer)
	writer := &outboundWriter{ws: c.ws, ctx: ctx, cfg: c.cfg, messages: c.outbound}
	writerErr := make(chan error, 1)
	c.writerDone = make(chan struct{})
	go func() {
		writerErr <- writer.Run()
		close(c.writerDone)
	}()

	readCh := make(chan readResult, inboundBuffer)
	go c.readLoop(ctx, readCh)

	c.send(protocol.SessionStarted(c.sess.ID, c.sess.ActiveAgent))
	c.sendContextUpdate(true)
	c.setState(StateActive)
	c.logger.Info("connection active", "agent", c.sess.ActiveAgent)

	c.loop(ctx, readCh, writerErr)

	// Teardown: cancel the peer task and await it before touching the
	// socket, so no write races a closed channel.
	c.setState(StateClosing)
	cancel()
	<-c.writerDone

	c.sendSessionEndedBestEffort()
	_ = c.ws.Close()
	c.setState(StateClosed)
	c.logger.Info("connection closed")
}

// readLoop is the inbound task: it decodes frames in arrival order and
// forwards them to the dispatch loop.
func (c *Conn) readLoop(ctx context.Context, readCh chan<- readResult) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case readCh <- readResult{err: err}:
			case <-ctx.Done():
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg, derr := protocol.DecodeClientMessage(data)
		select {
		case readCh <- readResult{msg: msg, derr: derr}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Conn) loop(ctx context.Context, readCh <-chan readResult, writerErr <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return

		case err := <-writerErr:
			if err != nil {
				c.logger.Warn("outbound writer failed", "error", err)
			}
			return

		case r := <-readCh:
			if r.err != nil {
				c.logger.Info("connection read ended", "error", r.err)
				return
			}
			if r.derr != nil {
				c.logger.Warn("malformed client message", "code", r.derr.Code, "detail", r.derr.Message)
				c.send(protocol.ErrorEvent(r.derr.Message))
				continue
			}
			if !c.dispatch(ctx, readCh, r.msg) {
				return
			}
		}
	}
}

// dispatch handles one client message. It returns false when the connection
// should close.
func (c *Conn) dispatch(ctx context.Context, readCh <-chan readResult, msg protocol.ClientMessage) bool {
	switch msg.Type {
	case protocol.ClientAudioInput:
		c.appendAudio(msg.Audio)
		return true

	case protocol.ClientVoiceModeStart:
		c.sess.SetVoiceMode(true)
		// A fresh voice turn starts with an empty buffer.
		c.sess.TakeAudio()
		return true

	case protocol.ClientVoiceModeEnd:
		c.sess.SetVoiceMode(false)
		return c.runTurn(ctx, readCh, func(turnCtx context.Context) <-chan turn.Event {
			return c.adapter.RunVoice(turnCtx, c.sess)
		})

	case protocol.ClientTextInput:
		text := msg.Text
		return c.runTurn(ctx, readCh, func(turnCtx context.Context) <-chan turn.Event {
			return c.adapter.RunText(turnCtx, c.sess, text)
		})

	case protocol.ClientInterrupt:
		// Nothing in flight; nothing to cancel.
		return true

	case protocol.ClientEndSession:
		c.logger.Info("client ended session")
		return false

	default:
		return true
	}
}

func (c *Conn) appendAudio(pcm []byte) {
	if c.sess.AudioLen()+len(pcm) > c.cfg.MaxAudioBufferBytes {
		c.logger.Warn("audio buffer limit exceeded", "buffered", c.sess.AudioLen())
		c.send(protocol.ErrorEvent("audio buffer limit exceeded"))
		return
	}
	c.sess.AppendAudio(pcm)
}

// runTurn starts one adapter invocation and fully drains its event sequence
// before returning, so turn N completes before turn N+1 begins. Client
// messages arriving mid-turn are still read in order: interrupts cancel the
// invocation, audio keeps buffering, and everything else, end_session
// included, is deferred until the drain finishes.
func (c *Conn) runTurn(ctx context.Context, readCh <-chan readResult, start func(context.Context) <-chan turn.Event) bool {
	turnCtx, cancelTurn := c.turnContext(ctx)
	defer cancelTurn()

	events := start(turnCtx)
	interrupted := false
	var deferred []protocol.ClientMessage

	for events != nil {
		// Ready adapter events go out before the next inbound frame is
		// consumed: a pipelined client message must not preempt events the
		// turn has already produced.
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
			} else {
				c.relay(ev)
			}
			continue
		default:
		}

		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.relay(ev)

		case r := <-readCh:
			if r.err != nil {
				c.logger.Info("connection read ended mid-turn", "error", r.err)
				cancelTurn()
				drainEvents(events)
				return false
			}
			if r.derr != nil {
				c.send(protocol.ErrorEvent(r.derr.Message))
				continue
			}
			switch r.msg.Type {
			case protocol.ClientInterrupt:
				c.logger.Info("turn interrupted")
				interrupted = true
				cancelTurn()
				drainEvents(events)
				events = nil
			case protocol.ClientAudioInput:
				c.appendAudio(r.msg.Audio)
			default:
				deferred = append(deferred, r.msg)
			}
		}
	}

	if interrupted {
		c.send(protocol.AgentDone(c.sess.ActiveAgent, true))
	}
	c.sendContextUpdate(false)

	for _, msg := range deferred {
		if !c.dispatch(ctx, readCh, msg) {
			return false
		}
	}
	return true
}

func (c *Conn) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.TurnTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.TurnTimeout)
	}
	return context.WithCancel(ctx)
}

// relay translates one normalized turn event into its wire message. Events
// go out in the exact order the adapter produced them.
func (c *Conn) relay(ev turn.Event) {
	switch ev.Kind {
	case turn.KindUserTranscript:
		c.send(protocol.UserTranscript(ev.Text))
	case turn.KindPartialTranscript:
		c.send(protocol.PartialTranscript(ev.Text, ev.Agent))
	case turn.KindToolCallStarted:
		c.send(protocol.ToolCall(ev.Tool, ev.CallID))
	case turn.KindToolCallResult:
		status := protocol.ToolStatusSuccess
		if ev.ToolIsError {
			status = protocol.ToolStatusError
		}
		c.send(protocol.ToolResult(ev.Tool, ev.CallID, ev.Result, status))
		c.sendContextUpdate(false)
	case turn.KindAudioChunk:
		c.send(protocol.AudioOutput(ev.Audio))
	case turn.KindFinalTranscript:
		c.send(protocol.Transcript(ev.Text, ev.Agent, ev.Media))
	case turn.KindHandoff:
		c.send(protocol.Handoff(ev.FromAgent, ev.ToAgent, ev.Text))
		c.sendContextUpdate(false)
	case turn.KindAgentSpeaking:
		c.send(protocol.AgentSpeaking(ev.Agent))
	case turn.KindAgentDone:
		c.send(protocol.AgentDone(ev.Agent, false))
	case turn.KindError:
		text := "internal error"
		if ev.Err != nil {
			text = ev.Err.Error()
		}
		c.send(protocol.ErrorEvent(text))
	}
}

// send queues a message for the writer. Messages are dropped once the
// writer has stopped or the connection is cancelled; by then there is no
// peer to order against.
func (c *Conn) send(msg protocol.ServerMessage) {
	select {
	case c.outbound <- msg:
	case <-c.ctx.Done():
	case <-c.writerDone:
	}
}

// sendContextUpdate emits a state snapshot, throttled to at most one per
// configured interval unless forced.
func (c *Conn) sendContextUpdate(force bool) {
	now := time.Now()
	if !force && now.Sub(c.lastSnapshot) < c.cfg.ContextUpdateInterval {
		return
	}
	c.lastSnapshot = now
	c.send(protocol.ContextUpdate(c.sess.Snapshot()))
}

// sendSessionEndedBestEffort writes the final event directly; by now the
// writer task has stopped. Failures are swallowed: the peer may already be
// gone.
func (c *Conn) sendSessionEndedBestEffort() {
	payload, err := protocol.SessionEnded(c.sess.ID, c.sess.Snapshot()).Encode()
	if err != nil {
		return
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	_ = c.ws.WriteMessage(websocket.TextMessage, payload)
}

func drainEvents(events <-chan turn.Event) {
	if events == nil {
		return
	}
	for range events {
	}
}
