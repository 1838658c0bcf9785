// Package server exposes the HTTP surface: the WebSocket endpoint for live
// conversations and a thin REST API for session, lead, and queue visibility.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/leadvoice/leadvoice/pkg/agent"
	"github.com/leadvoice/leadvoice/pkg/config"
	"github.com/leadvoice/leadvoice/pkg/gateway/live"
	"github.com/leadvoice/leadvoice/pkg/queue"
	"github.com/leadvoice/leadvoice/pkg/session"
	"github.com/leadvoice/leadvoice/pkg/store"
	"github.com/leadvoice/leadvoice/pkg/turn"
)

type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *session.Registry
	adapter  *turn.Adapter
	queue    *queue.Queue
	leads    store.LeadStore

	echo     *echo.Echo
	upgrader websocket.Upgrader
}

func New(cfg config.Config, logger *slog.Logger, registry *session.Registry, adapter *turn.Adapter, q *queue.Queue, leads store.LeadStore) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		adapter:  adapter,
		queue:    q,
		leads:    leads,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.CORSAllowedOrigins),
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if len(cfg.CORSAllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSAllowedOrigins,
		}))
	}

	e.GET("/healthz", s.handleHealth)
	e.POST("/api/sessions", s.handleCreateSession)
	e.GET("/api/sessions", s.handleListSessions)
	e.GET("/api/sessions/:id", s.handleGetSession)
	e.GET("/api/queue/stats", s.handleQueueStats)
	e.GET("/api/leads", s.handleListLeads)
	e.GET("/ws/:session_id", s.handleWebSocket)

	s.echo = e
	return s
}

// originChecker allows only configured origins. With no configuration the
// gorilla default (same-origin) applies.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (s *Server) Start() error {
	return s.echo.Start(s.cfg.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(c echo.Context) error {
	id := uuid.NewString()
	prof := agent.Default()
	s.registry.Create(id, prof.Name, prof.VoiceID)
	return c.JSON(http.StatusOK, map[string]string{"session_id": id})
}

func (s *Server) handleListSessions(c echo.Context) error {
	ids := s.registry.List()
	return c.JSON(http.StatusOK, map[string]any{
		"sessions": ids,
		"count":    len(ids),
	})
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess := s.registry.Get(c.Param("id"))
	if sess == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt,
		"voice_mode": sess.InVoiceMode(),
		"context":    sess.Snapshot(),
	})
}

func (s *Server) handleQueueStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.queue.Stats())
}

type leadView struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	SelectedProduct   string    `json:"selected_product"`
	ProductsDiscussed []string  `json:"products_discussed"`
	Summary           string    `json:"summary,omitempty"`
	SessionID         string    `json:"session_id"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

const leadListLimit = 50

func (s *Server) handleListLeads(c echo.Context) error {
	leads, err := s.leads.ListLeads(c.Request().Context(), leadListLimit)
	if err != nil {
		s.logger.Error("list leads failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list leads"})
	}
	views := make([]leadView, 0, len(leads))
	for _, l := range leads {
		views = append(views, leadView{
			ID:                l.ID,
			Name:              l.Name,
			Email:             l.Email,
			Phone:             l.Phone,
			SelectedProduct:   l.SelectedProduct,
			ProductsDiscussed: l.ProductsDiscussed,
			Summary:           l.Summary,
			SessionID:         l.SessionID,
			Status:            l.Status,
			CreatedAt:         l.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"leads": views, "count": len(views)})
}

// handleWebSocket upgrades the connection and runs the orchestrator to
// completion. The connection's lifetime is bound to the session registry
// rather than the request context so graceful shutdown can cancel it.
func (s *Server) handleWebSocket(c echo.Context) error {
	id := c.Param("session_id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session id required"})
	}

	prof := agent.Default()
	sess := s.registry.Create(id, prof.Name, prof.VoiceID)

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	release, ok := s.registry.Attach(id, cancel)
	if !ok {
		cancel()
		_ = ws.Close()
		return nil
	}
	defer release()

	conn := live.NewConn(live.Config{
		PingInterval:          s.cfg.WSPingInterval,
		WriteTimeout:          s.cfg.WSWriteTimeout,
		ReadLimitBytes:        s.cfg.WSReadLimitBytes,
		MaxAudioBufferBytes:   s.cfg.MaxAudioBufferBytes,
		ContextUpdateInterval: s.cfg.ContextUpdateInterval,
		TurnTimeout:           s.cfg.TurnTimeout,
	}, ws, sess, s.adapter, s.logger)

	conn.Run(ctx)
	return nil
}
