package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-resilience-api/internal/connectivity"
	"github.com/noah-isme/portal-resilience-api/internal/dto"
	"github.com/noah-isme/portal-resilience-api/internal/middleware"
	"github.com/noah-isme/portal-resilience-api/internal/observability"
	"github.com/noah-isme/portal-resilience-api/internal/service"
	"github.com/noah-isme/portal-resilience-api/internal/utils"
)

// ConnectivityMonitor is the part of the connectivity monitor driven over HTTP.
type ConnectivityMonitor interface {
	State() connectivity.State
	Subscribe() (<-chan connectivity.State, func())
	HandleOnline(ctx context.Context)
	HandleOffline(ctx context.Context)
	CheckConnectivity(ctx context.Context) error
}

// MonitorLookup resolves the connectivity monitor of one authenticated user.
type MonitorLookup func(userID string) ConnectivityMonitor

// ConnectivityHandler relays browser online/offline signals to the caller's own
// monitor and streams its state back. backend, when set, exposes the
// server-wide reachability monitor read-only.
type ConnectivityHandler struct {
	monitors  MonitorLookup
	backend   ConnectivityMonitor
	validator *validator.Validate
	keepAlive time.Duration
	logger    zerolog.Logger
}

// NewConnectivityHandler constructs a connectivity handler. backend may be nil.
func NewConnectivityHandler(monitors MonitorLookup, backend ConnectivityMonitor, validator *validator.Validate, keepAlive time.Duration, logger zerolog.Logger) *ConnectivityHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &ConnectivityHandler{
		monitors:  monitors,
		backend:   backend,
		validator: validator,
		keepAlive: keepAlive,
		logger:    logger.With().Str("component", "connectivity_handler").Logger(),
	}
}

// Register binds connectivity routes including the websocket upgrade.
func (h *ConnectivityHandler) Register(router fiber.Router) {
	router.Use("/connectivity/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if middleware.CurrentUserID(c) == "" {
			return writeServiceError(c, service.ErrMissingUser)
		}
		c.Locals("request_ctx", context.WithoutCancel(requestContext(c)))
		return c.Next()
	})

	router.Get("/connectivity", h.state)
	router.Post("/connectivity/events", h.event)
	router.Post("/connectivity/probe", h.probe)
	router.Get("/connectivity/stream", h.stream)
	router.Get("/connectivity/ws", websocket.New(h.handleSocket))
	if h.backend != nil {
		router.Get("/connectivity/backend", h.backendState)
	}
}

// monitorFor returns the caller's monitor, or nil when the request is anonymous.
func (h *ConnectivityHandler) monitorFor(userID string) ConnectivityMonitor {
	if userID == "" {
		return nil
	}
	return h.monitors(userID)
}

func (h *ConnectivityHandler) state(c *fiber.Ctx) error {
	monitor := h.monitorFor(middleware.CurrentUserID(c))
	if monitor == nil {
		return writeServiceError(c, service.ErrMissingUser)
	}
	return utils.SendSuccess(c, "connectivity state", monitor.State())
}

func (h *ConnectivityHandler) backendState(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "backend connectivity state", h.backend.State())
}

func (h *ConnectivityHandler) event(c *fiber.Ctx) error {
	monitor := h.monitorFor(middleware.CurrentUserID(c))
	if monitor == nil {
		return writeServiceError(c, service.ErrMissingUser)
	}

	var payload dto.ConnectivityEventRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_payload", "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "event must be online or offline", err.Error())
	}

	apply(requestContext(c), monitor, payload.Event)
	return utils.SendSuccess(c, "connectivity updated", monitor.State())
}

func (h *ConnectivityHandler) probe(c *fiber.Ctx) error {
	monitor := h.monitorFor(middleware.CurrentUserID(c))
	if monitor == nil {
		return writeServiceError(c, service.ErrMissingUser)
	}

	response := dto.ConnectivityProbeResponse{Reachable: true}
	if err := monitor.CheckConnectivity(requestContext(c)); err != nil {
		response.Reachable = false
		response.Error = err.Error()
	}
	return utils.SendSuccess(c, "probe completed", response)
}

func (h *ConnectivityHandler) stream(c *fiber.Ctx) error {
	monitor := h.monitorFor(middleware.CurrentUserID(c))
	if monitor == nil {
		return writeServiceError(c, service.ErrMissingUser)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(context.WithoutCancel(requestContext(c)))
	states, unsubscribe := monitor.Subscribe()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		observability.ConnectivityStreamClients().Inc()
		defer func() {
			observability.ConnectivityStreamClients().Dec()
			unsubscribe()
			cancel()
		}()

		ticker := time.NewTicker(h.keepAlive / 2)
		defer ticker.Stop()

		for {
			select {
			case state, ok := <-states:
				if !ok {
					return
				}
				if err := writeStateEvent(w, state); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write connectivity event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

// handleSocket pushes every state change to the client and applies the
// {"event": "online"|"offline"} messages it sends.
func (h *ConnectivityHandler) handleSocket(conn *websocket.Conn) {
	ctx, _ := conn.Locals("request_ctx").(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}
	userID := websocketUserID(conn)
	log := h.logger.With().Str("user_id", userID).Logger()
	monitor := h.monitorFor(userID)
	if monitor == nil {
		return
	}

	states, unsubscribe := monitor.Subscribe()
	defer unsubscribe()

	observability.ConnectivityStreamClients().Inc()
	defer observability.ConnectivityStreamClients().Dec()
	log.Debug().Msg("connectivity websocket connected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var message dto.ConnectivityEventRequest
			if err := conn.ReadJSON(&message); err != nil {
				return
			}
			if err := h.validator.Struct(message); err != nil {
				log.Debug().Err(err).Msg("ignoring invalid connectivity message")
				continue
			}
			apply(ctx, monitor, message.Event)
		}
	}()

	for {
		select {
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := conn.WriteJSON(state); err != nil {
				log.Debug().Err(err).Msg("connectivity websocket write failed")
				return
			}
		case <-closed:
			log.Debug().Msg("connectivity websocket disconnected")
			return
		}
	}
}

func apply(ctx context.Context, monitor ConnectivityMonitor, event string) {
	switch event {
	case "online":
		monitor.HandleOnline(ctx)
	case "offline":
		monitor.HandleOffline(ctx)
	}
}

func writeStateEvent(w *bufio.Writer, state connectivity.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: connectivity\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
