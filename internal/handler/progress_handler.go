package handler

import (
	"studykit-be/internal/pkg/logger"
	"studykit-be/internal/service"
	internalWS "studykit-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ProgressHandler streams session snapshots to browsers over WebSocket.
type ProgressHandler struct {
	service service.IStudyService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewProgressHandler(service service.IStudyService, hub *internalWS.Hub, log logger.ILogger) *ProgressHandler {
	return &ProgressHandler{
		service: service,
		hub:     hub,
		logger:  log,
	}
}

// ServeWs upgrades the request and sends the current snapshot, then one
// snapshot per applied transition.
func (h *ProgressHandler) ServeWs(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	snap, err := h.service.GetSession(c.UserContext(), sessionID)
	if err != nil {
		return err
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	initial, err := internalWS.EncodeSnapshot(snap)
	if err != nil {
		return err
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("ProgressHandler", "Starting WebSocket session", map[string]interface{}{"session_id": sessionID})
		internalWS.ServeWs(h.hub, conn, sessionID, initial)
		h.logger.Info("ProgressHandler", "WebSocket session ended", map[string]interface{}{"session_id": sessionID})
	})(c)
}

func (h *ProgressHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/study/v1/sessions/:id/ws", h.ServeWs)
}
