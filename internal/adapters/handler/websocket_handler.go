package handler

import (
	"net/http"
	"slices"
	"strings"

	"github.com/IANDYI/glucose-diary/internal/adapters/middleware"
	"github.com/IANDYI/glucose-diary/internal/adapters/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler serves the live diary feed
type WebSocketHandler struct {
	hub            *websocket.Hub
	authMiddleware *middleware.AuthMiddleware
	logger         *zap.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *websocket.Hub, authMiddleware *middleware.AuthMiddleware, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		hub:            hub,
		authMiddleware: authMiddleware,
		logger:         logger,
	}
}

// HandleWebSocket handles GET /ws
// OWNER and VIEWER. Browsers cannot set headers on a WebSocket handshake,
// so the token may also be passed as ?token=.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()

	userID, role, ok := h.authenticate(r)
	if !ok {
		h.logger.Info("live feed connection rejected", zap.String("request_id", requestID))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !slices.Contains([]string{middleware.RoleOwner, middleware.RoleViewer}, role) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := h.hub.Serve(w, r, userID, role); err != nil {
		// the upgrader has already written the error response
		h.logger.Info("websocket upgrade failed", zap.String("request_id", requestID), zap.Error(err))
	}
}

func (h *WebSocketHandler) authenticate(r *http.Request) (userID, role string, ok bool) {
	if h.authMiddleware == nil {
		return "", "", false
	}
	if h.authMiddleware.Disabled() {
		return middleware.LocalOwnerID, middleware.RoleOwner, true
	}

	tokenString, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		return "", "", false
	}

	userID, role, err := h.authMiddleware.Authenticate(tokenString)
	if err != nil {
		h.logger.Debug("live feed token validation failed", zap.Error(err))
		return "", "", false
	}
	return userID, role, true
}
