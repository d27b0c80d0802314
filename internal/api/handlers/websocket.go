package handlers

import (
	"net/http"

	ws "github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dom/live-auction-server/internal/broadcast"
	"github.com/dom/live-auction-server/internal/coordinator"
	"github.com/dom/live-auction-server/internal/service"
	"github.com/dom/live-auction-server/internal/websocket"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub         *broadcast.Hub
	coord       *coordinator.Coordinator
	authService *service.AuthService
}

func NewWebSocketHandler(hub *broadcast.Hub, coord *coordinator.Coordinator, authService *service.AuthService) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, coord: coord, authService: authService}
}

func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.authService.UserIDFromToken(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(conn, h.hub, h.coord, userID)

	go client.WritePump()
	go client.ReadPump()
}
