package httpserver

import (
	"net/http"
	"strings"

	"optrade/internal/auth"
	"optrade/internal/events"

	"github.com/gorilla/websocket"
)

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}

// AdminWSHandler streams platform events (new orders, settlements, withdraw
// requests, notices) to the admin dashboard. Browsers cannot set headers on a
// WebSocket handshake, so the token travels as a query parameter.
type AdminWSHandler struct {
	bus      *events.Bus
	authSvc  *auth.Service
	upgrader websocket.Upgrader
}

func NewAdminWSHandler(bus *events.Bus, authSvc *auth.Service, origin string) *AdminWSHandler {
	return &AdminWSHandler{
		bus:     bus,
		authSvc: authSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func (h *AdminWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	_, role, err := h.authSvc.ParseToken(token)
	if err != nil || role != auth.RoleAdmin {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
