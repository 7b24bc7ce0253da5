package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Dosada05/tcg-tournaments/live"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub      *live.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler. "*" в allowedOrigins разрешает любой Origin. При пустом списке
// принимается только Origin с тем же хостом, что и у запроса. Запрос без Origin пропускается.
func NewWebSocketHandler(hub *live.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return len(allowed) == 0 && err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// ServeWs обрабатывает GET /ws. Клиент получает все события статуса турниров и матчей.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту HTTP ошибкой
		h.logger.Warn("failed to upgrade websocket connection", slog.Any("error", err))
		return
	}
	live.Serve(h.hub, conn, h.logger)
	h.logger.Debug("websocket client connected", slog.String("remote_addr", r.RemoteAddr))
}
