package handlers

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/vine/pkg/publisher"
)

// WebSocketHandler upgrades handshake clients onto the publisher so they
// receive their terminal success or error event in real time
type WebSocketHandler struct {
	publisher *publisher.Publisher
	upgrader  websocket.Upgrader
	logger    ectologger.Logger
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(pub *publisher.Publisher, logger ectologger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		publisher: pub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The connect flow runs on arbitrary customer origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// RegisterRoutes registers the websocket route. It is public: the socket is
// opened before the handshake completes, so there is no session to check.
func (h *WebSocketHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Connect)
}

// Connect handles GET /ws. Clients may reconnect with a previously assigned
// ws_client_id to resume waiting on the same handshake.
func (h *WebSocketHandler) Connect(c echo.Context) error {
	ctx := c.Request().Context()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	wsClientID, err := h.publisher.Subscribe(ctx, conn, c.QueryParam("ws_client_id"))
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("failed to subscribe websocket client")
		conn.Close()
		return nil
	}
	defer func() {
		h.publisher.Unsubscribe(wsClientID)
		conn.Close()
	}()

	// Drain and discard client frames until the socket closes. The publisher
	// owns all writes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"ws_client_id": wsClientID,
				}).Warn("websocket closed unexpectedly")
			}
			return nil
		}
	}
}
