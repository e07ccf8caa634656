package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quizparty-games/quizparty/internal/logging"
	"github.com/quizparty-games/quizparty/internal/quizparty"
	"github.com/quizparty-games/quizparty/internal/quizparty/match"
)

// Handler upgrades HTTP requests and runs each connection's read loop,
// feeding decoded envelopes to the manager and writing the ack back.
type Handler struct {
	manager *quizparty.Manager

	pingInterval time.Duration
	writeTimeout time.Duration

	upgrader websocket.Upgrader
}

func New(config *quizparty.Config, manager *quizparty.Manager) *Handler {
	return &Handler{
		manager:      manager,
		pingInterval: config.WSPingInterval,
		writeTimeout: config.WSWriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx).Named("ws.Handler")

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("upgrade: %v", err)
		return
	}

	c := &conn{id: uuid.New().String(), ws: socket, writeTimeout: h.writeTimeout}
	logger.Debugf("Connection %s opened", c.id)

	done := make(chan struct{})
	defer close(done)

	go h.pingLoop(c, done)

	pongWait := h.pingInterval + h.writeTimeout
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	defer func() {
		h.manager.Disconnect(ctx, c.id)
		_ = socket.Close()
		logger.Debugf("Connection %s closed", c.id)
	}()

	for {
		_, raw, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("read on %s: %v", c.id, err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			if err := c.write(ack{ID: env.ID, Code: match.CodeInvalidState, Error: "malformed envelope"}); err != nil {
				return
			}
			continue
		}

		data, err := h.manager.HandleEvent(ctx, c, env.Event, env.Data)

		response := ack{ID: env.ID, Success: err == nil, Data: data}
		if err != nil {
			response.Code = match.CodeOf(err)
			response.Error = err.Error()
			if response.Code == match.CodeInternal {
				logger.Errorf("handle %s on %s: %v", env.Event, c.id, err)
				response.Error = "internal error"
			}
		}

		if err := c.write(response); err != nil {
			return
		}
	}
}

func (h *Handler) pingLoop(c *conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
