package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Envelope is one inbound client frame. ID correlates the ack; zero means
// the client does not want one.
type Envelope struct {
	ID    int64           `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ack answers exactly one envelope.
type ack struct {
	ID      int64       `json:"id"`
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// push is a server-initiated room broadcast.
type push struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// conn wraps one websocket with a stable identity and serialized writes.
// Broadcasts, acks and pings land here from different goroutines; the mutex
// keeps the frames whole.
type conn struct {
	id string
	ws *websocket.Conn

	writeTimeout time.Duration

	mtx sync.Mutex
}

func (c *conn) ID() string {
	return c.id
}

func (c *conn) Send(event string, payload interface{}) error {
	return c.write(push{Event: event, Data: payload})
}

func (c *conn) write(v interface{}) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}

	return c.ws.WriteJSON(v)
}

func (c *conn) ping() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}
