package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"skylark/internal/alerting"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// ErrClientGone is returned by Deliver when the client has disconnected or
// its send buffer is full. The registry drops the handle in response.
var ErrClientGone = errors.New("client gone or send buffer full")

// subscribeMessage is the in-band subscription request a client may send
// after connecting: {"type": "subscribe", "cameraId": "7"}.
type subscribeMessage struct {
	Type     string            `json:"type"`
	CameraID alerting.CameraID `json:"cameraId"`
}

// Client bridges one websocket connection and the subscription registry. It
// implements alerting.Handle: deliveries are enqueued to a buffered channel
// and written by the client's own write loop with a per-write deadline, so a
// slow peer never stalls delivery to anyone else.
type Client struct {
	conn     *websocket.Conn
	registry *alerting.Registry
	log      *slog.Logger

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn, registry *alerting.Registry, log *slog.Logger) *Client {
	return &Client{
		conn:     conn,
		registry: registry,
		log:      log,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// Deliver implements alerting.Handle. It never blocks.
func (c *Client) Deliver(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientGone
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrClientGone
	}
}

// start launches the read and write loops.
func (c *Client) start() {
	go c.writeLoop()
	go c.readLoop()
}

// teardown removes the client from every subscriber set and wakes the write
// loop. Safe to call more than once; the first caller wins.
func (c *Client) teardown() {
	c.once.Do(func() {
		c.registry.Unsubscribe(c)
		close(c.done)
		_ = c.conn.Close()
	})
}

// readLoop consumes inbound frames. Subscribe messages update the registry;
// anything malformed is logged and ignored, never fatal to the connection.
// When the read fails (peer closed, deadline, protocol error) the client is
// unconditionally unsubscribed.
func (c *Client) readLoop() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("set read deadline failed", slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("unexpected websocket close", slog.String("error", err.Error()))
			}
			return
		}

		var msg subscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("ignoring malformed client message", slog.String("error", err.Error()))
			continue
		}
		if msg.Type != "subscribe" || msg.CameraID == "" {
			c.log.Debug("ignoring unsupported client message", slog.String("type", msg.Type))
			continue
		}

		c.registry.Subscribe(msg.CameraID, c)
		c.log.Debug("client subscribed", slog.String("camera_id", string(msg.CameraID)))
	}
}

// writeLoop drains the send channel onto the wire and keeps the connection
// alive with pings. Every write is bounded by writeWait.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("write to client failed", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
