package session

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Signaling offers carry full
	// SDP blobs, so this is roomier than a chat-only limit.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Adjust CORS as needed, e.g., check r.Header.Get("Origin")
	},
}

// Client binds one websocket connection to a registry handle
type Client struct {
	conn     *websocket.Conn
	handle   *Handle
	registry *Registry
	relay    *Relay
}

// ServeSession admits the participant into the consultation room and, on
// success, upgrades the request to a websocket served by the read/write
// pumps. Join failures are returned before the upgrade so the caller can
// reply with a plain HTTP error.
func ServeSession(registry *Registry, relay *Relay, w http.ResponseWriter, r *http.Request, consultationID string, p Participant) error {
	handle, err := registry.Join(r.Context(), consultationID, p)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed",
			"consultationID", consultationID,
			"userID", p.UserID,
			"error", err,
		)
		registry.Leave(handle)
		return nil
	}

	c := &Client{
		conn:     conn,
		handle:   handle,
		registry: registry,
		relay:    relay,
	}
	go c.writePump()
	go c.readPump()
	return nil
}

// readPump relays inbound frames until the connection dies. Leave runs on
// every exit path, normal or abnormal, so the room never keeps a dead
// handle.
func (c *Client) readPump() {
	defer func() {
		c.registry.Leave(c.handle)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				zap.S().Warnw("websocket read error",
					"consultationID", c.handle.ConsultationID,
					"userID", c.handle.UserID,
					"error", err,
				)
			}
			break
		}
		c.relay.HandleInbound(c.handle, frame)
	}
}

// writePump drains the handle's outbound queue onto the socket and keeps the
// connection alive with pings. The registry closing the queue (leave,
// reconnect replacement or room close) shuts the connection down.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.handle.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
