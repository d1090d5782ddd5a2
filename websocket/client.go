package websocket

import (
	"encoding/json"
	"time"

	"github.com/apex/log"
	gorilla "github.com/gorilla/websocket"

	"metrowatch-listener/geocode"
	"metrowatch-listener/models"
	"metrowatch-listener/viewport"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// inboundMessage is what clients send over the socket. Search messages feed
// the per-session search controller.
type inboundMessage struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Submit bool   `json:"submit"`
}

// Client is one WebSocket session. It doubles as the map collaborator for
// its own session: viewport commands and search errors are pushed to the
// peer as JSON messages.
type Client struct {
	hub  *Hub
	conn *gorilla.Conn
	send chan []byte

	search   *geocode.SearchController
	viewport *viewport.Controller
}

// NewClient creates a session with its own debounced search controller
// wired to a session-scoped viewport controller.
func NewClient(hub *Hub, conn *gorilla.Conn, searcher geocode.Searcher, qualifier string, debounce time.Duration) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	c.viewport = viewport.NewController(c)
	c.search = geocode.NewSearchController(searcher, c.viewport, qualifier, debounce)
	c.search.OnStateChange(func(state string) {
		c.push("search_error", map[string]string{"state": state})
	})
	return c
}

// SetView implements viewport.Commander for this session.
func (c *Client) SetView(center models.LatLng, zoom int) {
	c.push("viewport", viewportCommand{Action: "setView", Center: &center, Zoom: zoom})
}

// FitBounds implements viewport.Commander for this session.
func (c *Client) FitBounds(bounds viewport.Bounds, padding int) {
	c.push("viewport", viewportCommand{Action: "fitBounds", Bounds: &bounds, Padding: padding})
}

// SendSnapshot pushes the current collection and its markers to the peer,
// followed by the initial viewport command: a fit over the visible
// positions, or the default view when nothing has a position yet.
func (c *Client) SendSnapshot(reports []models.Report, connectivity string) {
	markers := make([]models.Marker, 0, len(reports))
	for i := range reports {
		if m, ok := models.MarkerFor(&reports[i]); ok {
			markers = append(markers, m)
		}
	}
	c.push("snapshot", models.SnapshotBroadcast{
		Reports: reports,
		Markers: markers,
		Count:   len(reports),
		Status:  connectivity,
	})

	if bounds, ok := viewport.BoundsOf(reports); ok {
		c.FitBounds(bounds, viewport.FitPadding)
	} else {
		c.SetView(viewport.DefaultCenter, viewport.DefaultZoom)
	}
}

// ReadPump pumps messages from the WebSocket connection to the session.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
		// Releases the pending debounce timer and invalidates in-flight
		// lookups so nothing fires against a disposed session.
		c.search.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseAbnormalClosure) {
				log.Warnf("websocket read error: %v", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warnf("websocket: undecodable client message dropped: %v", err)
			continue
		}

		switch msg.Type {
		case "search":
			if msg.Submit {
				// The lookup blocks on the network; keep the read loop free.
				go c.search.OnSubmit(msg.Text)
			} else {
				c.search.OnQueryChange(msg.Text)
			}
		default:
			log.Warnf("websocket: unknown client message type %q", msg.Type)
		}
	}
}

// WritePump pumps messages from the session to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(gorilla.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(gorilla.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gorilla.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push marshals one message for this session only. A full send buffer drops
// the message rather than blocking the caller.
func (c *Client) push(msgType string, data interface{}) {
	message := models.BroadcastMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}
	raw, err := json.Marshal(message)
	if err != nil {
		log.Errorf("failed to marshal session message: %v", err)
		return
	}
	defer func() {
		// The hub closes the send channel on unregister; a push racing the
		// teardown must not crash the session.
		recover()
	}()
	select {
	case c.send <- raw:
	default:
	}
}
