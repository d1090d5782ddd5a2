package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"

	"metrowatch-listener/metrics"
	"metrowatch-listener/models"
	"metrowatch-listener/viewport"
)

// Hub manages WebSocket connections and broadcasting
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages to all clients
	broadcast chan []byte

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Mutex for thread-safe operations
	mutex sync.RWMutex

	// Statistics
	connectedClients int
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mutex.Lock()
			h.clients[client] = true
			h.connectedClients = len(h.clients)
			h.mutex.Unlock()
			metrics.ConnectedClients.Set(float64(h.connectedClients))
			log.Infof("client connected, total clients: %d", h.connectedClients)

		case client := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.connectedClients = len(h.clients)
			}
			h.mutex.Unlock()
			metrics.ConnectedClients.Set(float64(h.connectedClients))
			log.Infof("client disconnected, total clients: %d", h.connectedClients)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.connectedClients = len(h.clients)
			h.mutex.Unlock()
		}
	}
}

// BroadcastChange pushes one reconciled change event to all clients. The
// marker is nil for deletes and for records without a usable position.
func (h *Hub) BroadcastChange(ev models.ChangeEvent, total int) {
	payload := models.ChangeBroadcast{
		Kind:     ev.Kind,
		ReportID: ev.TargetID(),
		Total:    total,
	}
	if ev.New != nil {
		payload.Report = ev.New
		if marker, ok := models.MarkerFor(ev.New); ok {
			payload.Marker = &marker
		}
	}

	h.send("change", payload)
}

// Commander returns a viewport commander that broadcasts map commands to
// every connected client.
func (h *Hub) Commander() viewport.Commander {
	return hubCommander{hub: h}
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.connectedClients
}

func (h *Hub) send(msgType string, data interface{}) {
	message := models.BroadcastMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}

	raw, err := json.Marshal(message)
	if err != nil {
		log.Errorf("failed to marshal broadcast message: %v", err)
		return
	}
	h.broadcast <- raw
}

// hubCommander fans map commands out to all clients.
type hubCommander struct {
	hub *Hub
}

func (c hubCommander) SetView(center models.LatLng, zoom int) {
	c.hub.send("viewport", viewportCommand{Action: "setView", Center: &center, Zoom: zoom})
}

func (c hubCommander) FitBounds(bounds viewport.Bounds, padding int) {
	c.hub.send("viewport", viewportCommand{Action: "fitBounds", Bounds: &bounds, Padding: padding})
}

// viewportCommand is the wire shape of a map command.
type viewportCommand struct {
	Action  string           `json:"action"`
	Center  *models.LatLng   `json:"center,omitempty"`
	Zoom    int              `json:"zoom,omitempty"`
	Bounds  *viewport.Bounds `json:"bounds,omitempty"`
	Padding int              `json:"padding,omitempty"`
}
