package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"lantern/internal/color"
	"lantern/internal/control"
	"lantern/internal/dispatch"
	"lantern/internal/events"
	applog "lantern/internal/log"
	"lantern/internal/protocol"
	"lantern/internal/transport"

	"github.com/gorilla/websocket"
)

const (
	clientBuffer = 64
	writeWait    = 2 * time.Second
	maxMessage   = 4096
)

// Controls is what the hub drives on behalf of websocket clients.
type Controls interface {
	Connect(d transport.Descriptor)
	Disconnect()
	TurnOn()
	TurnOff()
	SetColor(c color.RGB)
	SetBrightness(v int) error
	SetEffectSpeed(v int) error
	SetMode(m protocol.Mode) error
	SetSensitivity(s int)
	SetAlgorithm(a color.Algorithm)
	Settings() control.Settings
	State() dispatch.ConnectionState
}

// Request is a control message from a client.
type Request struct {
	Action    string `json:"action"`
	Address   string `json:"address,omitempty"`
	Name      string `json:"name,omitempty"`
	Color     string `json:"color,omitempty"` // #rrggbb
	Value     int    `json:"value,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Algorithm string `json:"algorithm,omitempty"`
}

// StateMessage is sent in reply to every successful request.
type StateMessage struct {
	Type       string           `json:"type"`
	Connection string           `json:"connection"`
	Settings   control.Settings `json:"settings"`
}

// ErrorMessage is sent when a request cannot be applied.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

var errUnknownAction = errors.New("unknown action")

// Hub is a websocket endpoint. It broadcasts events to every client and
// applies their control requests. It implements events.Sink.
type Hub struct {
	controls Controls
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub that applies requests to controls.
func NewHub(controls Controls) *Hub {
	return &Hub{
		controls: controls,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local control surface
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("Server: Upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}

	go h.writeLoop(c)
	h.queue(c, h.stateMessage())
	h.readLoop(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	applog.Infof("Server: Client connected, total: %d", len(h.clients))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	applog.Infof("Server: Client disconnected, total: %d", len(h.clients))
}

func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	c.conn.SetReadLimit(maxMessage)
	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			var (
				syntax *json.SyntaxError
				typ    *json.UnmarshalTypeError
			)
			if errors.As(err, &syntax) || errors.As(err, &typ) {
				h.queue(c, ErrorMessage{Type: "error", Message: "malformed request"})
				continue
			}
			return
		}
		if err := h.apply(req); err != nil {
			h.queue(c, ErrorMessage{Type: "error", Message: err.Error()})
			continue
		}
		h.queue(c, h.stateMessage())
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			applog.Warnf("Server: Error sending to client: %v", err)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// apply maps a request onto the controls.
func (h *Hub) apply(req Request) error {
	switch req.Action {
	case "connect":
		if req.Address == "" && req.Name == "" {
			return fmt.Errorf("connect needs an address or a name")
		}
		h.controls.Connect(transport.Descriptor{Address: req.Address, Name: req.Name})
	case "disconnect":
		h.controls.Disconnect()
	case "on":
		h.controls.TurnOn()
	case "off":
		h.controls.TurnOff()
	case "color":
		c, err := color.ParseHex(req.Color)
		if err != nil {
			return err
		}
		h.controls.SetColor(c)
	case "brightness":
		return h.controls.SetBrightness(req.Value)
	case "speed":
		return h.controls.SetEffectSpeed(req.Value)
	case "mode":
		m, err := protocol.ParseMode(req.Mode)
		if err != nil {
			return err
		}
		return h.controls.SetMode(m)
	case "sensitivity":
		h.controls.SetSensitivity(req.Value)
	case "algorithm":
		a, err := color.ParseAlgorithm(req.Algorithm)
		if err != nil {
			return err
		}
		h.controls.SetAlgorithm(a)
	case "state":
	default:
		return fmt.Errorf("%q: %w", req.Action, errUnknownAction)
	}
	return nil
}

func (h *Hub) stateMessage() StateMessage {
	return StateMessage{
		Type:       "state",
		Connection: h.controls.State().String(),
		Settings:   h.controls.Settings(),
	}
}

// queue sends v to one client without blocking. A client that cannot keep up
// loses the message.
func (h *Hub) queue(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		applog.Errorf("Server: Marshal %T: %v", v, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Notify broadcasts e to every client. It never blocks.
func (h *Hub) Notify(e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		applog.Errorf("Server: Marshal event: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Channel full, drop message
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

var _ events.Sink = (*Hub)(nil)
