// Package realtime is the persistent bidirectional channel between the
// orchestrator and its devices: the websocket hub, the message envelope,
// the broadcast coordinator, and the connection synchronizer.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 8192
	sendChannelSize = 32
)

// Room names. A room is a named broadcast audience.
const (
	RoomAll = "all"
)

func RoomDevice(deviceID string) string { return "device:" + deviceID }
func RoomType(t model.DeviceType) string {
	return string(t)
}
func RoomSession(sessionID string) string { return "session:" + sessionID }
func RoomTeam(teamID string) string       { return "team:" + teamID }

// Client is one connected device's websocket.
type Client struct {
	ID         string
	DeviceID   string
	DeviceType model.DeviceType

	conn    *websocket.Conn
	sendCh  chan []byte
	hub     *Hub
	onRead  func(c *Client, msg InboundMessage)
	onClose func(c *Client)
	onPong  func(c *Client)
}

// InboundMessage is the wire format devices send: the same
// event-plus-data shape as the outbound envelope.
type InboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub tracks connected clients and their room memberships.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	// mirror, when set, receives a copy of every room emission
	// (the AMQP bridge hooks in here).
	mirror func(room string, env Envelope)
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// SetMirror installs the outbound envelope mirror. Nil disables it.
func (h *Hub) SetMirror(fn func(room string, env Envelope)) {
	h.mu.Lock()
	h.mirror = fn
	h.mu.Unlock()
}

// NewClient wraps an upgraded connection. The caller wires the read and
// close callbacks before starting the pumps.
func (h *Hub) NewClient(conn *websocket.Conn, deviceID string, deviceType model.DeviceType,
	onRead func(*Client, InboundMessage), onClose func(*Client), onPong func(*Client)) *Client {
	c := &Client{
		ID:         uuid.New().String(),
		DeviceID:   deviceID,
		DeviceType: deviceType,
		conn:       conn,
		sendCh:     make(chan []byte, sendChannelSize),
		hub:        h,
		onRead:     onRead,
		onClose:    onClose,
		onPong:     onPong,
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.joinLocked(c, RoomAll)
	h.mu.Unlock()
	return c
}

// JoinRoom adds the client to a named room.
func (h *Hub) JoinRoom(c *Client, room string) {
	h.mu.Lock()
	h.joinLocked(c, room)
	h.mu.Unlock()
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.ID] = c
}

// LeaveRoom removes the client from one room.
func (h *Hub) LeaveRoom(c *Client, room string) {
	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

// remove drops the client from the hub and every room.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	for room, members := range h.rooms {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.sendCh)
	h.mu.Unlock()
}

// RoomSize returns the number of clients in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// EmitToRoom wraps the payload and sends it to every member of room.
func (h *Hub) EmitToRoom(room string, payload model.EventPayload) {
	h.emit(room, Wrap(payload))
}

// Broadcast sends the payload to every connected client.
func (h *Hub) Broadcast(payload model.EventPayload) {
	h.emit(RoomAll, Wrap(payload))
}

func (h *Hub) emit(room string, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error("hub: marshaling envelope", "event", env.Event, err)
		return
	}
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	mirror := h.mirror
	h.mu.RUnlock()

	for _, c := range members {
		c.send(data)
	}
	if mirror != nil {
		mirror(room, env)
	}
}

// Emit sends the wrapped payload to a single client.
func (c *Client) Emit(payload model.EventPayload) {
	env := Wrap(payload)
	data, err := json.Marshal(env)
	if err != nil {
		log.Error("hub: marshaling envelope", "event", env.Event, err)
		return
	}
	c.send(data)
}

// send never blocks; a client whose buffer is full loses the message and
// recovers via the next full sync.
func (c *Client) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		log.Warn("hub: client send buffer full, dropping message", "deviceId", c.DeviceID)
	}
}

// Close tears the connection down.
func (c *Client) Close() {
	c.conn.Close()
}

// ReadPump reads inbound messages and dispatches them until the
// connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if c.onPong != nil {
			c.onPong(c)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg InboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Debug("hub: dropping malformed inbound message", "deviceId", c.DeviceID)
			continue
		}
		if c.onRead != nil {
			c.onRead(c, msg)
		}
	}
}

// WritePump drains the send channel to the socket and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
