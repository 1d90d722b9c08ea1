package realtime

import (
	"time"

	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// Envelope is the wire contract for every outbound message: the event
// name, its payload, and an ISO 8601 timestamp. No component emits
// unwrapped payloads.
type Envelope struct {
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Wrap builds the envelope for a typed payload. The payload type decides
// the event name, so a payload can never ship under the wrong event.
func Wrap(payload model.EventPayload) Envelope {
	return Envelope{
		Event:     payload.EventName(),
		Data:      payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Supplemental ack payloads, device-targeted only.

// CommandAck acknowledges one GM command. Every command yields exactly
// one of these.
type CommandAck struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (CommandAck) EventName() string { return "gm:command:ack" }

// IdentifyAck confirms a device identification.
type IdentifyAck struct {
	DeviceID     string `json:"deviceId"`
	Reconnection bool   `json:"isReconnection"`
}

func (IdentifyAck) EventName() string { return "device:identified" }

// DisplayMode relays a GM-selected player-screen mode.
type DisplayMode struct {
	Mode string `json:"mode"`
}

func (DisplayMode) EventName() string { return "display:mode" }
