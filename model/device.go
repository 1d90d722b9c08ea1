package model

import (
	"time"
)

type DeviceType string

const (
	DeviceGM     DeviceType = "gm"
	DevicePlayer DeviceType = "player"
)

type ConnectionStatus string

const (
	DeviceConnected    ConnectionStatus = "connected"
	DeviceDisconnected ConnectionStatus = "disconnected"
)

// Device is the identity record of a logical scanner or GM station.
// One record per device id, upserted on (re)connect and marked disconnected
// on drop. Records are never deleted while a session is live so a
// reconnecting device can have its prior state restored.
type Device struct {
	ID            string           `json:"id"`
	Type          DeviceType       `json:"type"`
	Name          string           `json:"name"`
	Status        ConnectionStatus `json:"connectionStatus"`
	IPAddress     string           `json:"ipAddress"`
	ConnectedAt   time.Time        `json:"connectionTime"`
	LastHeartbeat time.Time        `json:"lastHeartbeat"`

	// ScannedTokens restores a reconnecting device's local
	// duplicate-detection state.
	ScannedTokens []string `json:"scannedTokens"`
}

func (d *Device) Ref() DeviceRef {
	return DeviceRef{ID: d.ID, Type: d.Type, Name: d.Name}
}
